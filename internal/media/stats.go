package media

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Counter is an Output that only counts played samples.
type Counter struct {
	video atomic.Int64
	audio atomic.Int64
}

func (c *Counter) Play(kind webrtc.RTPCodecType, _ media.Sample) error {
	if kind == webrtc.RTPCodecTypeVideo {
		c.video.Add(1)
	} else {
		c.audio.Add(1)
	}
	return nil
}

func (c *Counter) Video() int64 { return c.video.Load() }
func (c *Counter) Audio() int64 { return c.audio.Load() }
