package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

// Recorder writes received media to <dir>/<name>.ivf and <dir>/<name>.ogg.
type Recorder struct {
	mu    sync.Mutex
	video *ivfwriter.IVFWriter
	audio *oggwriter.OggWriter
}

func NewRecorder(dir, name string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recording dir: %w", err)
	}
	video, err := ivfwriter.New(filepath.Join(dir, name+".ivf"))
	if err != nil {
		return nil, fmt.Errorf("ivf writer: %w", err)
	}
	audio, err := oggwriter.New(filepath.Join(dir, name+".ogg"), 48000, 2)
	if err != nil {
		_ = video.Close()
		return nil, fmt.Errorf("ogg writer: %w", err)
	}
	log.Info().Str("module", "media.recorder").Str("dir", dir).Str("name", name).Msg("recording")
	return &Recorder{video: video, audio: audio}, nil
}

func (r *Recorder) WriteRTP(kind webrtc.RTPCodecType, pkt *rtp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case kind == webrtc.RTPCodecTypeVideo && r.video != nil:
		return r.video.WriteRTP(pkt)
	case kind == webrtc.RTPCodecTypeAudio && r.audio != nil:
		return r.audio.WriteRTP(pkt)
	}
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	if r.video != nil {
		errs = append(errs, r.video.Close())
		r.video = nil
	}
	if r.audio != nil {
		errs = append(errs, r.audio.Close())
		r.audio = nil
	}
	return errors.Join(errs...)
}
