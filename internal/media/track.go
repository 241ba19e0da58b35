package media

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateStopped
)

const streamID = "tasteshift"

var ErrTrackStopped = errors.New("track stopped")

// Track is one local outgoing track. Writes are dropped while muted and
// rejected once stopped.
type Track struct {
	local *webrtc.TrackLocalStaticSample
	state atomic.Int32 // Zero by default (TrackStateOk)

	stopOnce sync.Once
	onStop   func()
}

func NewTrack(kind webrtc.RTPCodecType, codec webrtc.RTPCodecCapability, onStop func()) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(codec, kind.String(), streamID)
	if err != nil {
		return nil, err
	}
	return &Track{local: local, onStop: onStop}, nil
}

func (t *Track) ID() string                       { return t.local.ID() }
func (t *Track) Kind() webrtc.RTPCodecType        { return t.local.Kind() }
func (t *Track) Local() webrtc.TrackLocal         { return t.local }
func (t *Track) Codec() webrtc.RTPCodecCapability { return t.local.Codec() }

func (t *Track) GetState() TrackState {
	return TrackState(t.state.Load())
}

// SetMuted toggles writes without renegotiation. A stopped track stays
// stopped.
func (t *Track) SetMuted(muted bool) {
	next := TrackStateOk
	if muted {
		next = TrackStateMuted
	}
	for {
		cur := t.state.Load()
		if TrackState(cur) == TrackStateStopped {
			return
		}
		if t.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

func (t *Track) WriteSample(data []byte, d time.Duration) error {
	switch t.GetState() {
	case TrackStateStopped:
		return ErrTrackStopped
	case TrackStateMuted:
		return nil
	}
	return t.local.WriteSample(media.Sample{Data: data, Duration: d})
}

// Stop is safe to call any number of times; the release hook runs once.
func (t *Track) Stop() {
	t.stopOnce.Do(func() {
		t.state.Store(int32(TrackStateStopped))
		if t.onStop != nil {
			t.onStop()
		}
		log.Debug().Str("module", "media.track").Str("kind", t.Kind().String()).Msg("track stopped")
	})
}

func (t *Track) Stopped() bool { return t.GetState() == TrackStateStopped }
