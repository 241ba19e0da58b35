package media

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Bundle is the set of local tracks one session publishes. Producers feeding
// the tracks run until Stop.
type Bundle struct {
	tracks    []*Track
	simulated bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func newBundle(simulated bool, tracks ...*Track) (*Bundle, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bundle{tracks: tracks, simulated: simulated, cancel: cancel}, ctx
}

// NewBundle wraps tracks fed by an outside producer, e.g. a hardware
// capturer.
func NewBundle(tracks ...*Track) *Bundle {
	b, _ := newBundle(false, tracks...)
	return b
}

// Simulated is true when the bundle carries the synthetic placeholder feed
// instead of hardware capture.
func (b *Bundle) Simulated() bool { return b.simulated }

// Locals returns the tracks as they are attached to a PeerConnection.
func (b *Bundle) Locals() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, 0, len(b.tracks))
	for _, t := range b.tracks {
		out = append(out, t.Local())
	}
	return out
}

func (b *Bundle) Track(kind webrtc.RTPCodecType) *Track {
	for _, t := range b.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

// SetAudioMuted mutes or unmutes every audio track.
func (b *Bundle) SetAudioMuted(muted bool) {
	for _, t := range b.tracks {
		if t.Kind() == webrtc.RTPCodecTypeAudio {
			t.SetMuted(muted)
		}
	}
}

func (b *Bundle) goProduce(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

// Stop halts the producers and stops every track. Only the first call has
// any effect.
func (b *Bundle) Stop() {
	if b == nil {
		return
	}
	b.once.Do(func() {
		b.cancel()
		for _, t := range b.tracks {
			t.Stop()
		}
		b.wg.Wait()
	})
}

func (b *Bundle) Stopped() bool {
	for _, t := range b.tracks {
		if !t.Stopped() {
			return false
		}
	}
	return true
}
