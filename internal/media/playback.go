package media

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/core"
)

const maxLatePackets = 64

// Output receives samples when they are due on the playback timeline.
type Output interface {
	Play(kind webrtc.RTPCodecType, s media.Sample) error
}

// PacketTap sees every received RTP packet before reassembly.
type PacketTap interface {
	WriteRTP(kind webrtc.RTPCodecType, pkt *rtp.Packet) error
}

type queued struct {
	kind   webrtc.RTPCodecType
	at     time.Time
	sample media.Sample
}

// Sink plays remote tracks. Packets are reassembled into samples, each kind
// gets its own timeline, and samples are handed to the outputs when due.
type Sink struct {
	outputs []Output
	taps    []PacketTap
	muted   atomic.Bool

	mu       sync.Mutex
	queue    []queued
	next     map[webrtc.RTPCodecType]time.Time
	attached map[string]struct{}
	closed   bool

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

type SinkOption func(*Sink)

func WithOutput(o Output) SinkOption { return func(s *Sink) { s.outputs = append(s.outputs, o) } }

func WithPacketTap(t PacketTap) SinkOption { return func(s *Sink) { s.taps = append(s.taps, t) } }

func NewSink(opts ...SinkOption) *Sink {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sink{
		next:     make(map[webrtc.RTPCodecType]time.Time),
		attached: make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.playout(ctx)
	return s
}

// Attach starts reading track. The same track is attached once.
func (s *Sink) Attach(track core.RemoteTrack) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, ok := s.attached[track.ID()]; ok {
		s.mu.Unlock()
		return
	}
	s.attached[track.ID()] = struct{}{}
	s.mu.Unlock()

	log.Info().Str("module", "media.playback").Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("track attached")
	go s.read(track)
}

func depacketizerFor(mime string) rtp.Depacketizer {
	switch mime {
	case webrtc.MimeTypeVP8:
		return &codecs.VP8Packet{}
	case webrtc.MimeTypeOpus:
		return &codecs.OpusPacket{}
	case webrtc.MimeTypeH264:
		return &codecs.H264Packet{}
	default:
		return nil
	}
}

func (s *Sink) read(track core.RemoteTrack) {
	kind := track.Kind()
	codec := track.Codec()

	var sb *samplebuilder.SampleBuilder
	if depack := depacketizerFor(codec.MimeType); depack != nil {
		sb = samplebuilder.New(maxLatePackets, depack, codec.ClockRate)
	} else {
		log.Warn().Str("module", "media.playback").Str("mime", codec.MimeType).Msg("no depacketizer, packets are only tapped")
	}

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("module", "media.playback").Str("kind", kind.String()).Msg("read rtp")
			}
			return
		}
		if s.isClosed() {
			return
		}
		for _, tap := range s.taps {
			if err := tap.WriteRTP(kind, pkt); err != nil {
				log.Warn().Err(err).Str("module", "media.playback").Msg("packet tap")
			}
		}
		if sb == nil {
			continue
		}
		sb.Push(pkt)
		for sample := sb.Pop(); sample != nil; sample = sb.Pop() {
			s.enqueue(kind, *sample)
		}
	}
}

// enqueue places the sample right after the previous one of its kind, or
// now if the timeline fell behind.
func (s *Sink) enqueue(kind webrtc.RTPCodecType, sample media.Sample) time.Time {
	s.mu.Lock()
	now := time.Now()
	at := s.next[kind]
	if at.Before(now) {
		at = now
	}
	s.next[kind] = at.Add(sample.Duration)
	i := sort.Search(len(s.queue), func(i int) bool { return s.queue[i].at.After(at) })
	s.queue = append(s.queue, queued{})
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = queued{kind: kind, at: at, sample: sample}
	s.mu.Unlock()

	s.poke()
	return at
}

// Interrupt drops everything scheduled but not yet played and restarts the
// timelines at now.
func (s *Sink) Interrupt() {
	s.mu.Lock()
	dropped := len(s.queue)
	s.queue = s.queue[:0]
	now := time.Now()
	for kind := range s.next {
		s.next[kind] = now
	}
	s.mu.Unlock()

	s.poke()
	log.Info().Str("module", "media.playback").Int("dropped", dropped).Msg("playback interrupted")
}

// SetMuted silences audio playback. Muted audio keeps its timeline and is
// dropped when due; video plays on.
func (s *Sink) SetMuted(muted bool) {
	if s.muted.Swap(muted) != muted {
		log.Info().Str("module", "media.playback").Bool("muted", muted).Msg("playback mute")
	}
}

func (s *Sink) Muted() bool { return s.muted.Load() }

// Pending is the number of samples waiting for their slot.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Sink) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sink) playout(ctx context.Context) {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		due, wait := s.takeDue(time.Now())
		for _, q := range due {
			if q.kind == webrtc.RTPCodecTypeAudio && s.muted.Load() {
				continue
			}
			for _, o := range s.outputs {
				if err := o.Play(q.kind, q.sample); err != nil {
					log.Warn().Err(err).Str("module", "media.playback").Msg("output")
				}
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

func (s *Sink) takeDue(now time.Time) ([]queued, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for n < len(s.queue) && !s.queue[n].at.After(now) {
		n++
	}
	due := append([]queued(nil), s.queue[:n]...)
	s.queue = append(s.queue[:0], s.queue[n:]...)

	wait := time.Hour
	if len(s.queue) > 0 {
		wait = s.queue[0].at.Sub(now)
	}
	return due, wait
}

func (s *Sink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops playout. Readers exit on their next packet or when the
// transport closes the track.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	s.cancel()
	<-s.done
}
