package media

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/domain"
)

const DefaultAcquireTimeout = 4 * time.Second

// Capturer opens the hardware camera and microphone. It must honour ctx
// cancellation, but a capture that returns after cancellation is still
// stopped by the caller.
type Capturer interface {
	Capture(ctx context.Context) (*Bundle, error)
}

// permissionDenied classifies a capture failure. Device opens surface
// fs.ErrPermission when wrapped; some camera drivers only report the errno
// text, so the message is checked as a fallback.
func permissionDenied(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrPermission) || strings.Contains(strings.ToLower(err.Error()), "permission denied") {
		return errors.Join(domain.ErrPermissionDenied, err)
	}
	return err
}

type CapturerFunc func(ctx context.Context) (*Bundle, error)

func (f CapturerFunc) Capture(ctx context.Context) (*Bundle, error) { return f(ctx) }

// Provider hands out the local media of a broadcaster. Acquire never fails:
// when the hardware does not come up in time a synthetic feed is used.
type Provider struct {
	capture Capturer
	encoder func() FrameEncoder

	mu      sync.Mutex
	current *Bundle
	notice  string
}

type ProviderOption func(*Provider)

// WithFrameEncoder sets the factory used for the synthetic video track.
func WithFrameEncoder(fn func() FrameEncoder) ProviderOption {
	return func(p *Provider) { p.encoder = fn }
}

func NewProvider(capture Capturer, opts ...ProviderOption) *Provider {
	p := &Provider{capture: capture, encoder: DefaultFrameEncoder}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type captureResult struct {
	bundle *Bundle
	err    error
}

// Acquire stops the previously acquired bundle and returns a new one. A
// non-positive timeout means DefaultAcquireTimeout.
func (p *Provider) Acquire(ctx context.Context, timeout time.Duration) *Bundle {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}

	p.mu.Lock()
	prev := p.current
	p.current = nil
	p.notice = ""
	p.mu.Unlock()
	prev.Stop()

	bundle, err := p.tryCapture(ctx, timeout)
	if err != nil {
		log.Warn().Err(err).Str("module", "media.provider").Msg("hardware capture unavailable, using synthetic feed")
		if errors.Is(err, domain.ErrPermissionDenied) {
			p.setNotice(domain.Reason(err))
		}
		bundle = p.synthesize()
	}
	if ctx.Err() != nil {
		// the caller is gone, hand back a released bundle
		bundle.Stop()
		return bundle
	}

	p.mu.Lock()
	p.current = bundle
	p.mu.Unlock()
	return bundle
}

func (p *Provider) tryCapture(ctx context.Context, timeout time.Duration) (*Bundle, error) {
	if p.capture == nil {
		return nil, domain.ErrNoDevice
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan captureResult, 1)
	go func() {
		b, err := p.capture.Capture(cctx)
		done <- captureResult{bundle: b, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			res.bundle.Stop()
			return nil, res.err
		}
		if res.bundle == nil {
			return nil, domain.ErrNoDevice
		}
		return res.bundle, nil
	case <-cctx.Done():
		go func() {
			if res := <-done; res.bundle != nil {
				log.Info().Str("module", "media.provider").Msg("late capture released")
				res.bundle.Stop()
			}
		}()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.ErrCaptureTimeout
	}
}

func (p *Provider) synthesize() *Bundle {
	var enc FrameEncoder
	if p.encoder != nil {
		enc = p.encoder()
	}
	b, err := Synthesize(enc)
	if err != nil {
		log.Error().Err(err).Str("module", "media.provider").Msg("synthetic feed")
		b, _ = newBundle(true)
	}
	return b
}

func (p *Provider) setNotice(s string) {
	p.mu.Lock()
	p.notice = s
	p.mu.Unlock()
}

// Notice is the informational message of the last Acquire, if any.
func (p *Provider) Notice() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notice
}

// Release stops the current bundle.
func (p *Provider) Release() {
	p.mu.Lock()
	b := p.current
	p.current = nil
	p.mu.Unlock()
	b.Stop()
}
