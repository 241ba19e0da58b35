package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/tasteshift/live/internal/domain"
)

// WebRTCConfig uses exactly the given ICE servers; none means host
// candidates only.
func WebRTCConfig(iceServers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{
			{
				URLs: iceServers,
			},
		}
	}
	return cfg
}

// BuildFunc constructs the media API.
type BuildFunc func() (*webrtc.API, error)

// DefaultBuild registers the default codecs and interceptors.
func DefaultBuild() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir)), nil
}

// Loader builds the media API on first use and hands the same instance to
// every later caller. A failed build is remembered; concurrent first calls
// share one build.
type Loader struct {
	build BuildFunc
	group singleflight.Group

	mu  sync.Mutex
	api *webrtc.API
	err error
}

func NewLoader(build BuildFunc) *Loader {
	if build == nil {
		build = DefaultBuild
	}
	return &Loader{build: build}
}

func (l *Loader) Load(ctx context.Context) (*webrtc.API, error) {
	if api, done, err := l.state(); done {
		return api, err
	}

	ch := l.group.DoChan("api", func() (any, error) {
		if api, done, err := l.state(); done {
			return api, err
		}
		api, err := l.build()
		if err != nil {
			err = fmt.Errorf("%w: %w", domain.ErrLibraryUnavailable, err)
			log.Error().Err(err).Str("module", "rtc.loader").Msg("media api unavailable")
		} else {
			log.Info().Str("module", "rtc.loader").Msg("media api ready")
		}
		l.mu.Lock()
		l.api, l.err = api, err
		l.mu.Unlock()
		return api, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*webrtc.API), nil
	}
}

// state reports the memoized result once the build has run.
func (l *Loader) state() (*webrtc.API, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.api, l.api != nil || l.err != nil, l.err
}
