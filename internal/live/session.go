// Package live runs one live video session end to end: rendezvous through
// the directory, local media for broadcasters, playback for viewers and
// the metadata shown next to the video.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
	"github.com/tasteshift/live/internal/media"
)

const DefaultConnectTimeout = 15 * time.Second

type StartRequest struct {
	Role domain.Role
	Self domain.UserID
	// Target is the broadcaster a viewer watches.
	Target domain.UserID
	// Channel overrides the channel derived from the broadcaster's user id.
	Channel domain.Identity
}

type SessionConfig struct {
	AcquireTimeout time.Duration
	ConnectTimeout time.Duration
	// CollisionRetries is how many fresh identities a viewer tries after
	// unavailable-id. Broadcasters never retry.
	CollisionRetries int
}

// SessionState is a snapshot of a session for display.
type SessionState struct {
	Role      domain.Role
	Status    domain.Status
	Err       error
	Identity  domain.Identity
	Channel   domain.Identity
	Simulated bool
	Muted     bool
	Notice    string
	Links     int
}

// Session owns the rendezvous and the connection lifecycle of one role. It
// moves connecting → connected → {disconnected, error} and never leaves a
// terminal status; a new Session is needed to try again.
type Session struct {
	dirs     core.DirectoryProvider
	provider *media.Provider
	sink     *media.Sink
	cfg      SessionConfig

	logger zerolog.Logger

	mu       sync.Mutex
	role     domain.Role
	self     domain.UserID
	status   domain.Status
	err      error
	identity domain.Identity
	channel  domain.Identity
	started  bool
	torn     bool
	muted    bool
	cancel   context.CancelFunc
	peer     core.Peer
	call     core.Call
	bundle   *media.Bundle
	watchdog *time.Timer
	links    *links
	onChange func(SessionState)

	settled chan struct{}
	done    chan struct{}
}

// NewSession builds a session. provider is used by broadcasters and sink by
// viewers; either may be nil for the other role.
func NewSession(dirs core.DirectoryProvider, provider *media.Provider, sink *media.Sink, cfg SessionConfig) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	return &Session{
		dirs:     dirs,
		provider: provider,
		sink:     sink,
		cfg:      cfg,
		logger:   log.With().Str("module", "live.session").Logger(),
		status:   domain.StatusConnecting,
		links:    newLinks(),
		settled:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnChange sets the handler called after every state change.
func (s *Session) OnChange(fn func(SessionState)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() SessionState {
	st := SessionState{
		Role:     s.role,
		Status:   s.status,
		Err:      s.err,
		Identity: s.identity,
		Channel:  s.channel,
		Muted:    s.muted,
		Links:    s.links.len(),
	}
	if s.bundle != nil {
		st.Simulated = s.bundle.Simulated()
	}
	if s.provider != nil {
		st.Notice = s.provider.Notice()
	}
	return st
}

// Done is closed once the session reached a terminal status.
func (s *Session) Done() <-chan struct{} { return s.done }

// Settled waits until the session left connecting and returns the status
// it moved to.
func (s *Session) Settled(ctx context.Context) (domain.Status, error) {
	select {
	case <-s.settled:
		return s.State().Status, nil
	case <-ctx.Done():
		return s.State().Status, ctx.Err()
	}
}

// Start validates req and begins the rendezvous in the background.
func (s *Session) Start(ctx context.Context, req StartRequest) error {
	if !req.Role.Valid() {
		return domain.ErrInvalidRole
	}
	if err := req.Self.Validate(); err != nil {
		return err
	}
	if req.Role == domain.RoleViewer && req.Target == "" && req.Channel == "" {
		return fmt.Errorf("viewer needs a target: %w", domain.ErrStreamNotFound)
	}

	var id, channel domain.Identity
	switch req.Role {
	case domain.RoleBroadcaster:
		channel = domain.ResolveChannel(req.Channel, req.Self)
		id = channel
	case domain.RoleViewer:
		channel = domain.ResolveChannel(req.Channel, req.Target)
		id = domain.NewViewerIdentity(req.Self)
	}

	s.mu.Lock()
	if s.started || s.torn {
		s.mu.Unlock()
		return domain.ErrSessionStopped
	}
	s.started = true
	s.role = req.Role
	s.self = req.Self
	s.identity = id
	s.channel = channel
	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.logger = s.logger.With().Str("role", string(req.Role)).Str("channel", channel.String()).Logger()
	s.mu.Unlock()

	s.logger.Info().Str("identity", id.String()).Msg("session starting")
	go s.run(rctx, req.Role, id, channel)
	return nil
}

func (s *Session) run(ctx context.Context, role domain.Role, id, channel domain.Identity) {
	dir, err := s.dirs.Directory(ctx)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	peer, err := s.register(ctx, dir, role, id)
	if err != nil {
		s.fail(ctx, err)
		return
	}

	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		peer.Close()
		return
	}
	s.peer = peer
	s.identity = peer.ID()
	s.mu.Unlock()

	peer.OnDisconnected(func(err error) {
		s.logger.Warn().Err(err).Msg("directory connection lost")
		s.finish(domain.StatusDisconnected, nil)
	})

	switch role {
	case domain.RoleBroadcaster:
		s.transition(domain.StatusConnected, nil)
		s.broadcast(ctx, peer)
	case domain.RoleViewer:
		s.watch(ctx, peer, channel)
	}
}

// register claims id. Viewers retry collisions with a fresh identity when
// configured to.
func (s *Session) register(ctx context.Context, dir core.Directory, role domain.Role, id domain.Identity) (core.Peer, error) {
	attempts := 1
	if role == domain.RoleViewer && s.cfg.CollisionRetries > 0 {
		attempts += s.cfg.CollisionRetries
	}

	var err error
	for i := 0; i < attempts; i++ {
		var peer core.Peer
		peer, err = dir.Register(ctx, id)
		if err == nil {
			return peer, nil
		}
		if !errors.Is(err, domain.ErrUnavailableID) {
			return nil, err
		}
		s.logger.Warn().Str("identity", id.String()).Int("attempt", i+1).Msg("identity collision")
		if i+1 < attempts {
			id = domain.NewViewerIdentity(s.self)
		}
	}
	return nil, err
}

func (s *Session) broadcast(ctx context.Context, peer core.Peer) {
	var bundle *media.Bundle
	if s.provider != nil {
		bundle = s.provider.Acquire(ctx, s.cfg.AcquireTimeout)
	}

	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		bundle.Stop()
		return
	}
	s.bundle = bundle
	muted := s.muted
	s.mu.Unlock()

	if muted && bundle != nil {
		bundle.SetAudioMuted(true)
	}

	if bundle != nil {
		s.logger.Info().Bool("simulated", bundle.Simulated()).Msg("local media ready")
	}
	s.notify()

	peer.OnIncoming(func(c core.Call) {
		go s.answer(ctx, c, bundle)
	})
}

func (s *Session) answer(ctx context.Context, c core.Call, bundle *media.Bundle) {
	logger := s.logger.With().Str("call", c.ID()).Str("viewer", c.Remote().String()).Logger()

	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		c.Close()
		return
	}
	old := s.links.add(c)
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}

	c.OnClose(func() {
		if s.links.remove(c) {
			logger.Info().Msg("viewer left")
			s.notify()
		}
	})
	c.OnError(func(err error) {
		logger.Warn().Err(err).Msg("viewer call failed")
		c.Close()
	})

	var local []webrtc.TrackLocal
	if bundle != nil {
		local = bundle.Locals()
	}
	if err := c.Answer(ctx, local); err != nil {
		logger.Warn().Err(err).Msg("answer failed")
		c.Close()
		if s.links.remove(c) {
			s.notify()
		}
		return
	}
	logger.Info().Int("viewers", s.links.len()).Msg("viewer joined")
	s.notify()
}

func (s *Session) watch(ctx context.Context, peer core.Peer, channel domain.Identity) {
	deadline := time.Now().Add(s.cfg.ConnectTimeout)
	cctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	call, err := peer.Connect(cctx, channel, nil)
	if err != nil {
		s.fail(ctx, errors.Join(domain.ErrStreamNotFound, err))
		return
	}

	var (
		gotMu sync.Mutex
		got   bool
	)
	watchdog := time.AfterFunc(time.Until(deadline), func() {
		gotMu.Lock()
		defer gotMu.Unlock()
		if !got {
			s.finish(domain.StatusError, fmt.Errorf("no media within %s: %w", s.cfg.ConnectTimeout, domain.ErrStreamNotFound))
		}
	})

	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		watchdog.Stop()
		call.Close()
		return
	}
	s.call = call
	s.watchdog = watchdog
	s.mu.Unlock()

	call.OnTrack(func(t core.RemoteTrack) {
		gotMu.Lock()
		got = true
		gotMu.Unlock()
		s.logger.Info().Str("kind", t.Kind().String()).Msg("remote track")
		if s.sink != nil {
			s.sink.Attach(t)
		}
	})
	call.OnInterrupt(func() {
		s.logger.Info().Msg("remote interrupt")
		if s.sink != nil {
			s.sink.Interrupt()
		}
	})
	call.OnClose(func() {
		s.finish(domain.StatusDisconnected, nil)
	})
	call.OnError(func(err error) {
		s.finish(domain.StatusError, errors.Join(domain.ErrStreamNotFound, err))
	})

	s.transition(domain.StatusConnected, nil)
}

// Interrupt tells the other side to drop media it has not played yet.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	call := s.call
	s.mu.Unlock()
	if call != nil {
		return call.Interrupt()
	}
	return s.links.interruptAll()
}

// SetMuted silences audio. A viewer mutes its playback, a broadcaster
// stops sending audio without renegotiating.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	b := s.bundle
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.SetMuted(muted)
	}
	if b != nil {
		b.SetAudioMuted(muted)
	}
	s.notify()
}

// Stop tears the session down. It is safe from any status and more than
// once; results that arrive afterwards are released.
func (s *Session) Stop() {
	s.finish(domain.StatusDisconnected, nil)
}

// fail ends the session with err unless the run was cancelled by Stop.
func (s *Session) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		s.logger.Debug().Err(err).Msg("stale result dropped")
		return
	}
	s.logger.Error().Err(err).Msg("session failed")
	s.finish(domain.StatusError, err)
}

func (s *Session) finish(status domain.Status, err error) {
	s.transition(status, err)
	s.teardown()
}

func (s *Session) transition(next domain.Status, err error) {
	s.mu.Lock()
	if !s.status.CanTransition(next) {
		s.mu.Unlock()
		return
	}
	prev := s.status
	s.status = next
	s.err = err
	if prev == domain.StatusConnecting {
		close(s.settled)
	}
	if next.Terminal() {
		close(s.done)
	}
	st := s.stateLocked()
	fn := s.onChange
	s.mu.Unlock()

	s.logger.Info().Str("from", string(prev)).Str("to", string(next)).Msg("status")
	if fn != nil {
		fn(st)
	}
}

func (s *Session) notify() {
	s.mu.Lock()
	st := s.stateLocked()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// teardown releases everything the session holds. It runs once.
func (s *Session) teardown() {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return
	}
	s.torn = true
	cancel, peer, call, bundle, watchdog := s.cancel, s.peer, s.call, s.bundle, s.watchdog
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if watchdog != nil {
		watchdog.Stop()
	}
	s.links.closeAll()
	if call != nil {
		call.Close()
	}
	if s.provider != nil {
		s.provider.Release()
	}
	bundle.Stop()
	if peer != nil {
		peer.Close()
	}
	s.logger.Info().Msg("session torn down")
}
