package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

// call is one PeerConnection negotiated through the directory. Events that
// happen before a handler is registered are replayed to it.
type call struct {
	id     string
	remote domain.Identity
	peer   *peer
	offer  *webrtc.SessionDescription

	answered   chan struct{}
	answerOnce sync.Once
	failed     chan error

	mu          sync.Mutex
	media       core.MediaConnection
	tracks      []core.RemoteTrack
	onTrack     func(core.RemoteTrack)
	onClose     func()
	onError     func(error)
	onInterrupt func()
	err         error
	closed      bool
}

var _ core.Call = (*call)(nil)

func newCall(p *peer, id string, remote domain.Identity) *call {
	return &call{
		id:       id,
		remote:   remote,
		peer:     p,
		answered: make(chan struct{}),
		failed:   make(chan error, 1),
	}
}

func (c *call) ID() string              { return c.id }
func (c *call) Remote() domain.Identity { return c.remote }

// open creates the PeerConnection and attaches the local tracks.
func (c *call) open(local []webrtc.TrackLocal) (core.MediaConnection, error) {
	conn, err := c.peer.newConnection(c.id)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	conn.OnTrack(func(_ context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.addTrack(track)
	})
	conn.OnClosed(c.remoteClosed)
	if err := conn.Start(c.peer.ctx); err != nil {
		conn.Close()
		return nil, err
	}
	for _, t := range local {
		if _, err := conn.AddLocalTrack(t); err != nil {
			conn.Close()
			return nil, fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
	}

	c.mu.Lock()
	c.media = conn
	c.mu.Unlock()
	return conn, nil
}

// Answer accepts an incoming call with the given local tracks.
func (c *call) Answer(ctx context.Context, local []webrtc.TrackLocal) error {
	if c.offer == nil {
		return fmt.Errorf("call %s: nothing to answer", c.id)
	}
	conn, err := c.open(local)
	if err != nil {
		c.fail(err)
		return err
	}

	answer, err := conn.ApplyOfferAndCreateAnswer(ctx, *c.offer)
	if err != nil {
		if ctx.Err() != nil {
			c.Close()
			return ctx.Err()
		}
		err = fmt.Errorf("answer %s: %w", c.id, err)
		c.fail(err)
		return err
	}

	if err := c.peer.emit(core.MsgAnswer, c.remote, core.SDPPayload{ConnectionID: c.id, SDP: answer.SDP}); err != nil {
		c.fail(err)
		return err
	}
	c.answerOnce.Do(func() { close(c.answered) })
	c.peer.logger.Info().Str("call", c.id).Str("to", c.remote.String()).Msg("answer sent")
	return nil
}

func (c *call) handleAnswer(sdp string) {
	c.mu.Lock()
	conn := c.media
	c.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return
	}
	if err := conn.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		c.fail(fmt.Errorf("apply answer: %w", err))
		return
	}
	c.answerOnce.Do(func() { close(c.answered) })
}

func (c *call) handleCandidate(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	conn := c.media
	c.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return
	}
	if err := conn.AddICECandidate(ci); err != nil {
		c.peer.logger.Warn().Err(err).Str("call", c.id).Msg("add candidate")
	}
}

func (c *call) addTrack(t core.RemoteTrack) {
	c.mu.Lock()
	fn := c.onTrack
	if fn == nil {
		c.tracks = append(c.tracks, t)
	}
	c.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

func (c *call) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	held := c.tracks
	c.tracks = nil
	c.mu.Unlock()
	for _, t := range held {
		fn(t)
	}
}

func (c *call) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	closed := c.closed
	c.mu.Unlock()
	if closed {
		fn()
	}
}

func (c *call) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	err := c.err
	c.mu.Unlock()
	if err != nil {
		fn(err)
	}
}

func (c *call) OnInterrupt(fn func()) {
	c.mu.Lock()
	c.onInterrupt = fn
	c.mu.Unlock()
}

func (c *call) Interrupt() error {
	return c.peer.emit(core.MsgInterrupt, c.remote, core.CallPayload{ConnectionID: c.id})
}

func (c *call) interrupted() {
	c.mu.Lock()
	fn := c.onInterrupt
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// fail records the first error, reports it and closes the call.
func (c *call) fail(err error) {
	c.mu.Lock()
	if c.err != nil || c.closed {
		c.mu.Unlock()
		return
	}
	c.err = err
	fn := c.onError
	c.mu.Unlock()

	select {
	case c.failed <- err:
	default:
	}
	if fn != nil {
		fn(err)
	}
	c.shutdown(true)
}

func (c *call) remoteClosed() { c.shutdown(false) }

// Close hangs up and tells the remote side.
func (c *call) Close() { c.shutdown(true) }

// shutdown runs once; closing the media connection re-enters it through
// OnClosed and returns early.
func (c *call) shutdown(notify bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.media
	fn := c.onClose
	c.mu.Unlock()

	c.peer.forget(c.id)
	if notify {
		_ = c.peer.emit(core.MsgLeave, c.remote, core.CallPayload{ConnectionID: c.id})
	}
	if conn != nil {
		conn.Close()
	}
	if fn != nil {
		fn()
	}
}
