package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/adapters/rtc"
	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

type peer struct {
	id     domain.Identity
	api    *webrtc.API
	rtcCfg webrtc.Configuration
	ws     *websocket.Conn
	send   chan []byte
	ping   time.Duration
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	inLoop atomic.Int32

	mu             sync.Mutex
	calls          map[string]*call
	onIncoming     func(core.Call)
	pending        []*call
	onDisconnected func(error)
	lost           error
	closed         bool
}

var _ core.Peer = (*peer)(nil)

func newPeer(id domain.Identity, ws *websocket.Conn, api *webrtc.API, cfg webrtc.Configuration, ping time.Duration) *peer {
	ctx, cancel := context.WithCancel(context.Background())
	return &peer{
		id:     id,
		api:    api,
		rtcCfg: cfg,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		ping:   ping,
		logger: log.With().Str("module", "directory").Str("identity", id.String()).Logger(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		calls:  make(map[string]*call),
	}
}

func (p *peer) start() {
	go p.writeLoop()
	go p.readLoop()
}

func (p *peer) ID() domain.Identity { return p.id }

func (p *peer) OnIncoming(fn func(core.Call)) {
	p.mu.Lock()
	p.onIncoming = fn
	held := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range held {
		fn(c)
	}
}

func (p *peer) OnDisconnected(fn func(error)) {
	p.mu.Lock()
	p.onDisconnected = fn
	lost := p.lost
	p.mu.Unlock()

	if lost != nil {
		fn(lost)
	}
}

// Connect offers a receive-only call to target, or a sending one when local
// tracks are given, and waits for the answer.
func (p *peer) Connect(ctx context.Context, target domain.Identity, local []webrtc.TrackLocal) (core.Call, error) {
	c := newCall(p, uuid.NewString(), target)
	conn, err := c.open(local)
	if err != nil {
		return nil, err
	}

	var recv []webrtc.RTPCodecType
	if len(local) == 0 {
		recv = []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio}
	}
	offer, err := conn.CreateOffer(ctx, recv...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}

	if !p.track(c) {
		c.Close()
		return nil, domain.ErrDirectoryClosed
	}
	if err := p.emit(core.MsgOffer, target, core.SDPPayload{ConnectionID: c.id, SDP: offer.SDP}); err != nil {
		c.Close()
		return nil, err
	}
	p.logger.Info().Str("call", c.id).Str("target", target.String()).Msg("offer sent")

	select {
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	case err := <-c.failed:
		c.Close()
		return nil, err
	case <-c.answered:
		return c, nil
	}
}

func (p *peer) track(c *call) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.calls[c.id] = c
	return true
}

func (p *peer) forget(id string) {
	p.mu.Lock()
	delete(p.calls, id)
	p.mu.Unlock()
}

func (p *peer) lookup(id string) (*call, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.calls[id]
	return c, ok
}

// emit queues an envelope for the write loop.
func (p *peer) emit(t core.MessageType, dst domain.Identity, payload any) error {
	msg, err := core.NewMessage(t, dst, payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-p.ctx.Done():
		return domain.ErrDirectoryClosed
	case p.send <- b:
		return nil
	}
}

func (p *peer) writeLoop() {
	var ping <-chan time.Time
	if p.ping > 0 {
		ticker := time.NewTicker(p.ping)
		defer ticker.Stop()
		ping = ticker.C
	}
	heartbeat, _ := json.Marshal(core.Message{Type: core.MsgPing})

	for {
		select {
		case <-p.ctx.Done():
			p.flush()
			_ = p.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			_ = p.ws.Close()
			return
		case <-ping:
			if err := p.write(heartbeat); err != nil {
				p.fromLoop(func() { p.disconnect(err) })
			}
		case b := <-p.send:
			if err := p.write(b); err != nil {
				p.fromLoop(func() { p.disconnect(err) })
			}
		}
	}
}

// flush writes whatever is still queued, typically leave notices.
func (p *peer) flush() {
	for {
		select {
		case b := <-p.send:
			if err := p.write(b); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (p *peer) write(b []byte) error {
	if err := p.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return p.ws.WriteMessage(websocket.TextMessage, b)
}

func (p *peer) readLoop() {
	defer close(p.done)
	for {
		var msg core.Message
		if err := p.ws.ReadJSON(&msg); err != nil {
			if p.ctx.Err() == nil {
				p.logger.Warn().Err(err).Msg("directory connection lost")
			}
			p.fromLoop(func() { p.disconnect(err) })
			return
		}
		p.fromLoop(func() { p.dispatch(msg) })
	}
}

// fromLoop runs fn on a read or write loop goroutine. Handlers reached from
// fn may close the peer, and that Close cannot wait for the loops.
func (p *peer) fromLoop(fn func()) {
	p.inLoop.Add(1)
	defer p.inLoop.Add(-1)
	fn()
}

func (p *peer) dispatch(msg core.Message) {
	switch msg.Type {
	case core.MsgPong, core.MsgOpen:
	case core.MsgOffer:
		p.handleOffer(msg)
	case core.MsgAnswer:
		var sdp core.SDPPayload
		if err := msg.Decode(&sdp); err != nil {
			p.logger.Error().Err(err).Msg("bad answer")
			return
		}
		if c, ok := p.lookup(sdp.ConnectionID); ok {
			c.handleAnswer(sdp.SDP)
		}
	case core.MsgCandidate:
		var cand core.CandidatePayload
		if err := msg.Decode(&cand); err != nil {
			p.logger.Error().Err(err).Msg("bad candidate")
			return
		}
		if c, ok := p.lookup(cand.ConnectionID); ok {
			c.handleCandidate(webrtc.ICECandidateInit{
				Candidate:     cand.Candidate,
				SDPMid:        cand.SDPMid,
				SDPMLineIndex: cand.SDPMLineIndex,
			})
		}
	case core.MsgLeave, core.MsgInterrupt:
		var cp core.CallPayload
		if err := msg.Decode(&cp); err != nil {
			p.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("bad payload")
			return
		}
		c, ok := p.lookup(cp.ConnectionID)
		if !ok {
			return
		}
		if msg.Type == core.MsgLeave {
			c.remoteClosed()
		} else {
			c.interrupted()
		}
	case core.MsgError:
		p.handleError(msg)
	default:
		p.logger.Warn().Str("type", string(msg.Type)).Msg("unknown envelope")
	}
}

func (p *peer) handleOffer(msg core.Message) {
	var sdp core.SDPPayload
	if err := msg.Decode(&sdp); err != nil || sdp.ConnectionID == "" {
		p.logger.Error().Err(err).Msg("bad offer")
		return
	}
	c := newCall(p, sdp.ConnectionID, msg.Src)
	c.offer = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp.SDP}
	if !p.track(c) {
		return
	}
	p.logger.Info().Str("call", c.id).Str("from", msg.Src.String()).Msg("incoming call")

	p.mu.Lock()
	fn := p.onIncoming
	if fn == nil {
		p.pending = append(p.pending, c)
	}
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (p *peer) handleError(msg core.Message) {
	var e core.ErrorPayload
	if err := msg.Decode(&e); err != nil {
		p.logger.Error().Err(err).Msg("bad error envelope")
		return
	}
	p.logger.Warn().Str("error_type", e.Type).Str("peer", e.Peer.String()).Msg(e.Message)

	if e.Type != core.ErrTypePeerUnavailable {
		return
	}
	err := fmt.Errorf("%w: %s", domain.ErrPeerUnavailable, e.Peer)
	if c, ok := p.lookup(e.ConnectionID); ok {
		c.fail(err)
		return
	}
	// no connection id: fail every pending call to that peer
	p.mu.Lock()
	var hit []*call
	for _, c := range p.calls {
		if c.remote == e.Peer {
			hit = append(hit, c)
		}
	}
	p.mu.Unlock()
	for _, c := range hit {
		c.fail(err)
	}
}

// disconnect records the loss of the directory connection once. Calls
// already negotiated keep their media.
func (p *peer) disconnect(cause error) {
	p.mu.Lock()
	if p.lost != nil {
		p.mu.Unlock()
		return
	}
	p.lost = errors.Join(domain.ErrDirectoryClosed, cause)
	fn := p.onDisconnected
	closing := p.closed
	lost := p.lost
	p.mu.Unlock()

	p.cancel()
	if fn != nil && !closing {
		fn(lost)
	}
}

func (p *peer) newConnection(callID string) (core.MediaConnection, error) {
	conn, err := rtc.NewWebRTCConnection(p.api, p.rtcCfg, callID)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Close hangs up every call, then leaves the directory.
func (p *peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	calls := make([]*call, 0, len(p.calls))
	for _, c := range p.calls {
		calls = append(calls, c)
	}
	p.mu.Unlock()

	for _, c := range calls {
		c.Close()
	}
	p.cancel()
	if p.inLoop.Load() == 0 {
		select {
		case <-p.done:
		case <-time.After(writeTimeout):
		}
	}
	p.logger.Info().Msg("left directory")
}
