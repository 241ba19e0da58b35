package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/app/orch"
	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

var ErrConnClosed = errors.New("connection closed")

type SignalWSController struct {
	Orch       *orch.Orchestrator
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewSignalWSController(o *orch.Orchestrator, readLimit int64, pingPeriod time.Duration) *SignalWSController {
	return &SignalWSController{
		Orch:       o,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return orch.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and registers the identity given in the
// id query parameter. A taken or malformed identity is refused with an
// error envelope and the socket is closed.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := domain.Identity(c.Query("id"))
	log.Info().Str("module", "signal").Str("identity", id.String()).Str("client", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	if err := id.Validate(); err != nil {
		refuse(ws, core.ErrTypeInvalidID, "identity must be letters, digits, '-', '_' or '.'")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, sendBuffer),
	}
	ctx, cancel := context.WithCancel(ctx)

	ep, err := ctl.Orch.Register(id, conn, cancel)
	if err != nil {
		cancel()
		refuse(ws, core.ErrTypeUnavailableID, "ID \""+id.String()+"\" is taken")
		return
	}

	go ctl.writePump(ctx, conn)
	ctl.send(ep, core.MsgOpen, core.OpenPayload{ID: id})
	go ctl.readPump(ctx, cancel, ep, conn)
}

// refuse writes a single error envelope synchronously and closes ws.
func refuse(ws *websocket.Conn, errType, text string) {
	msg, err := core.NewMessage(core.MsgError, "", core.ErrorPayload{Type: errType, Message: text})
	if err == nil {
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := ws.WriteJSON(msg); err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("refuse write")
		}
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, errType),
		time.Now().Add(writeTimeout))
	_ = ws.Close()
	log.Info().Str("module", "signal").Str("reason", errType).Msg("connection refused")
}
