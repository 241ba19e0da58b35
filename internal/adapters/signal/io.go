package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/core"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var ping <-chan time.Time
	if ctl.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, ep core.Endpoint, c *WsSignalConn) {
	id := ep.Identity().String()
	defer func() {
		log.Info().Str("module", "signal").Str("identity", id).Msg("readPump closing")
		ctl.Orch.Unregister(ep)
		cancel()
		c.Close()
	}()

	if ctl.PingPeriod > 0 {
		wait := ctl.PingPeriod * 2
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("identity", id).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "signal").Str("identity", id).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ep, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ep core.Endpoint, data []byte) {
	var msg core.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(ep, core.ErrorPayload{Type: core.ErrTypeBadMessage, Message: "malformed envelope"})
		return
	}

	switch msg.Type {
	case core.MsgPing:
		ctl.handlePing(ep)
	case core.MsgOffer, core.MsgAnswer, core.MsgCandidate, core.MsgLeave, core.MsgInterrupt:
		ctl.handleRelay(ep, msg)
	default:
		log.Warn().Str("module", "signal").Str("type", string(msg.Type)).Msg("unknown signal")
		ctl.sendError(ep, core.ErrorPayload{Type: core.ErrTypeBadMessage, Message: "unknown type " + string(msg.Type)})
	}
}

func (ctl *SignalWSController) send(ep core.Endpoint, t core.MessageType, payload any) {
	msg, err := core.NewMessage(t, "", payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send marshal")
		return
	}
	if err := ctl.Orch.Send(ep, msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("identity", ep.Identity().String()).Str("type", string(t)).Msg("send")
	}
}

func (ctl *SignalWSController) sendError(ep core.Endpoint, p core.ErrorPayload) {
	ctl.send(ep, core.MsgError, p)
}
