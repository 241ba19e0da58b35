package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

// handleRelay forwards negotiation envelopes to their destination. Only an
// offer to an unknown identity is reported back; late answers, candidates
// and leaves for a peer that is already gone are dropped.
func (ctl *SignalWSController) handleRelay(ep core.Endpoint, msg core.Message) {
	err := ctl.Orch.Relay(ep, msg)
	if err == nil {
		return
	}

	if !errors.Is(err, domain.ErrPeerUnavailable) {
		log.Warn().Err(err).Str("module", "signal").Str("identity", ep.Identity().String()).Msg("relay")
		return
	}
	log.Info().
		Str("module", "signal").
		Str("identity", ep.Identity().String()).
		Str("dst", msg.Dst.String()).
		Str("type", string(msg.Type)).
		Msg("destination not registered")

	if msg.Type != core.MsgOffer {
		return
	}
	var call core.CallPayload
	_ = msg.Decode(&call)
	ctl.sendError(ep, core.ErrorPayload{
		Type:         core.ErrTypePeerUnavailable,
		Message:      "Could not connect to peer " + msg.Dst.String(),
		Peer:         msg.Dst,
		ConnectionID: call.ConnectionID,
	})
}
