package orch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/app"
	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Orchestrator is the directory: it owns identity registration and relays
// envelopes between registered endpoints.
type Orchestrator struct {
	Registry *app.Registry
	Policy   app.Policy
}

func New(policy app.Policy) *Orchestrator {
	return &Orchestrator{Registry: app.NewRegistry(), Policy: policy}
}

// Register claims id for conn. The caller gets domain.ErrUnavailableID when
// another endpoint already holds it.
func (o *Orchestrator) Register(id domain.Identity, conn core.SignalConnection, cancel func()) (core.Endpoint, error) {
	ep := core.NewEndpoint(id, conn)
	if !o.Registry.Claim(ep, cancel) {
		return nil, domain.ErrUnavailableID
	}
	return ep, nil
}

func (o *Orchestrator) Unregister(ep core.Endpoint) {
	o.Registry.Release(ep)
}

// Relay forwards msg from src to msg.Dst. Src is always overwritten with the
// sender's registered identity.
func (o *Orchestrator) Relay(src core.Endpoint, msg core.Message) error {
	dst, ok := o.Registry.Lookup(msg.Dst)
	if !ok {
		return domain.ErrPeerUnavailable
	}
	msg.Src = src.Identity()
	if err := o.Send(dst, msg); err != nil {
		return fmt.Errorf("relay %s to %s: %w", msg.Type, msg.Dst, err)
	}
	return nil
}

// Send writes msg to ep and applies the backpressure policy when the
// endpoint is not draining its queue.
func (o *Orchestrator) Send(ep core.Endpoint, msg core.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	err = ep.Signal().TrySend(b)
	if err == nil || !errors.Is(err, ErrBackpressure) || o.Policy == nil {
		return err
	}

	switch o.Policy.OnBackPressure(ep, msg.Type) {
	case app.KickPeer:
		log.Warn().Str("module", "orch").Str("identity", ep.Identity().String()).Str("type", string(msg.Type)).Msg("slow peer kicked")
		o.Kick(ep.Identity())
	case app.DropFrame, app.NoAction:
		log.Debug().Str("module", "orch").Str("identity", ep.Identity().String()).Str("type", string(msg.Type)).Msg("frame dropped")
	}
	return err
}

// Channels lists the registered broadcast channels, viewers excluded.
func (o *Orchestrator) Channels() []domain.Identity {
	var out []domain.Identity
	for _, id := range o.Registry.Identities() {
		if !id.IsViewer() {
			out = append(out, id)
		}
	}
	return out
}

// Kick cancels the endpoint's connection; its read loop then unregisters it.
func (o *Orchestrator) Kick(id domain.Identity) {
	o.Registry.Cancel(id)
}
