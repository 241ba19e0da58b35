package app

import "github.com/tasteshift/live/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickPeer
)

// Policy decides what happens to an endpoint whose send queue is full.
type Policy interface {
	OnBackPressure(slow core.Endpoint, msg core.MessageType) BackpressureAction
}

// SimplePolicy kicks peers that fall behind on session negotiation and
// drops everything else.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ core.Endpoint, msg core.MessageType) BackpressureAction {
	switch msg {
	case core.MsgOffer, core.MsgAnswer, core.MsgInterrupt:
		return KickPeer
	default:
		return DropFrame
	}
}
