package signal

import "github.com/tasteshift/live/internal/core"

func (ctl *SignalWSController) handlePing(ep core.Endpoint) {
	ctl.send(ep, core.MsgPong, nil)
}
