package orch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/tasteshift/live/internal/app"
	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

type fakeConn struct {
	full   bool
	frames []core.Frame
}

func (c *fakeConn) TrySend(f core.Frame) error {
	if c.full {
		return ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) last(t *testing.T) core.Message {
	t.Helper()
	if len(c.frames) == 0 {
		t.Fatal("nothing sent")
	}
	var msg core.Message
	if err := json.Unmarshal(c.frames[len(c.frames)-1], &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestRegisterCollision(t *testing.T) {
	o := New(app.SimplePolicy{})
	if _, err := o.Register("tasteshift-u1", &fakeConn{}, nil); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := o.Register("tasteshift-u1", &fakeConn{}, nil); !errors.Is(err, domain.ErrUnavailableID) {
		t.Fatalf("expected ErrUnavailableID, got %v", err)
	}
}

func TestRelay(t *testing.T) {
	o := New(app.SimplePolicy{})
	bconn, vconn := &fakeConn{}, &fakeConn{}
	o.Register("tasteshift-u1", bconn, nil)
	viewer, _ := o.Register("viewer-u2-abcdef", vconn, nil)

	msg, _ := core.NewMessage(core.MsgOffer, "tasteshift-u1", core.SDPPayload{ConnectionID: "c1"})
	if err := o.Relay(viewer, msg); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if got := bconn.last(t); got.Src != "viewer-u2-abcdef" || got.Type != core.MsgOffer {
		t.Fatalf("unexpected relayed message %+v", got)
	}

	msg.Dst = "tasteshift-gone"
	if err := o.Relay(viewer, msg); !errors.Is(err, domain.ErrPeerUnavailable) {
		t.Fatalf("expected ErrPeerUnavailable, got %v", err)
	}
}

func TestBackpressureKicksOnNegotiation(t *testing.T) {
	o := New(app.SimplePolicy{})
	kicked := false
	slow := &fakeConn{full: true}
	o.Register("tasteshift-u1", slow, func() { kicked = true })
	viewer, _ := o.Register("viewer-u2-abcdef", &fakeConn{}, nil)

	candidate, _ := core.NewMessage(core.MsgCandidate, "tasteshift-u1", core.CandidatePayload{ConnectionID: "c1"})
	if err := o.Relay(viewer, candidate); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("expected backpressure, got %v", err)
	}
	if kicked {
		t.Fatal("a dropped candidate must not kick the peer")
	}

	offer, _ := core.NewMessage(core.MsgOffer, "tasteshift-u1", core.SDPPayload{ConnectionID: "c1"})
	_ = o.Relay(viewer, offer)
	if !kicked {
		t.Fatal("slow peer should be kicked on a stuck offer")
	}
}

func TestChannels(t *testing.T) {
	o := New(app.SimplePolicy{})
	if got := o.Channels(); len(got) != 0 {
		t.Fatalf("empty directory lists %v", got)
	}
	for _, id := range []domain.Identity{"viewer-u2-abcdef", "tasteshift-u3", "tasteshift-u1", "viewer-u1-123456"} {
		if _, err := o.Register(id, &fakeConn{}, nil); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	got := o.Channels()
	want := []domain.Identity{"tasteshift-u1", "tasteshift-u3"}
	if len(got) != len(want) {
		t.Fatalf("channels = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("channels = %v, want %v", got, want)
		}
	}
}
