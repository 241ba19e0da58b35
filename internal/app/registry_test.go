package app

import (
	"testing"

	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func TestRegistryClaimRelease(t *testing.T) {
	r := NewRegistry()
	first := core.NewEndpoint("tasteshift-u1", nopConn{})
	second := core.NewEndpoint("tasteshift-u1", nopConn{})

	if !r.Claim(first, nil) {
		t.Fatal("first claim must succeed")
	}
	if r.Claim(second, nil) {
		t.Fatal("identity held by another endpoint must be refused")
	}
	if r.Release(second) {
		t.Fatal("a refused endpoint must not release the holder")
	}
	if got, _ := r.Lookup("tasteshift-u1"); got != first {
		t.Fatal("lookup should return the holder")
	}

	if !r.Release(first) {
		t.Fatal("holder release should succeed")
	}
	if !r.Claim(second, nil) {
		t.Fatal("identity should be claimable after release")
	}
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	canceled := false
	r.Claim(core.NewEndpoint("viewer-u1-aaaaaa", nopConn{}), func() { canceled = true })

	if r.Cancel("viewer-u1-bbbbbb") {
		t.Fatal("unknown identity cannot be canceled")
	}
	if !r.Cancel("viewer-u1-aaaaaa") || !canceled {
		t.Fatal("cancel func not invoked")
	}
}

func TestRegistryIdentitiesSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		r.Claim(core.NewEndpoint(domain.Identity(id), nopConn{}), nil)
	}
	got := r.Identities()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestSimplePolicy(t *testing.T) {
	tests := []struct {
		msg  core.MessageType
		want BackpressureAction
	}{
		{core.MsgOffer, KickPeer},
		{core.MsgAnswer, KickPeer},
		{core.MsgInterrupt, KickPeer},
		{core.MsgCandidate, DropFrame},
		{core.MsgPong, DropFrame},
	}
	for _, tt := range tests {
		t.Run(string(tt.msg), func(t *testing.T) {
			if got := (SimplePolicy{}).OnBackPressure(nil, tt.msg); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
