package directory

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/tasteshift/live/internal/adapters/rtc"
	"github.com/tasteshift/live/internal/adapters/signal"
	"github.com/tasteshift/live/internal/app"
	"github.com/tasteshift/live/internal/app/orch"
	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
	"github.com/tasteshift/live/internal/media"
)

// loopbackBuild lets two peers in one process reach each other without
// STUN.
func loopbackBuild() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, err
	}
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir), webrtc.WithSettingEngine(se)), nil
}

func newDirectory(t *testing.T) core.Directory {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctl := signal.NewSignalWSController(orch.New(app.SimplePolicy{}), 1<<20, 0)
	r := gin.New()
	r.GET("/api/ws/directory", func(c *gin.Context) { ctl.HandleSignal(context.Background(), c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	p := NewProvider(rtc.NewLoader(loopbackBuild), Config{
		URL:          "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/directory",
		PingInterval: time.Second,
	})
	d, err := p.Directory(context.Background())
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}
	return d
}

func mustRegister(t *testing.T, d core.Directory, id domain.Identity) core.Peer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := d.Register(ctx, id)
	if err != nil {
		t.Fatalf("Register %s: %v", id, err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestRegister(t *testing.T) {
	d := newDirectory(t)
	p := mustRegister(t, d, "tasteshift-u1")
	if p.ID() != "tasteshift-u1" {
		t.Fatalf("unexpected id %q", p.ID())
	}

	_, err := d.Register(context.Background(), "tasteshift-u1")
	if !errors.Is(err, domain.ErrUnavailableID) {
		t.Fatalf("expected ErrUnavailableID, got %v", err)
	}

	_, err = d.Register(context.Background(), "not valid")
	if !errors.Is(err, domain.ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestProviderLibraryFailure(t *testing.T) {
	p := NewProvider(rtc.NewLoader(func() (*webrtc.API, error) {
		return nil, errors.New("boom")
	}), Config{URL: "ws://127.0.0.1:1/api/ws/directory"})

	if _, err := p.Directory(context.Background()); !errors.Is(err, domain.ErrLibraryUnavailable) {
		t.Fatalf("expected ErrLibraryUnavailable, got %v", err)
	}
}

func TestRegisterUnreachable(t *testing.T) {
	p := NewProvider(rtc.NewLoader(loopbackBuild), Config{URL: "ws://127.0.0.1:1/api/ws/directory"})
	d, err := p.Directory(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Register(context.Background(), "viewer-u1-abcdef"); !errors.Is(err, domain.ErrDirectoryClosed) {
		t.Fatalf("expected ErrDirectoryClosed, got %v", err)
	}
}

func TestConnectUnknownPeer(t *testing.T) {
	d := newDirectory(t)
	viewer := mustRegister(t, d, "viewer-u2-abcdef")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := viewer.Connect(ctx, "tasteshift-nobody", nil)
	if !errors.Is(err, domain.ErrPeerUnavailable) {
		t.Fatalf("expected ErrPeerUnavailable, got %v", err)
	}
}

func TestCallLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("negotiates real peer connections")
	}
	d := newDirectory(t)
	broadcaster := mustRegister(t, d, "tasteshift-u1")
	viewer := mustRegister(t, d, "viewer-u2-abcdef")

	bundle, err := media.Synthesize(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer bundle.Stop()

	inbound := make(chan core.Call, 1)
	broadcaster.OnIncoming(func(c core.Call) {
		if err := c.Answer(context.Background(), bundle.Locals()); err != nil {
			t.Errorf("Answer: %v", err)
			return
		}
		inbound <- c
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	call, err := viewer.Connect(ctx, broadcaster.ID(), nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if call.Remote() != broadcaster.ID() {
		t.Fatalf("unexpected remote %q", call.Remote())
	}

	tracks := make(chan core.RemoteTrack, 2)
	call.OnTrack(func(tr core.RemoteTrack) { tracks <- tr })

	select {
	case tr := <-tracks:
		if tr.Kind() != webrtc.RTPCodecTypeAudio {
			t.Fatalf("only the silent audio carries samples, got %s", tr.Kind())
		}
	case <-ctx.Done():
		t.Fatal("no remote track")
	}

	var served core.Call
	select {
	case served = <-inbound:
	case <-ctx.Done():
		t.Fatal("broadcaster never answered")
	}

	interrupted := make(chan struct{}, 1)
	call.OnInterrupt(func() { interrupted <- struct{}{} })
	if err := served.Interrupt(); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}
	select {
	case <-interrupted:
	case <-ctx.Done():
		t.Fatal("interrupt not delivered")
	}

	hungUp := make(chan struct{})
	served.OnClose(func() { close(hungUp) })
	call.Close()
	select {
	case <-hungUp:
	case <-ctx.Done():
		t.Fatal("broadcaster side not closed after viewer left")
	}
}

func TestCloseFromLeaveHandlerDoesNotStall(t *testing.T) {
	if testing.Short() {
		t.Skip("negotiates real peer connections")
	}
	d := newDirectory(t)
	broadcaster := mustRegister(t, d, "tasteshift-u3")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	viewer, err := d.Register(ctx, "viewer-u4-abcdef")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer viewer.Close()

	bundle, err := media.Synthesize(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer bundle.Stop()

	served := make(chan core.Call, 1)
	broadcaster.OnIncoming(func(c core.Call) {
		if err := c.Answer(context.Background(), bundle.Locals()); err != nil {
			t.Errorf("Answer: %v", err)
			return
		}
		served <- c
	})

	call, err := viewer.Connect(ctx, broadcaster.ID(), nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// The handler closes the whole peer the way a session teardown does.
	took := make(chan time.Duration, 1)
	call.OnClose(func() {
		start := time.Now()
		viewer.Close()
		took <- time.Since(start)
	})

	var c core.Call
	select {
	case c = <-served:
	case <-ctx.Done():
		t.Fatal("broadcaster never answered")
	}

	// leave only, the broadcaster's PeerConnection stays up
	bp := broadcaster.(*peer)
	if err := bp.emit(core.MsgLeave, viewer.ID(), core.CallPayload{ConnectionID: c.ID()}); err != nil {
		t.Fatalf("emit leave: %v", err)
	}

	select {
	case elapsed := <-took:
		if elapsed >= writeTimeout/2 {
			t.Fatalf("Close inside the leave handler took %s", elapsed)
		}
	case <-ctx.Done():
		t.Fatal("leave never reached the viewer call")
	}
}
