package rtc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/tasteshift/live/internal/domain"
)

func TestLoaderMemoizes(t *testing.T) {
	var builds atomic.Int32
	l := NewLoader(func() (*webrtc.API, error) {
		builds.Add(1)
		time.Sleep(10 * time.Millisecond)
		return webrtc.NewAPI(), nil
	})

	var wg sync.WaitGroup
	apis := make([]*webrtc.API, 8)
	for i := range apis {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			api, err := l.Load(context.Background())
			if err != nil {
				t.Errorf("Load: %v", err)
			}
			apis[i] = api
		}(i)
	}
	wg.Wait()

	if got := builds.Load(); got != 1 {
		t.Fatalf("expected one build, got %d", got)
	}
	for _, api := range apis[1:] {
		if api != apis[0] {
			t.Fatal("every caller must get the same instance")
		}
	}
}

func TestLoaderRemembersFailure(t *testing.T) {
	var builds atomic.Int32
	l := NewLoader(func() (*webrtc.API, error) {
		builds.Add(1)
		return nil, errors.New("no codecs")
	})

	for i := 0; i < 3; i++ {
		_, err := l.Load(context.Background())
		if !errors.Is(err, domain.ErrLibraryUnavailable) {
			t.Fatalf("expected ErrLibraryUnavailable, got %v", err)
		}
	}
	if got := builds.Load(); got != 1 {
		t.Fatalf("expected the failure to be memoized, got %d builds", got)
	}
}

func TestLoaderContextCancelled(t *testing.T) {
	release := make(chan struct{})
	l := NewLoader(func() (*webrtc.API, error) {
		<-release
		return webrtc.NewAPI(), nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Load(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDefaultBuild(t *testing.T) {
	api, err := DefaultBuild()
	if err != nil {
		t.Fatalf("DefaultBuild: %v", err)
	}
	pc, err := api.NewPeerConnection(WebRTCConfig(nil))
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	_ = pc.Close()
}
