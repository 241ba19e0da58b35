package live

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/tasteshift/live/internal/core/mocks"
	"github.com/tasteshift/live/internal/domain"
)

func comments(n int) []domain.Comment {
	out := make([]domain.Comment, n)
	for i := range out {
		out[i] = domain.Comment{Author: "ann", Text: fmt.Sprintf("c%d", i)}
	}
	return out
}

func TestPollDerivesViewers(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockRecordClient(ctrl)
	client.EXPECT().Fetch(gomock.Any(), domain.RecordID("r1")).
		Return(domain.LiveRecord{ID: "r1", Likes: 2, Comments: comments(3)}, nil).
		MinTimes(1)

	m := NewMetadataSync(client, domain.Backed{ID: "r1"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Poll(ctx, 20*time.Millisecond)
	}()

	waitFor(t, time.Second, func() bool { return m.Snapshot().Viewers == 6 })
	cancel()
	<-done

	snap := m.Snapshot()
	if snap.Likes != 2 || len(snap.Comments) != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestPollSurvivesMissingRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockRecordClient(ctrl)
	client.EXPECT().Fetch(gomock.Any(), gomock.Any()).
		Return(domain.LiveRecord{}, domain.ErrRecordNotFound).
		MinTimes(3)

	m := NewMetadataSync(client, domain.Backed{ID: "gone"}, WithJitter(func() int { return 1 }))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Poll(ctx, 5*time.Millisecond)
	}()

	last := 0
	waitFor(t, time.Second, func() bool {
		v := m.Snapshot().Viewers
		if v < last {
			t.Fatalf("viewer count went down: %d after %d", v, last)
		}
		last = v
		return v >= 4
	})
	cancel()
	<-done
}

func TestEphemeralMakesNoCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	// any call on the mock fails the test
	client := mocks.NewMockRecordClient(ctrl)

	m := NewMetadataSync(client, domain.Ephemeral{}, WithSimulateInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	go m.Poll(ctx, time.Millisecond)
	defer cancel()

	m.PostComment(ctx, "ann", "hello")
	m.PostLike(ctx)
	m.Wait()

	snap := m.Snapshot()
	if len(snap.Comments) != 1 || snap.Comments[0].Text != "hello" {
		t.Fatalf("comment not shown: %+v", snap.Comments)
	}
	if snap.Likes != 1 {
		t.Fatalf("expected 1 like, got %d", snap.Likes)
	}
}

func TestNilClientIsEphemeral(t *testing.T) {
	m := NewMetadataSync(nil, domain.Backed{ID: "r1"})
	m.PostComment(context.Background(), "ann", "hi")
	m.Wait()
	if len(m.Snapshot().Comments) != 1 {
		t.Fatal("comment not shown")
	}
}

func TestEphemeralChurnFloor(t *testing.T) {
	m := NewMetadataSync(nil, domain.Ephemeral{}, WithSimulateInterval(2*time.Millisecond), WithJitter(func() int { return -1 }))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	m.Poll(ctx, 0)
	if v := m.Snapshot().Viewers; v != 1 {
		t.Fatalf("viewer count must not drop below 1, got %d", v)
	}
}

func TestPostIsOptimistic(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockRecordClient(ctrl)
	client.EXPECT().AppendComment(gomock.Any(), domain.RecordID("r1"), "ann", "yum").Return(errors.New("offline"))
	client.EXPECT().IncrementLike(gomock.Any(), domain.RecordID("r1")).Return(errors.New("offline"))

	m := NewMetadataSync(client, domain.Backed{ID: "r1"})
	var seen []domain.LiveMetadata
	m.OnChange(func(md domain.LiveMetadata) { seen = append(seen, md) })

	ctx, cancel := context.WithCancel(context.Background())
	m.PostComment(ctx, "ann", "yum")
	m.PostLike(ctx)
	// the caller going away must not cancel the writes
	cancel()
	m.Wait()

	if len(seen) != 2 {
		t.Fatalf("expected 2 change events, got %d", len(seen))
	}
	snap := m.Snapshot()
	if snap.Likes != 1 || len(snap.Comments) != 1 {
		t.Fatalf("failed writes must not roll back: %+v", snap)
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name         string
		localLikes   int
		localCount   int
		remote       domain.LiveRecord
		wantLikes    int
		wantComments int
		wantViewers  int
	}{
		{"remote ahead", 0, 0, domain.LiveRecord{Likes: 3, Comments: comments(2)}, 3, 2, 6},
		{"stale remote keeps optimistic state", 4, 3, domain.LiveRecord{Likes: 1, Comments: comments(1)}, 4, 3, 8},
		{"empty record", 0, 0, domain.LiveRecord{}, 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetadataSync(nil, domain.Ephemeral{})
			m.likes = tt.localLikes
			m.comments = comments(tt.localCount)

			m.merge(tt.remote)

			snap := m.Snapshot()
			if snap.Likes != tt.wantLikes || len(snap.Comments) != tt.wantComments || snap.Viewers != tt.wantViewers {
				t.Fatalf("got %+v", snap)
			}
		})
	}
}

func TestRecentComments(t *testing.T) {
	m := NewMetadataSync(nil, domain.Ephemeral{})
	for i := 0; i < 15; i++ {
		m.PostComment(context.Background(), "ann", fmt.Sprintf("c%d", i))
	}
	got := m.Snapshot().Comments
	if len(got) != RecentComments {
		t.Fatalf("expected %d comments, got %d", RecentComments, len(got))
	}
	if got[0].Text != "c5" || got[len(got)-1].Text != "c14" {
		t.Fatalf("expected the latest comments in order, got %q..%q", got[0].Text, got[len(got)-1].Text)
	}
}
