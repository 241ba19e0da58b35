package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tasteshift/live/internal/domain"
)

type fakeLobby struct {
	recs    []domain.LiveRecord
	deleted []domain.RecordID
	err     error
}

func (l *fakeLobby) Create(_ context.Context, rec domain.LiveRecord) (domain.LiveRecord, error) {
	if l.err != nil {
		return domain.LiveRecord{}, l.err
	}
	rec.ID = domain.RecordID("r" + string(rune('0'+len(l.recs))))
	rec.CreatedAt = time.Now()
	l.recs = append(l.recs, rec)
	return rec, nil
}

func (l *fakeLobby) List(context.Context) ([]domain.LiveRecord, error) {
	return l.recs, l.err
}

func (l *fakeLobby) Delete(_ context.Context, id domain.RecordID, _ domain.UserID) error {
	if l.err != nil {
		return l.err
	}
	l.deleted = append(l.deleted, id)
	return nil
}

func TestGoLiveThenFind(t *testing.T) {
	lobby := &fakeLobby{}
	ctx := context.Background()

	rec, err := GoLive(ctx, lobby, "chef", "")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.IsLive || rec.ChannelID != domain.BroadcastChannel("chef") {
		t.Fatalf("unexpected record %+v", rec)
	}

	found, err := FindLive(ctx, lobby, "chef")
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != rec.ID || found.Channel() != rec.Channel() {
		t.Fatalf("found %+v, want %+v", found, rec)
	}

	if err := EndLive(ctx, lobby, rec); err != nil {
		t.Fatal(err)
	}
	if len(lobby.deleted) != 1 || lobby.deleted[0] != rec.ID {
		t.Fatalf("unexpected deletes %v", lobby.deleted)
	}
}

func TestFindLive(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	lobby := &fakeLobby{recs: []domain.LiveRecord{
		{ID: "a", UserID: "chef", IsLive: false, CreatedAt: time.Now()},
		{ID: "b", UserID: "chef", IsLive: true, CreatedAt: old},
		{ID: "c", UserID: "chef", IsLive: true, ChannelID: "studio", CreatedAt: old.Add(time.Minute)},
		{ID: "d", UserID: "other", IsLive: true, CreatedAt: time.Now()},
	}}

	tests := []struct {
		name    string
		target  domain.UserID
		want    domain.RecordID
		channel domain.Identity
		err     error
	}{
		{"newest live record", "chef", "c", "studio", nil},
		{"other user", "other", "d", domain.BroadcastChannel("other"), nil},
		{"not live", "nobody", "", "", domain.ErrLiveEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindLive(context.Background(), lobby, tt.target)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if err != nil {
				if domain.Reason(err) != "Live stream ended or not found" {
					t.Fatalf("unexpected reason %q", domain.Reason(err))
				}
				return
			}
			if got.ID != tt.want || got.Channel() != tt.channel {
				t.Fatalf("got %s/%s", got.ID, got.Channel())
			}
		})
	}
}

func TestEndLiveAlreadyGone(t *testing.T) {
	lobby := &fakeLobby{err: domain.ErrRecordNotFound}
	if err := EndLive(context.Background(), lobby, domain.LiveRecord{ID: "x", UserID: "chef"}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	lobby.err = domain.ErrForbidden
	if err := EndLive(context.Background(), lobby, domain.LiveRecord{ID: "x", UserID: "chef"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
