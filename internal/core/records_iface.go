package core

import (
	"context"
	"time"

	"github.com/tasteshift/live/internal/domain"
)

//go:generate mockgen -source=records_iface.go -destination=mocks/records_mock.go -package=mocks

// RecordClient is what a live view needs from the document store.
// domain.ErrRecordNotFound is returned for unknown ids.
type RecordClient interface {
	Fetch(ctx context.Context, id domain.RecordID) (domain.LiveRecord, error)
	AppendComment(ctx context.Context, id domain.RecordID, author, text string) error
	IncrementLike(ctx context.Context, id domain.RecordID) error
}

// RecordStore is the server side persistence of live records.
type RecordStore interface {
	Create(ctx context.Context, rec domain.LiveRecord) (domain.LiveRecord, error)
	Get(ctx context.Context, id domain.RecordID) (domain.LiveRecord, error)
	// List returns live records first, newest first.
	List(ctx context.Context) ([]domain.LiveRecord, error)
	Delete(ctx context.Context, id domain.RecordID) error
	AppendComment(ctx context.Context, id domain.RecordID, c domain.Comment) (domain.Comment, error)
	IncrementLike(ctx context.Context, id domain.RecordID) (int, error)
	// Purge drops records created before cutoff and reports how many went.
	Purge(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
