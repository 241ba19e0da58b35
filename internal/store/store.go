// Package store keeps live records for the records API.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Open returns the store selected by driver. path is only used by sqlite.
func Open(driver, path string) (core.RecordStore, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemStore(), nil
	case DriverSQLite:
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func newID() string { return ulid.Make().String() }

// prepare fills the fields a new record gets from the store.
func prepare(rec domain.LiveRecord) domain.LiveRecord {
	if rec.ID == "" {
		rec.ID = domain.RecordID(newID())
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Comments == nil {
		rec.Comments = []domain.Comment{}
	}
	return rec
}

// sortRecords orders live records first, newest first within each group.
func sortRecords(recs []domain.LiveRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].IsLive != recs[j].IsLive {
			return recs[i].IsLive
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}

// RunJanitor purges records older than ttl every interval until ctx ends.
func RunJanitor(ctx context.Context, s core.RecordStore, ttl, interval time.Duration) error {
	if ttl <= 0 || interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			n, err := s.Purge(ctx, now.Add(-ttl))
			if err != nil {
				log.Error().Err(err).Str("module", "store.janitor").Msg("purge")
				continue
			}
			if n > 0 {
				log.Info().Str("module", "store.janitor").Int("purged", n).Msg("expired records removed")
			}
		}
	}
}
