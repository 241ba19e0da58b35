package store

import (
	"context"
	"sync"
	"time"

	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

type MemStore struct {
	mx *sync.Mutex
	db map[domain.RecordID]*domain.LiveRecord
}

var _ core.RecordStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		mx: &sync.Mutex{},
		db: make(map[domain.RecordID]*domain.LiveRecord),
	}
}

func clone(r *domain.LiveRecord) domain.LiveRecord {
	out := *r
	out.Comments = append([]domain.Comment{}, r.Comments...)
	return out
}

func (ms *MemStore) Create(_ context.Context, rec domain.LiveRecord) (domain.LiveRecord, error) {
	rec = prepare(rec)
	ms.mx.Lock()
	defer ms.mx.Unlock()
	stored := clone(&rec)
	ms.db[rec.ID] = &stored
	return rec, nil
}

func (ms *MemStore) Get(_ context.Context, id domain.RecordID) (domain.LiveRecord, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	rec, ok := ms.db[id]
	if !ok {
		return domain.LiveRecord{}, domain.ErrRecordNotFound
	}
	return clone(rec), nil
}

func (ms *MemStore) List(_ context.Context) ([]domain.LiveRecord, error) {
	ms.mx.Lock()
	out := make([]domain.LiveRecord, 0, len(ms.db))
	for _, rec := range ms.db {
		out = append(out, clone(rec))
	}
	ms.mx.Unlock()
	sortRecords(out)
	return out, nil
}

func (ms *MemStore) Delete(_ context.Context, id domain.RecordID) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	if _, ok := ms.db[id]; !ok {
		return domain.ErrRecordNotFound
	}
	delete(ms.db, id)
	return nil
}

func (ms *MemStore) AppendComment(_ context.Context, id domain.RecordID, c domain.Comment) (domain.Comment, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	rec, ok := ms.db[id]
	if !ok {
		return domain.Comment{}, domain.ErrRecordNotFound
	}
	if c.ID == "" {
		c.ID = newID()
	}
	rec.Comments = append(rec.Comments, c)
	return c, nil
}

func (ms *MemStore) IncrementLike(_ context.Context, id domain.RecordID) (int, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	rec, ok := ms.db[id]
	if !ok {
		return 0, domain.ErrRecordNotFound
	}
	rec.Likes++
	return rec.Likes, nil
}

func (ms *MemStore) Purge(_ context.Context, cutoff time.Time) (int, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	n := 0
	for id, rec := range ms.db {
		if rec.CreatedAt.Before(cutoff) {
			delete(ms.db, id)
			n++
		}
	}
	return n, nil
}

func (ms *MemStore) Close() error { return nil }
