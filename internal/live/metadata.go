package live

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

const (
	DefaultPollInterval     = 1500 * time.Millisecond
	DefaultSimulateInterval = 3 * time.Second

	// RecentComments is how many comments a live view shows.
	RecentComments = 10

	writeTimeout = 10 * time.Second
)

// MetadataSync keeps likes, comments and the viewer estimate of one live
// session fresh. Ephemeral sessions never touch the network and only
// simulate viewer churn.
type MetadataSync struct {
	client   core.RecordClient
	backing  domain.Backing
	simulate time.Duration
	jitter   func() int

	mu       sync.Mutex
	viewers  int
	likes    int
	comments []domain.Comment
	onChange func(domain.LiveMetadata)

	writes sync.WaitGroup
}

type MetadataOption func(*MetadataSync)

// WithSimulateInterval sets how often viewer churn is simulated.
func WithSimulateInterval(d time.Duration) MetadataOption {
	return func(m *MetadataSync) {
		if d > 0 {
			m.simulate = d
		}
	}
}

// WithJitter replaces the random viewer delta, which must be in [-1, 1].
func WithJitter(fn func() int) MetadataOption {
	return func(m *MetadataSync) { m.jitter = fn }
}

// NewMetadataSync returns a sync for backing. A nil client forces
// ephemeral behaviour.
func NewMetadataSync(client core.RecordClient, backing domain.Backing, opts ...MetadataOption) *MetadataSync {
	if backing == nil || client == nil {
		backing = domain.Ephemeral{}
	}
	m := &MetadataSync{
		client:   client,
		backing:  backing,
		simulate: DefaultSimulateInterval,
		jitter:   func() int { return rand.IntN(3) - 1 },
		viewers:  1,
		comments: []domain.Comment{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MetadataSync) OnChange(fn func(domain.LiveMetadata)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Snapshot returns the current counters and the most recent comments.
func (m *MetadataSync) Snapshot() domain.LiveMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *MetadataSync) snapshotLocked() domain.LiveMetadata {
	return domain.LiveMetadata{
		Viewers:  m.viewers,
		Likes:    m.likes,
		Comments: recent(m.comments, RecentComments),
	}
}

func recent(cs []domain.Comment, n int) []domain.Comment {
	if len(cs) > n {
		cs = cs[len(cs)-n:]
	}
	out := make([]domain.Comment, len(cs))
	copy(out, cs)
	return out
}

// Poll refreshes the metadata right away and then every interval until ctx
// is done. Failed fetches fall back to simulated churn; Poll never fails.
func (m *MetadataSync) Poll(ctx context.Context, interval time.Duration) {
	backed, ok := m.backing.(domain.Backed)
	if !ok {
		m.simulateLoop(ctx)
		return
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.refresh(ctx, backed.ID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx, backed.ID)
		}
	}
}

func (m *MetadataSync) simulateLoop(ctx context.Context) {
	ticker := time.NewTicker(m.simulate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.churn()
		}
	}
}

func (m *MetadataSync) refresh(ctx context.Context, id domain.RecordID) {
	rec, err := m.client.Fetch(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Debug().Err(err).Str("module", "live.metadata").Str("record", string(id)).Msg("fetch failed, simulating")
		m.churn()
		return
	}
	m.merge(rec)
}

// merge folds a fetched record into local state. Likes never go down and
// remote comments only replace a list that is not longer than theirs, so
// optimistic local updates survive a stale read.
func (m *MetadataSync) merge(rec domain.LiveRecord) {
	m.mu.Lock()
	m.likes = max(m.likes, rec.Likes)
	if len(rec.Comments) >= len(m.comments) {
		m.comments = append([]domain.Comment(nil), rec.Comments...)
	}
	m.viewers = max(1, m.likes+len(m.comments)+1)
	m.emitLocked()
}

func (m *MetadataSync) churn() {
	m.mu.Lock()
	m.viewers = max(1, m.viewers+m.jitter())
	m.emitLocked()
}

// emitLocked unlocks m and reports the new snapshot.
func (m *MetadataSync) emitLocked() {
	snap := m.snapshotLocked()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// PostComment shows the comment right away and sends it in the
// background. A failed write is logged and not rolled back.
func (m *MetadataSync) PostComment(ctx context.Context, author, text string) {
	m.mu.Lock()
	m.comments = append(m.comments, domain.Comment{Author: author, Text: text})
	m.emitLocked()

	m.write(ctx, "comment", func(ctx context.Context, id domain.RecordID) error {
		return m.client.AppendComment(ctx, id, author, text)
	})
}

// PostLike bumps the like count right away and sends it in the background.
func (m *MetadataSync) PostLike(ctx context.Context) {
	m.mu.Lock()
	m.likes++
	m.emitLocked()

	m.write(ctx, "like", func(ctx context.Context, id domain.RecordID) error {
		return m.client.IncrementLike(ctx, id)
	})
}

func (m *MetadataSync) write(ctx context.Context, what string, fn func(context.Context, domain.RecordID) error) {
	backed, ok := m.backing.(domain.Backed)
	if !ok {
		return
	}
	m.writes.Add(1)
	go func() {
		defer m.writes.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		if err := fn(wctx, backed.ID); err != nil {
			log.Warn().Err(err).Str("module", "live.metadata").Str("record", string(backed.ID)).Msg(what + " not delivered")
		}
	}()
}

// Wait blocks until background writes have finished.
func (m *MetadataSync) Wait() { m.writes.Wait() }
