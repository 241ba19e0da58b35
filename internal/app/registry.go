package app

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

type peerEntry struct {
	Endpoint core.Endpoint
	Cancel   context.CancelFunc
}

// Registry maps directory identities to their live signaling endpoints.
// An identity is held by at most one endpoint at a time.
type Registry struct {
	mu    sync.RWMutex
	peers map[domain.Identity]*peerEntry
}

func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[domain.Identity]*peerEntry),
	}
}

// Claim binds id to ep unless another endpoint holds it.
func (r *Registry) Claim(ep core.Endpoint, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := ep.Identity()
	if _, taken := r.peers[id]; taken {
		log.Info().Str("module", "app.registry").Str("identity", id.String()).Msg("identity taken")
		return false
	}
	r.peers[id] = &peerEntry{Endpoint: ep, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("identity", id.String()).Msg("bound identity")
	return true
}

func (r *Registry) Lookup(id domain.Identity) (core.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.peers[id]; ok {
		return e.Endpoint, true
	}
	return nil, false
}

// Release unbinds id if it is still held by ep. A newer holder of the
// same identity is left alone.
func (r *Registry) Release(ep core.Endpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := ep.Identity()
	e, ok := r.peers[id]
	if !ok || e.Endpoint != ep {
		return false
	}
	delete(r.peers, id)
	log.Info().Str("module", "app.registry").Str("identity", id.String()).Msg("unbound identity")
	return true
}

func (r *Registry) Cancel(id domain.Identity) bool {
	r.mu.RLock()
	e, ok := r.peers[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("identity", id.String()).Msg("canceled endpoint")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Identities lists the registered identities in sorted order.
func (r *Registry) Identities() []domain.Identity {
	r.mu.RLock()
	out := make([]domain.Identity, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
