package core

import (
	"time"

	"github.com/tasteshift/live/internal/domain"
)

// Frame is a raw binary payload.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Endpoint binds a registered identity to its signaling transport.
// This is what the directory stores and relays to.
type Endpoint interface {
	Identity() domain.Identity
	Signal() SignalConnection
	RegisteredAt() time.Time
}

type endpoint struct {
	id    domain.Identity
	conn  SignalConnection
	since time.Time
}

func NewEndpoint(id domain.Identity, conn SignalConnection) Endpoint {
	return &endpoint{id: id, conn: conn, since: time.Now()}
}

func (e *endpoint) Identity() domain.Identity { return e.id }
func (e *endpoint) Signal() SignalConnection  { return e.conn }
func (e *endpoint) RegisteredAt() time.Time   { return e.since }
