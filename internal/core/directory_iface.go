package core

import (
	"context"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/tasteshift/live/internal/domain"
)

// Directory is the rendezvous service. Register blocks until the directory
// confirms the identity or refuses it (domain.ErrUnavailableID).
type Directory interface {
	Register(ctx context.Context, id domain.Identity) (Peer, error)
}

// DirectoryProvider hands out a ready Directory, initialising it on first
// use.
type DirectoryProvider interface {
	Directory(ctx context.Context) (Directory, error)
}

// Peer is one registered identity.
type Peer interface {
	ID() domain.Identity
	// Connect opens a call to target and returns once the remote side
	// answered. domain.ErrPeerUnavailable means nobody is registered there.
	Connect(ctx context.Context, target domain.Identity, local []webrtc.TrackLocal) (Call, error)
	// OnIncoming sets the handler for calls opened by other peers. Calls that
	// arrive before a handler is set are held until one is.
	OnIncoming(func(Call))
	// OnDisconnected fires once when the directory connection is lost.
	OnDisconnected(func(error))
	Close()
}

// Call is the transport handle for one viewer/broadcaster pair. Callbacks
// registered after the event already happened fire immediately.
type Call interface {
	ID() string
	Remote() domain.Identity
	Answer(ctx context.Context, local []webrtc.TrackLocal) error
	OnTrack(func(RemoteTrack))
	OnClose(func())
	OnError(func(error))
	OnInterrupt(func())
	// Interrupt asks the remote side to drop media it has not played yet.
	Interrupt() error
	Close()
}

// RemoteTrack is the part of *webrtc.TrackRemote the playback side uses.
type RemoteTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}
