package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	channelPrefix = "tasteshift-"
	viewerPrefix  = "viewer-"

	viewerSuffixLen = 6

	MaxIdentityLen = 128
)

var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is a name registered in the signaling directory. Broadcasters
// register their channel, viewers a throwaway identity.
type Identity string

func (id Identity) String() string { return string(id) }

// Validate accepts non-empty names made of letters, digits and -_.
func (id Identity) Validate() error {
	if id == "" || len(id) > MaxIdentityLen {
		return ErrInvalidIdentity
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return ErrInvalidIdentity
		}
	}
	return nil
}

// IsViewer reports whether id has the viewer identity shape.
func (id Identity) IsViewer() bool { return strings.HasPrefix(string(id), viewerPrefix) }

// BroadcastChannel is the deterministic channel of a broadcaster. Any viewer
// that knows the broadcaster's user id derives the same name.
func BroadcastChannel(uid UserID) Identity {
	return Identity(channelPrefix + string(uid))
}

// ResolveChannel returns the explicit channel when set and the
// deterministic fallback otherwise.
func ResolveChannel(explicit Identity, uid UserID) Identity {
	if explicit != "" {
		return explicit
	}
	return BroadcastChannel(uid)
}

// NewViewerIdentity returns a fresh identity for one viewer session. Two
// tabs of the same user never share it.
func NewViewerIdentity(uid UserID) Identity {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:viewerSuffixLen]
	return Identity(viewerPrefix + string(uid) + "-" + suffix)
}
