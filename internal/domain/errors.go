package domain

import "errors"

var (
	// Rendezvous.
	ErrUnavailableID      = errors.New("unavailable-id")
	ErrPeerUnavailable    = errors.New("peer-unavailable")
	ErrLibraryUnavailable = errors.New("streaming library unavailable")
	ErrStreamNotFound     = errors.New("stream ended or not found")
	ErrLiveEnded          = errors.New("live stream ended or not found")
	ErrDirectoryClosed    = errors.New("directory connection closed")

	// Acquisition.
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("media devices not available")
	ErrCaptureTimeout   = errors.New("camera initialization timeout")

	// Records.
	ErrRecordNotFound = errors.New("record not found")
	ErrForbidden      = errors.New("not the record owner")
	ErrRateLimited    = errors.New("rate limited")

	ErrSessionStopped = errors.New("session stopped")
	ErrInvalidRole    = errors.New("invalid role")
)

// Reason is the user-facing text for err, empty when there is nothing to
// show.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnavailableID):
		return "Connection ID collision. Please refresh."
	case errors.Is(err, ErrLibraryUnavailable):
		return "Failed to load streaming library"
	case errors.Is(err, ErrLiveEnded):
		return "Live stream ended or not found"
	case errors.Is(err, ErrPeerUnavailable), errors.Is(err, ErrStreamNotFound):
		return "Stream ended or not found"
	case errors.Is(err, ErrPermissionDenied):
		return "Camera permission denied"
	case errors.Is(err, ErrDirectoryClosed):
		return "Lost connection to the live server"
	default:
		return err.Error()
	}
}
