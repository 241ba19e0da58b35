package domain

type Role string

const (
	RoleBroadcaster Role = "broadcaster"
	RoleViewer      Role = "viewer"
)

func (r Role) Valid() bool { return r == RoleBroadcaster || r == RoleViewer }

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Terminal statuses are final for a session; retrying needs a new one.
func (s Status) Terminal() bool {
	return s == StatusDisconnected || s == StatusError
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusConnecting:
		return next == StatusConnected || next.Terminal()
	case StatusConnected:
		return next.Terminal()
	default:
		return false
	}
}
