// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen = 36
	MaxHandleLen = 36
)

var (
	ErrHandleTooLong = errors.New("handle too long")
	ErrHandleEmpty   = errors.New("handle empty")
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

type UserID string

func (id UserID) Validate() error {
	if len(id) == 0 {
		return ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	return nil
}

// User is the local cook engaging with a live stream. Handle is what shows
// next to comments.
type User struct {
	ID     UserID `json:"id"`
	Handle string `json:"handle"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
// An empty id gets a fresh uuid.
func NewUser(id UserID, handle string) (*User, error) {
	if id == "" {
		id = UserID(uuid.NewString())
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}
	u := &User{ID: id}
	if err := u.SetHandle(handle); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetHandle(handle string) error {
	if len(handle) == 0 {
		return ErrHandleEmpty
	}
	if len(handle) > MaxHandleLen {
		return ErrHandleTooLong
	}
	u.Handle = handle
	return nil
}
