// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
)

// UserID is the stable identity issued by the identity provider.
type UserID string

// ChannelID addresses one live signaling connection. It is re-issued on
// every reconnect.
type ChannelID string

type User struct {
	UserID    UserID    `json:"userId"`
	Name      string    `json:"name"`
	ChannelID ChannelID `json:"channelId,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, name string) (User, error) {
	if len(id) == 0 {
		return User{}, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return User{}, ErrUserIDTooLong
	}
	if err := ValidateUsername(name); err != nil {
		return User{}, err
	}
	return User{UserID: id, Name: name}, nil
}

// NewGuest issues a fresh random identity.
func NewGuest(name string) (User, error) {
	return NewUser(UserID(uuid.NewString()), name)
}

func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

func (u User) Valid() bool { return u.UserID != "" }

// WithChannel returns a copy of u bound to ch.
func (u User) WithChannel(ch ChannelID) User {
	u.ChannelID = ch
	return u
}
