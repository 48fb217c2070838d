package user

import (
	"context"
	"errors"
	"time"
)

// Account states.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// DefaultResetWindow is how long an admin-granted reset window stays open
// when no duration is given.
const DefaultResetWindow = 24

// MaxResetWindow caps a reset window, in hours.
const MaxResetWindow = 720

var (
	ErrNotFound      = errors.New("user not found")
	ErrValidation    = errors.New("invalid user")
	ErrUsernameTaken = errors.New("username already taken")
)

// User is an account known to the identity provider. Passwords and OAuth
// links live with the provider, not here.
type User struct {
	ID                int64      `json:"id" db:"id"`
	Username          string     `json:"username" db:"username"`
	Email             *string    `json:"email" db:"email"`
	IsAdmin           bool       `json:"is_admin" db:"is_admin"`
	Status            string     `json:"status" db:"status"`
	ResetAllowedUntil *time.Time `json:"reset_allowed_until" db:"reset_allowed_until"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// Active reports whether the account may use the API.
func (u *User) Active() bool {
	return u.Status == StatusActive
}

// Store is the contract for user persistence.
type Store interface {
	// Create registers a user. Username is trimmed and must be unique.
	Create(ctx context.Context, username, email string, isAdmin bool) (*User, error)

	Get(ctx context.Context, id int64) (*User, error)

	// List returns every user, newest first. Admin audit view.
	List(ctx context.Context) ([]User, error)

	// AllowReset opens a passwordless reset window of the given hours and
	// returns when it closes.
	AllowReset(ctx context.Context, id int64, hours int) (time.Time, error)

	// RevokeReset closes any open reset window.
	RevokeReset(ctx context.Context, id int64) error

	// ResetAllowed reports whether a reset window is currently open.
	ResetAllowed(ctx context.Context, id int64) (bool, error)

	SetStatus(ctx context.Context, id int64, status string) error
}
