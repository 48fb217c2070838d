package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"zenith-tasker/internal/db"
)

const userColumns = `id, username, email, is_admin, status, reset_allowed_until, created_at`

// SQLStore is a relational user store.
type SQLStore struct {
	db  *db.DB
	now func() time.Time
}

// NewSQLStore creates a SQLStore.
func NewSQLStore(d *db.DB) *SQLStore {
	return &SQLStore{db: d, now: time.Now}
}

// Create inserts a new active user.
func (s *SQLStore) Create(ctx context.Context, username, email string, isAdmin bool) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}

	var exists int
	err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT COUNT(*) FROM users WHERE username = ?`), username)
	if err != nil {
		return nil, fmt.Errorf("check username %s: %w", username, err)
	}
	if exists > 0 {
		return nil, ErrUsernameTaken
	}

	var id int64
	err = s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO users (username, email, is_admin, status, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`),
		username, nilIfEmpty(strings.TrimSpace(email)), isAdmin, StatusActive, db.Timestamp(s.now())).
		Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", username, err)
	}
	return s.Get(ctx, id)
}

// Get returns a user by ID.
func (s *SQLStore) Get(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

// List returns all users, newest first.
func (s *SQLStore) List(ctx context.Context) ([]User, error) {
	users := []User{}
	err := s.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// AllowReset sets reset_allowed_until to now + hours. Zero hours means the
// default window.
func (s *SQLStore) AllowReset(ctx context.Context, id int64, hours int) (time.Time, error) {
	if hours == 0 {
		hours = DefaultResetWindow
	}
	if hours < 0 || hours > MaxResetWindow {
		return time.Time{}, fmt.Errorf("%w: hours must be between 1 and %d", ErrValidation, MaxResetWindow)
	}

	until := db.Timestamp(s.now().Add(time.Duration(hours) * time.Hour))
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET reset_allowed_until = ? WHERE id = ?`), until, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("allow reset for user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return time.Time{}, ErrNotFound
	}
	return until, nil
}

// RevokeReset clears the reset window. Revoking an unknown user is a no-op.
func (s *SQLStore) RevokeReset(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET reset_allowed_until = NULL WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("revoke reset for user %d: %w", id, err)
	}
	return nil
}

// ResetAllowed reports whether the user's reset window is open now.
func (s *SQLStore) ResetAllowed(ctx context.Context, id int64) (bool, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if u.ResetAllowedUntil == nil {
		return false, nil
	}
	return u.ResetAllowedUntil.After(s.now()), nil
}

// SetStatus activates or deactivates an account.
func (s *SQLStore) SetStatus(ctx context.Context, id int64, status string) error {
	if status != StatusActive && status != StatusInactive {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET status = ? WHERE id = ?`), status, id)
	if err != nil {
		return fmt.Errorf("set status of user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
