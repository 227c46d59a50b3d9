package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("already exists")
)

// User represents a chat account allowed to authenticate against the relay.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	// Returns an error wrapping ErrNotFound when the user does not exist.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// UpdatePassword replaces the stored password hash of a user.
	UpdatePassword(ctx context.Context, username, passwordHash string) error

	// ListUsers returns all users ordered by username.
	ListUsers(ctx context.Context) ([]*User, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore

	// Close closes the underlying database connection.
	Close() error
}
