package user

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrConflict is returned when a username or email is already taken.
	ErrConflict = errors.New("username or email already in use")
)

// Store persists user accounts.
type Store interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	// FindByLogin matches either the username or the email.
	FindByLogin(ctx context.Context, emailOrUsername string) (*User, error)
	// Taken reports whether a user other than excludeID already holds
	// username or email. Either value may be empty to skip that check.
	Taken(ctx context.Context, excludeID, username, email string) (usernameTaken, emailTaken bool, err error)
	UpdateProfile(ctx context.Context, id, username, email string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	// DeleteWithTasks removes the user and every task they own in a single
	// transaction and returns the number of tasks removed.
	DeleteWithTasks(ctx context.Context, id string) (int64, error)
}
