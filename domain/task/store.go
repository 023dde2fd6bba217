package task

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no task matches both the task id and the
// owner id. A task owned by someone else is indistinguishable from a
// missing one.
var ErrNotFound = errors.New("task not found")

// ErrOwnerNotFound is returned when a task is written for a user id that has
// no account, for example after the account was deleted.
var ErrOwnerNotFound = errors.New("task owner does not exist")

// Status selects which half of a user's tasks to list.
type Status int

const (
	// Pending tasks are ordered newest-created first.
	Pending Status = iota
	// Completed tasks are ordered most recently completed first.
	Completed
)

// MutateFunc changes a loaded task in place. Returning an error aborts the
// surrounding transaction.
type MutateFunc func(t *Task) error

// Store persists tasks. Every method is scoped by owner id.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, ownerID, taskID string) (*Task, error)
	List(ctx context.Context, ownerID string, status Status) ([]Task, error)
	// Mutate loads the task matching taskID and ownerID, hands it to fn and
	// saves the result, all inside one transaction.
	Mutate(ctx context.Context, ownerID, taskID string, fn MutateFunc) (*Task, error)
	Delete(ctx context.Context, ownerID, taskID string) error
}
