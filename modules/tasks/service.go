package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/task-tracker/domain/task"
	"github.com/example/task-tracker/errs"
	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"
)

const checklistIDLength = 21

// LifecycleNotifier is told about task state changes after they are stored.
type LifecycleNotifier interface {
	TaskCreated(ctx context.Context, t *task.Task)
	TaskCompleted(ctx context.Context, t *task.Task)
	TaskReopened(ctx context.Context, t *task.Task, at time.Time)
	TaskDeleted(ctx context.Context, userID, taskID string, at time.Time)
}

type noopNotifier struct{}

func (noopNotifier) TaskCreated(context.Context, *task.Task) {}
func (noopNotifier) TaskCompleted(context.Context, *task.Task) {}
func (noopNotifier) TaskReopened(context.Context, *task.Task, time.Time) {}
func (noopNotifier) TaskDeleted(context.Context, string, string, time.Time) {}

// TaskService implements owner-scoped task management.
type TaskService struct {
	store    task.Store
	notifier LifecycleNotifier
	newID    func() string
	itemID   func() string
	now      func() time.Time
}

// NewTaskService creates a new TaskService.
func NewTaskService(store task.Store) (*TaskService, error) {
	itemID, err := nanoid.Standard(checklistIDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create checklist id generator: %w", err)
	}
	return &TaskService{
		store:    store,
		notifier: noopNotifier{},
		newID:    uuid.NewString,
		itemID:   itemID,
		now:      time.Now,
	}, nil
}

// SetNotifier sets the receiver of lifecycle notifications.
func (s *TaskService) SetNotifier(n LifecycleNotifier) {
	if n == nil {
		n = noopNotifier{}
	}
	s.notifier = n
}

// ListPending returns the user's open tasks, newest first.
func (s *TaskService) ListPending(ctx context.Context, userID string) ([]task.Task, error) {
	return s.list(ctx, userID, task.Pending)
}

// ListCompleted returns the user's finished tasks, most recently completed
// first.
func (s *TaskService) ListCompleted(ctx context.Context, userID string) ([]task.Task, error) {
	return s.list(ctx, userID, task.Completed)
}

func (s *TaskService) list(ctx context.Context, userID string, status task.Status) ([]task.Task, error) {
	if err := requireOwner(userID); err != nil {
		return nil, err
	}
	tasks, err := s.store.List(ctx, userID, status)
	if err != nil {
		return nil, errs.Internal(err)
	}
	return tasks, nil
}

// Create stores a new pending task for the user.
func (s *TaskService) Create(ctx context.Context, req CreateTaskRequest) (*task.Task, error) {
	if err := requireOwner(req.UserID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	fields := errs.FieldErrors{}
	if name == "" {
		fields.Add("name", "is required")
	}
	checklist := s.prepareChecklist(fields, req.Checklist)
	if err := fields.Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &task.Task{
		ID:        s.newID(),
		UserID:    req.UserID,
		Name:      name,
		Comment:   req.Comment,
		Checklist: checklist,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, storeError(err)
	}

	s.notifier.TaskCreated(ctx, t)
	return t, nil
}

// Get returns one of the user's tasks.
func (s *TaskService) Get(ctx context.Context, userID, taskID string) (*task.Task, error) {
	if err := requireOwner(userID); err != nil {
		return nil, err
	}
	t, err := s.store.Get(ctx, userID, taskID)
	if err != nil {
		return nil, storeError(err)
	}
	return t, nil
}

// Update applies a partial change to one of the user's tasks.
func (s *TaskService) Update(ctx context.Context, req UpdateTaskRequest) (*task.Task, error) {
	if err := requireOwner(req.UserID); err != nil {
		return nil, err
	}

	patch := req.Patch
	fields := errs.FieldErrors{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			fields.Add("name", "is required")
		}
		patch.Name = &name
	}
	if patch.Checklist != nil {
		checklist := s.prepareChecklist(fields, *patch.Checklist)
		patch.Checklist = &checklist
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	return s.mutate(ctx, req.UserID, req.TaskID, patch)
}

// Complete marks one of the user's tasks as completed. Completing a task
// twice keeps the first completion time.
func (s *TaskService) Complete(ctx context.Context, userID, taskID string) (*task.Task, error) {
	if err := requireOwner(userID); err != nil {
		return nil, err
	}
	done := true
	return s.mutate(ctx, userID, taskID, task.Patch{Completed: &done})
}

// Delete removes one of the user's tasks in either state.
func (s *TaskService) Delete(ctx context.Context, userID, taskID string) error {
	if err := requireOwner(userID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, userID, taskID); err != nil {
		return storeError(err)
	}
	s.notifier.TaskDeleted(ctx, userID, taskID, s.now().UTC())
	return nil
}

func (s *TaskService) mutate(ctx context.Context, userID, taskID string, patch task.Patch) (*task.Task, error) {
	now := s.now().UTC()
	transition := task.Unchanged
	t, err := s.store.Mutate(ctx, userID, taskID, func(t *task.Task) error {
		transition = t.Apply(patch, now)
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	switch transition {
	case task.MarkedCompleted:
		s.notifier.TaskCompleted(ctx, t)
	case task.Reopened:
		s.notifier.TaskReopened(ctx, t, now)
	}
	return t, nil
}

// prepareChecklist assigns ids to new items and records duplicate ids in
// fields. The returned slice is never nil.
func (s *TaskService) prepareChecklist(fields errs.FieldErrors, items []task.ChecklistItem) []task.ChecklistItem {
	out := make([]task.ChecklistItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item.ID = strings.TrimSpace(item.ID)
		if item.ID == "" {
			item.ID = s.itemID()
		}
		if _, dup := seen[item.ID]; dup {
			fields.Add("checklist", fmt.Sprintf("duplicate item id %q", item.ID))
		}
		seen[item.ID] = struct{}{}
		out = append(out, task.ChecklistItem{ID: item.ID, Text: item.Text, Checked: item.Checked})
	}
	return out
}

func requireOwner(userID string) error {
	if userID == "" {
		return errs.Forbidden("no authenticated user")
	}
	return nil
}

func storeError(err error) error {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return errs.NotFound("task not found")
	case errors.Is(err, task.ErrOwnerNotFound):
		// A token that outlived its account.
		return errs.Unauthorized("account no longer exists")
	}
	return errs.Internal(err)
}
