package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/task-tracker/domain/task"
	"github.com/example/task-tracker/errs"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// TaskPort defines the task operations available to other modules.
type TaskPort interface {
	ListPending(ctx context.Context, userID string) ([]task.Task, error)
	ListCompleted(ctx context.Context, userID string) ([]task.Task, error)
	Create(ctx context.Context, req CreateTaskRequest) (*task.Task, error)
	Get(ctx context.Context, userID, taskID string) (*task.Task, error)
	Update(ctx context.Context, req UpdateTaskRequest) (*task.Task, error)
	Complete(ctx context.Context, userID, taskID string) (*task.Task, error)
	Delete(ctx context.Context, userID, taskID string) error
}

var (
	_ TaskPort = (*TaskService)(nil)
	_ TaskPort = (*TaskAdapter)(nil)
)

// TaskAdapter implements TaskPort using the service container.
type TaskAdapter struct {
	container mono.ServiceContainer
}

// NewTaskAdapter creates a new TaskAdapter.
func NewTaskAdapter(container mono.ServiceContainer) *TaskAdapter {
	return &TaskAdapter{container: container}
}

func callService[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req *Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return errs.Internal(fmt.Errorf("%s request failed: %w", service, err))
	}
	return nil
}

func listResult(ctx context.Context, container mono.ServiceContainer, service, userID string) ([]task.Task, error) {
	var resp ListResponse
	if err := callService(ctx, container, service, &ListRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	if resp.Tasks == nil {
		resp.Tasks = []task.Task{}
	}
	for i := range resp.Tasks {
		resp.Tasks[i].Normalize()
	}
	return resp.Tasks, nil
}

func taskResult[Req any](ctx context.Context, container mono.ServiceContainer, service string, req *Req) (*task.Task, error) {
	var resp TaskResponse
	if err := callService(ctx, container, service, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	if resp.Task == nil {
		return nil, errs.Internal(fmt.Errorf("%s returned an empty result", service))
	}
	resp.Task.Normalize()
	return resp.Task, nil
}

// ListPending returns the user's open tasks.
func (a *TaskAdapter) ListPending(ctx context.Context, userID string) ([]task.Task, error) {
	return listResult(ctx, a.container, "list-pending", userID)
}

// ListCompleted returns the user's finished tasks.
func (a *TaskAdapter) ListCompleted(ctx context.Context, userID string) ([]task.Task, error) {
	return listResult(ctx, a.container, "list-completed", userID)
}

// Create stores a new task.
func (a *TaskAdapter) Create(ctx context.Context, req CreateTaskRequest) (*task.Task, error) {
	return taskResult(ctx, a.container, "create-task", &req)
}

// Get returns a single task.
func (a *TaskAdapter) Get(ctx context.Context, userID, taskID string) (*task.Task, error) {
	return taskResult(ctx, a.container, "get-task", &TaskRequest{UserID: userID, TaskID: taskID})
}

// Update applies a partial change.
func (a *TaskAdapter) Update(ctx context.Context, req UpdateTaskRequest) (*task.Task, error) {
	return taskResult(ctx, a.container, "update-task", &req)
}

// Complete marks a task as completed.
func (a *TaskAdapter) Complete(ctx context.Context, userID, taskID string) (*task.Task, error) {
	return taskResult(ctx, a.container, "complete-task", &TaskRequest{UserID: userID, TaskID: taskID})
}

// Delete removes a task.
func (a *TaskAdapter) Delete(ctx context.Context, userID, taskID string) error {
	var resp DeleteTaskResponse
	if err := callService(ctx, a.container, "delete-task", &TaskRequest{UserID: userID, TaskID: taskID}, &resp); err != nil {
		return err
	}
	return resp.Error.Err()
}
