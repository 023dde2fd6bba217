package tasks

import (
	"github.com/example/task-tracker/domain/task"
	"github.com/example/task-tracker/errs"
)

// ListRequest asks for one half of a user's tasks.
type ListRequest struct {
	UserID string `json:"userId"`
}

// ListResponse carries a list of tasks.
type ListResponse struct {
	Tasks []task.Task   `json:"tasks"`
	Error *errs.Payload `json:"error,omitempty"`
}

// CreateTaskRequest represents a task creation request. Comment and
// Checklist are optional.
type CreateTaskRequest struct {
	UserID    string               `json:"userId"`
	Name      string               `json:"name"`
	Comment   string               `json:"comment"`
	Checklist []task.ChecklistItem `json:"checklist"`
}

// TaskRequest addresses a single task of UserID.
type TaskRequest struct {
	UserID string `json:"userId"`
	TaskID string `json:"taskId"`
}

// UpdateTaskRequest applies Patch to a single task of UserID.
type UpdateTaskRequest struct {
	UserID string     `json:"userId"`
	TaskID string     `json:"taskId"`
	Patch  task.Patch `json:"patch"`
}

// TaskResponse carries a single task.
type TaskResponse struct {
	Task  *task.Task    `json:"task,omitempty"`
	Error *errs.Payload `json:"error,omitempty"`
}

// DeleteTaskResponse reports the outcome of a task deletion.
type DeleteTaskResponse struct {
	Error *errs.Payload `json:"error,omitempty"`
}
