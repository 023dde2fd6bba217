package api

import (
	"github.com/example/task-tracker/domain/task"
	domain "github.com/example/task-tracker/domain/user"
	"github.com/example/task-tracker/errs"
)

// ProfileRequest is the body of PUT /api/account/profile.
type ProfileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// PasswordRequest is the body of PUT /api/account/password.
type PasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// CreateTaskRequest is the body of POST /api/tasks. Checkboxes is the field
// name the web and mobile clients send for the checklist.
type CreateTaskRequest struct {
	Name       string               `json:"name"`
	Comment    string               `json:"comment"`
	Checklist  []task.ChecklistItem `json:"checklist"`
	Checkboxes []task.ChecklistItem `json:"checkboxes"`
}

// items returns the checklist from whichever field was sent.
func (r CreateTaskRequest) items() ([]task.ChecklistItem, error) {
	if r.Checkboxes == nil {
		return r.Checklist, nil
	}
	if r.Checklist != nil {
		return nil, conflictingChecklists()
	}
	return r.Checkboxes, nil
}

// UpdateTaskRequest is the body of PUT /api/tasks/:id.
type UpdateTaskRequest struct {
	task.Patch
	Checkboxes *[]task.ChecklistItem `json:"checkboxes,omitempty"`
}

// patch folds Checkboxes into the task patch.
func (r UpdateTaskRequest) patch() (task.Patch, error) {
	p := r.Patch
	if r.Checkboxes == nil {
		return p, nil
	}
	if p.Checklist != nil {
		return task.Patch{}, conflictingChecklists()
	}
	p.Checklist = r.Checkboxes
	return p, nil
}

func conflictingChecklists() error {
	return errs.Validation("invalid checkboxes", map[string]string{
		"checkboxes": "cannot be sent together with checklist",
	})
}

// TaskView is a task as returned over HTTP. Checkboxes repeats the checklist
// under the name the web and mobile clients read.
type TaskView struct {
	task.Task
	Checkboxes []task.ChecklistItem `json:"checkboxes"`
}

func viewOf(t *task.Task) TaskView {
	return TaskView{Task: *t, Checkboxes: t.Checklist}
}

func viewsOf(list []task.Task) []TaskView {
	views := make([]TaskView, len(list))
	for i := range list {
		views[i] = viewOf(&list[i])
	}
	return views
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	Token string            `json:"token"`
	User  domain.PublicUser `json:"user"`
}

// UserEnvelope wraps a public user record.
type UserEnvelope struct {
	User domain.PublicUser `json:"user"`
}

// PasswordResponse confirms a password change and carries a fresh token.
type PasswordResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// DeleteAccountResponse confirms an account deletion.
type DeleteAccountResponse struct {
	Message      string `json:"message"`
	TasksRemoved int64  `json:"tasksRemoved"`
}

// OKResponse acknowledges an operation with no payload.
type OKResponse struct {
	OK bool `json:"ok"`
}

// InfoResponse describes the running service.
type InfoResponse struct {
	OK      bool   `json:"ok"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
