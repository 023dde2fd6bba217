package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// TaskCreatedEvent is emitted when a new task is created.
type TaskCreatedEvent struct {
	TaskID         string    `json:"taskId"`
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	ChecklistItems int       `json:"checklistItems"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TaskCreatedV1 is the typed event definition for task creation.
// Subject: events.tasks.v1.task-created
var TaskCreatedV1 = helper.EventDefinition[TaskCreatedEvent](
	"tasks", "TaskCreated", "v1",
)

// TaskCompletedEvent is emitted when a pending task becomes completed.
type TaskCompletedEvent struct {
	TaskID      string    `json:"taskId"`
	UserID      string    `json:"userId"`
	CompletedAt time.Time `json:"completedAt"`
}

// TaskCompletedV1 is the typed event definition for task completion.
// Subject: events.tasks.v1.task-completed
var TaskCompletedV1 = helper.EventDefinition[TaskCompletedEvent](
	"tasks", "TaskCompleted", "v1",
)

// TaskReopenedEvent is emitted when a completed task goes back to pending.
type TaskReopenedEvent struct {
	TaskID     string    `json:"taskId"`
	UserID     string    `json:"userId"`
	ReopenedAt time.Time `json:"reopenedAt"`
}

// TaskReopenedV1 is the typed event definition for task reopening.
// Subject: events.tasks.v1.task-reopened
var TaskReopenedV1 = helper.EventDefinition[TaskReopenedEvent](
	"tasks", "TaskReopened", "v1",
)

// TaskDeletedEvent is emitted when a task is deleted.
type TaskDeletedEvent struct {
	TaskID    string    `json:"taskId"`
	UserID    string    `json:"userId"`
	DeletedAt time.Time `json:"deletedAt"`
}

// TaskDeletedV1 is the typed event definition for task deletion.
// Subject: events.tasks.v1.task-deleted
var TaskDeletedV1 = helper.EventDefinition[TaskDeletedEvent](
	"tasks", "TaskDeleted", "v1",
)
