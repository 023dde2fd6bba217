package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// AccountDeletedEvent is emitted after a user and all their tasks are gone.
type AccountDeletedEvent struct {
	UserID       string    `json:"userId"`
	TasksRemoved int64     `json:"tasksRemoved"`
	DeletedAt    time.Time `json:"deletedAt"`
}

// AccountDeletedV1 is the typed event definition for account deletion.
// Subject: events.auth.v1.account-deleted
var AccountDeletedV1 = helper.EventDefinition[AccountDeletedEvent](
	"auth", "AccountDeleted", "v1",
)
