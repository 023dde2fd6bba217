// Package activity keeps a feed of task and account lifecycle events.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/task-tracker/events"
	"github.com/example/task-tracker/logging"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// DefaultFeedSize is the number of entries kept when none is configured.
const DefaultFeedSize = 100

var lifecycleEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tasks_lifecycle_events_total",
		Help: "Total number of task and account lifecycle events consumed",
	},
	[]string{"event"},
)

// Entry is one line of the activity feed.
type Entry struct {
	Event  string    `json:"event"`
	UserID string    `json:"userId"`
	TaskID string    `json:"taskId,omitempty"`
	At     time.Time `json:"at"`
}

// ActivityModule consumes lifecycle events and keeps the most recent ones.
type ActivityModule struct {
	mu    sync.RWMutex
	feed  []Entry
	limit int
	log   *logrus.Entry
}

var (
	_ mono.Module                = (*ActivityModule)(nil)
	_ mono.EventConsumerModule   = (*ActivityModule)(nil)
	_ mono.ServiceProviderModule = (*ActivityModule)(nil)
)

// RecentRequest asks for the feed of one user.
type RecentRequest struct {
	UserID string `json:"userId"`
}

// RecentResponse carries feed entries, newest first.
type RecentResponse struct {
	Entries []Entry `json:"entries"`
}

// NewModule creates an ActivityModule keeping up to limit entries.
func NewModule(limit int) *ActivityModule {
	if limit <= 0 {
		limit = DefaultFeedSize
	}
	return &ActivityModule{
		feed:  make([]Entry, 0, limit),
		limit: limit,
		log:   logging.Module("activity"),
	}
}

// Name returns the module name.
func (m *ActivityModule) Name() string {
	return "activity"
}

// RegisterEventConsumers subscribes to every lifecycle event.
func (m *ActivityModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskCreatedV1, m.handleTaskCreated, m); err != nil {
		return fmt.Errorf("failed to register TaskCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskCompletedV1, m.handleTaskCompleted, m); err != nil {
		return fmt.Errorf("failed to register TaskCompleted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskReopenedV1, m.handleTaskReopened, m); err != nil {
		return fmt.Errorf("failed to register TaskReopened consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskDeletedV1, m.handleTaskDeleted, m); err != nil {
		return fmt.Errorf("failed to register TaskDeleted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.AccountDeletedV1, m.handleAccountDeleted, m); err != nil {
		return fmt.Errorf("failed to register AccountDeleted consumer: %w", err)
	}

	m.log.Info("registered event consumers: TaskCreated, TaskCompleted, TaskReopened, TaskDeleted, AccountDeleted")
	return nil
}

// RegisterServices exposes the feed as the recent-activity service.
func (m *ActivityModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "recent-activity", json.Unmarshal, json.Marshal, m.handleRecent,
	); err != nil {
		return fmt.Errorf("failed to register recent-activity service: %w", err)
	}
	return nil
}

func (m *ActivityModule) handleRecent(_ context.Context, req RecentRequest, _ *mono.Msg) (RecentResponse, error) {
	return RecentResponse{Entries: m.Recent(req.UserID)}, nil
}

func (m *ActivityModule) handleTaskCreated(_ context.Context, event events.TaskCreatedEvent, _ *mono.Msg) error {
	m.record(Entry{Event: "task_created", UserID: event.UserID, TaskID: event.TaskID, At: event.CreatedAt},
		logrus.Fields{"name": event.Name, "checklist_items": event.ChecklistItems})
	return nil
}

func (m *ActivityModule) handleTaskCompleted(_ context.Context, event events.TaskCompletedEvent, _ *mono.Msg) error {
	m.record(Entry{Event: "task_completed", UserID: event.UserID, TaskID: event.TaskID, At: event.CompletedAt}, nil)
	return nil
}

func (m *ActivityModule) handleTaskReopened(_ context.Context, event events.TaskReopenedEvent, _ *mono.Msg) error {
	m.record(Entry{Event: "task_reopened", UserID: event.UserID, TaskID: event.TaskID, At: event.ReopenedAt}, nil)
	return nil
}

func (m *ActivityModule) handleTaskDeleted(_ context.Context, event events.TaskDeletedEvent, _ *mono.Msg) error {
	m.record(Entry{Event: "task_deleted", UserID: event.UserID, TaskID: event.TaskID, At: event.DeletedAt}, nil)
	return nil
}

func (m *ActivityModule) handleAccountDeleted(_ context.Context, event events.AccountDeletedEvent, _ *mono.Msg) error {
	m.record(Entry{Event: "account_deleted", UserID: event.UserID, At: event.DeletedAt},
		logrus.Fields{"tasks_removed": event.TasksRemoved})

	// The account is gone, so is its history.
	m.mu.Lock()
	kept := m.feed[:0]
	for _, e := range m.feed {
		if e.UserID != event.UserID || e.Event == "account_deleted" {
			kept = append(kept, e)
		}
	}
	m.feed = kept
	m.mu.Unlock()
	return nil
}

func (m *ActivityModule) record(e Entry, extra logrus.Fields) {
	lifecycleEvents.WithLabelValues(e.Event).Inc()

	fields := logrus.Fields{
		"event":   e.Event,
		"user_id": e.UserID,
	}
	if e.TaskID != "" {
		fields["task_id"] = e.TaskID
	}
	for k, v := range extra {
		fields[k] = v
	}
	m.log.WithFields(fields).Info("activity")

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.feed) == m.limit {
		copy(m.feed, m.feed[1:])
		m.feed = m.feed[:len(m.feed)-1]
	}
	m.feed = append(m.feed, e)
}

// Recent returns the user's feed entries, newest first.
func (m *ActivityModule) Recent(userID string) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Entry, 0)
	for i := len(m.feed) - 1; i >= 0; i-- {
		if m.feed[i].UserID == userID {
			result = append(result, m.feed[i])
		}
	}
	return result
}

// Start starts the module.
func (m *ActivityModule) Start(_ context.Context) error {
	m.log.Info("module started - listening for lifecycle events")
	return nil
}

// Stop stops the module.
func (m *ActivityModule) Stop(_ context.Context) error {
	m.log.Info("module stopped")
	return nil
}
