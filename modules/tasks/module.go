package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/task-tracker/domain/task"
	"github.com/example/task-tracker/errs"
	"github.com/example/task-tracker/events"
	"github.com/example/task-tracker/logging"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/sirupsen/logrus"
)

// taskStoreProvider is implemented by the storage plugin.
type taskStoreProvider interface {
	Tasks() task.Store
}

// TasksModule provides owner-scoped task services.
type TasksModule struct {
	storage  taskStoreProvider
	service  *TaskService
	eventBus mono.EventBus
	log      *logrus.Entry
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*TasksModule)(nil)
	_ mono.ServiceProviderModule = (*TasksModule)(nil)
	_ mono.HealthCheckableModule = (*TasksModule)(nil)
	_ mono.EventBusAwareModule   = (*TasksModule)(nil)
	_ mono.EventEmitterModule    = (*TasksModule)(nil)
	_ mono.UsePluginModule       = (*TasksModule)(nil)
)

// NewModule creates a new TasksModule.
func NewModule() *TasksModule {
	return &TasksModule{
		log: logging.Module("tasks"),
	}
}

// Name returns the module name.
func (m *TasksModule) Name() string {
	return "tasks"
}

// SetPlugin receives the storage plugin before Start.
func (m *TasksModule) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != "storage" {
		return
	}
	if p, ok := plugin.(taskStoreProvider); ok {
		m.storage = p
	}
}

// SetEventBus receives the event bus used for lifecycle events.
func (m *TasksModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events published by this module.
func (m *TasksModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.TaskCreatedV1.ToBase(),
		events.TaskCompletedV1.ToBase(),
		events.TaskReopenedV1.ToBase(),
		events.TaskDeletedV1.ToBase(),
	}
}

// Start wires the service to the task store.
func (m *TasksModule) Start(_ context.Context) error {
	if m.storage == nil || m.storage.Tasks() == nil {
		return fmt.Errorf("storage plugin not set - ensure 'storage' plugin is registered")
	}

	service, err := NewTaskService(m.storage.Tasks())
	if err != nil {
		return err
	}
	service.SetNotifier(&lifecycleEvents{module: m})
	m.service = service

	if m.eventBus == nil {
		m.log.Warn("eventBus not set, lifecycle events will not be published")
	}
	m.log.Info("module started")
	return nil
}

// Stop shuts down the module.
func (m *TasksModule) Stop(_ context.Context) error {
	m.log.Info("module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *TasksModule) Health(_ context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "service not initialized",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *TasksModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "list-pending", json.Unmarshal, json.Marshal, m.handleListPending,
	); err != nil {
		return fmt.Errorf("failed to register list-pending service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "list-completed", json.Unmarshal, json.Marshal, m.handleListCompleted,
	); err != nil {
		return fmt.Errorf("failed to register list-completed service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "create-task", json.Unmarshal, json.Marshal, m.handleCreate,
	); err != nil {
		return fmt.Errorf("failed to register create-task service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "get-task", json.Unmarshal, json.Marshal, m.handleGet,
	); err != nil {
		return fmt.Errorf("failed to register get-task service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "update-task", json.Unmarshal, json.Marshal, m.handleUpdate,
	); err != nil {
		return fmt.Errorf("failed to register update-task service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "complete-task", json.Unmarshal, json.Marshal, m.handleComplete,
	); err != nil {
		return fmt.Errorf("failed to register complete-task service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "delete-task", json.Unmarshal, json.Marshal, m.handleDelete,
	); err != nil {
		return fmt.Errorf("failed to register delete-task service: %w", err)
	}

	m.log.Info("registered services: list-pending, list-completed, create-task, get-task, update-task, complete-task, delete-task")
	return nil
}

func (m *TasksModule) handleListPending(ctx context.Context, req ListRequest, _ *mono.Msg) (ListResponse, error) {
	tasks, err := m.service.ListPending(ctx, req.UserID)
	if err != nil {
		return ListResponse{Error: m.payload("list-pending", err)}, nil
	}
	return ListResponse{Tasks: tasks}, nil
}

func (m *TasksModule) handleListCompleted(ctx context.Context, req ListRequest, _ *mono.Msg) (ListResponse, error) {
	tasks, err := m.service.ListCompleted(ctx, req.UserID)
	if err != nil {
		return ListResponse{Error: m.payload("list-completed", err)}, nil
	}
	return ListResponse{Tasks: tasks}, nil
}

func (m *TasksModule) handleCreate(ctx context.Context, req CreateTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.service.Create(ctx, req)
	if err != nil {
		return TaskResponse{Error: m.payload("create-task", err)}, nil
	}
	return TaskResponse{Task: t}, nil
}

func (m *TasksModule) handleGet(ctx context.Context, req TaskRequest, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.service.Get(ctx, req.UserID, req.TaskID)
	if err != nil {
		return TaskResponse{Error: m.payload("get-task", err)}, nil
	}
	return TaskResponse{Task: t}, nil
}

func (m *TasksModule) handleUpdate(ctx context.Context, req UpdateTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.service.Update(ctx, req)
	if err != nil {
		return TaskResponse{Error: m.payload("update-task", err)}, nil
	}
	return TaskResponse{Task: t}, nil
}

func (m *TasksModule) handleComplete(ctx context.Context, req TaskRequest, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.service.Complete(ctx, req.UserID, req.TaskID)
	if err != nil {
		return TaskResponse{Error: m.payload("complete-task", err)}, nil
	}
	return TaskResponse{Task: t}, nil
}

func (m *TasksModule) handleDelete(ctx context.Context, req TaskRequest, _ *mono.Msg) (DeleteTaskResponse, error) {
	if err := m.service.Delete(ctx, req.UserID, req.TaskID); err != nil {
		return DeleteTaskResponse{Error: m.payload("delete-task", err)}, nil
	}
	return DeleteTaskResponse{}, nil
}

func (m *TasksModule) payload(service string, err error) *errs.Payload {
	if errs.KindOf(err) == errs.KindInternal {
		m.log.WithError(err).WithField("service", service).Error("request failed")
	}
	return errs.ToPayload(err)
}

// lifecycleEvents publishes task lifecycle events on the module's bus.
// Publishing is best effort; failures are logged and never reach the caller.
type lifecycleEvents struct {
	module *TasksModule
}

func (l *lifecycleEvents) warn(err error, event, taskID string) {
	l.module.log.WithError(err).WithFields(logrus.Fields{
		"event":   event,
		"task_id": taskID,
	}).Warn("failed to publish event")
}

func (l *lifecycleEvents) TaskCreated(_ context.Context, t *task.Task) {
	bus := l.module.eventBus
	if bus == nil {
		return
	}
	event := events.TaskCreatedEvent{
		TaskID:         t.ID,
		UserID:         t.UserID,
		Name:           t.Name,
		ChecklistItems: len(t.Checklist),
		CreatedAt:      t.CreatedAt,
	}
	if err := events.TaskCreatedV1.Publish(bus, event, nil); err != nil {
		l.warn(err, "TaskCreated", t.ID)
	}
}

func (l *lifecycleEvents) TaskCompleted(_ context.Context, t *task.Task) {
	bus := l.module.eventBus
	if bus == nil || t.CompletedAt == nil {
		return
	}
	event := events.TaskCompletedEvent{
		TaskID:      t.ID,
		UserID:      t.UserID,
		CompletedAt: *t.CompletedAt,
	}
	if err := events.TaskCompletedV1.Publish(bus, event, nil); err != nil {
		l.warn(err, "TaskCompleted", t.ID)
	}
}

func (l *lifecycleEvents) TaskReopened(_ context.Context, t *task.Task, at time.Time) {
	bus := l.module.eventBus
	if bus == nil {
		return
	}
	event := events.TaskReopenedEvent{
		TaskID:     t.ID,
		UserID:     t.UserID,
		ReopenedAt: at,
	}
	if err := events.TaskReopenedV1.Publish(bus, event, nil); err != nil {
		l.warn(err, "TaskReopened", t.ID)
	}
}

func (l *lifecycleEvents) TaskDeleted(_ context.Context, userID, taskID string, at time.Time) {
	bus := l.module.eventBus
	if bus == nil {
		return
	}
	event := events.TaskDeletedEvent{
		TaskID:    taskID,
		UserID:    userID,
		DeletedAt: at,
	}
	if err := events.TaskDeletedV1.Publish(bus, event, nil); err != nil {
		l.warn(err, "TaskDeleted", taskID)
	}
}
