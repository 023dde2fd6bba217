package tasks

import (
	"context"
	"testing"

	"github.com/example/task-tracker/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTasksModule_StartRequiresStorage(t *testing.T) {
	m := NewModule()
	assert.Equal(t, "tasks", m.Name())
	assert.Len(t, m.EmitEvents(), 4)
	assert.Error(t, m.Start(context.Background()))
	assert.False(t, m.Health(context.Background()).Healthy)
}

func TestTasksModule_Envelopes(t *testing.T) {
	f := setupService(t)
	m := NewModule()
	m.service = f.service
	ctx := context.Background()

	created, err := m.handleCreate(ctx, CreateTaskRequest{UserID: "alice", Name: "Buy milk"}, nil)
	require.NoError(t, err)
	require.Nil(t, created.Error)
	require.NotNil(t, created.Task)

	invalid, err := m.handleCreate(ctx, CreateTaskRequest{UserID: "alice"}, nil)
	require.NoError(t, err, "domain failures travel inside the response")
	require.NotNil(t, invalid.Error)
	assert.Equal(t, errs.KindValidation, invalid.Error.Kind)
	assert.Contains(t, invalid.Error.Fields, "name")

	pending, err := m.handleListPending(ctx, ListRequest{UserID: "alice"}, nil)
	require.NoError(t, err)
	assert.Len(t, pending.Tasks, 1)

	foreign, err := m.handleGet(ctx, TaskRequest{UserID: "bob", TaskID: created.Task.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, errs.KindNotFound, foreign.Error.Kind)

	completed, err := m.handleComplete(ctx, TaskRequest{UserID: "alice", TaskID: created.Task.ID}, nil)
	require.NoError(t, err)
	require.NotNil(t, completed.Task)
	assert.True(t, completed.Task.Completed)

	done, err := m.handleListCompleted(ctx, ListRequest{UserID: "alice"}, nil)
	require.NoError(t, err)
	assert.Len(t, done.Tasks, 1)

	forbidden, err := m.handleListPending(ctx, ListRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, errs.KindForbidden, forbidden.Error.Kind)

	deleted, err := m.handleDelete(ctx, TaskRequest{UserID: "alice", TaskID: created.Task.ID}, nil)
	require.NoError(t, err)
	assert.Nil(t, deleted.Error)

	again, err := m.handleDelete(ctx, TaskRequest{UserID: "alice", TaskID: created.Task.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, errs.KindNotFound, again.Error.Kind)
}

func TestLifecycleEvents_NoBus(t *testing.T) {
	f := setupService(t)
	m := NewModule()
	f.service.SetNotifier(&lifecycleEvents{module: m})

	// Without a bus publishing is skipped and operations still succeed.
	created := f.create(t, "alice", "quiet")
	_, err := f.service.Complete(context.Background(), "alice", created.ID)
	require.NoError(t, err)
	require.NoError(t, f.service.Delete(context.Background(), "alice", created.ID))
}
