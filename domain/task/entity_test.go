package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func TestTaskApply_Transitions(t *testing.T) {
	created := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)
	muchLater := later.Add(time.Hour)

	task := &Task{ID: "t1", Name: "Buy milk", CreatedAt: created, UpdatedAt: created}

	got := task.Apply(Patch{Completed: ptr(true)}, later)
	assert.Equal(t, MarkedCompleted, got)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, later, *task.CompletedAt)

	got = task.Apply(Patch{Completed: ptr(true)}, muchLater)
	assert.Equal(t, Unchanged, got)
	assert.Equal(t, later, *task.CompletedAt, "completing twice keeps the first stamp")
	assert.Equal(t, muchLater, task.UpdatedAt)

	got = task.Apply(Patch{Completed: ptr(false)}, muchLater)
	assert.Equal(t, Reopened, got)
	assert.Nil(t, task.CompletedAt)
	assert.False(t, task.Completed)
}

func TestTaskApply_PartialFields(t *testing.T) {
	task := &Task{
		Name:      "old",
		Comment:   "keep me",
		Checklist: []ChecklistItem{{ID: "a", Text: "first"}},
	}

	task.Apply(Patch{Name: ptr("new")}, time.Now())
	assert.Equal(t, "new", task.Name)
	assert.Equal(t, "keep me", task.Comment)
	assert.Len(t, task.Checklist, 1)

	task.Apply(Patch{Checklist: &[]ChecklistItem{}}, time.Now())
	assert.Empty(t, task.Checklist, "an explicit empty checklist clears it")
}

func TestTaskNormalize(t *testing.T) {
	task := &Task{ID: "t9", Checklist: []ChecklistItem{{ID: "b"}, {ID: "a"}}}
	task.Normalize()

	assert.Equal(t, "t9", task.Checklist[0].TaskID)
	assert.Equal(t, 0, task.Checklist[0].Position)
	assert.Equal(t, 1, task.Checklist[1].Position)

	empty := &Task{}
	empty.Normalize()
	assert.NotNil(t, empty.Checklist)
}
