package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/task-tracker/domain/task"
	"github.com/example/task-tracker/domain/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := OpenSQLite(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newUser(id, username, email string) *user.User {
	now := time.Now().UTC()
	return &user.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// seedUsers inserts one account per id so tasks can reference them.
func seedUsers(t *testing.T, db *gorm.DB, ids ...string) {
	t.Helper()
	users := NewGormUserStore(db)
	for _, id := range ids {
		require.NoError(t, users.Create(context.Background(), newUser(id, id, id+"@example.com")))
	}
}

func newTask(id, owner, name string, created time.Time, items ...task.ChecklistItem) *task.Task {
	return &task.Task{
		ID:        id,
		UserID:    owner,
		Name:      name,
		Checklist: items,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestGormUserStore_CreateAndFind(t *testing.T) {
	store := NewGormUserStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newUser("u1", "alice", "alice@example.com")))

	byID, err := store.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	byUsername, err := store.FindByLogin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", byUsername.ID)

	byEmail, err := store.FindByLogin(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)

	_, err = store.FindByLogin(ctx, "bob")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestGormUserStore_UniqueConstraints(t *testing.T) {
	store := NewGormUserStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newUser("u1", "alice", "alice@example.com")))
	require.NoError(t, store.Create(ctx, newUser("u2", "bob", "bob@example.com")))

	err := store.Create(ctx, newUser("u3", "alice", "other@example.com"))
	assert.ErrorIs(t, err, user.ErrConflict)

	usernameTaken, emailTaken, err := store.Taken(ctx, "", "alice", "new@example.com")
	require.NoError(t, err)
	assert.True(t, usernameTaken)
	assert.False(t, emailTaken)

	usernameTaken, emailTaken, err = store.Taken(ctx, "u1", "alice", "alice@example.com")
	require.NoError(t, err)
	assert.False(t, usernameTaken, "a user does not conflict with itself")
	assert.False(t, emailTaken)

	_, err = store.UpdateProfile(ctx, "u2", "alice", "bob@example.com")
	assert.ErrorIs(t, err, user.ErrConflict)
}

func TestGormUserStore_UpdateProfileAndPassword(t *testing.T) {
	store := NewGormUserStore(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newUser("u1", "alice", "alice@example.com")))

	updated, err := store.UpdateProfile(ctx, "u1", "alice2", "alice2@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Username)
	assert.Equal(t, "alice2@example.com", updated.Email)

	require.NoError(t, store.UpdatePassword(ctx, "u1", "new-hash"))
	got, err := store.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	assert.ErrorIs(t, store.UpdatePassword(ctx, "missing", "x"), user.ErrNotFound)
	_, err = store.UpdateProfile(ctx, "missing", "x", "x@example.com")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestGormUserStore_DeleteWithTasks(t *testing.T) {
	db := setupTestDB(t)
	users := NewGormUserStore(db)
	tasks := NewGormTaskStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, users.Create(ctx, newUser("u1", "alice", "alice@example.com")))
	require.NoError(t, users.Create(ctx, newUser("u2", "bob", "bob@example.com")))
	require.NoError(t, tasks.Create(ctx, newTask("t1", "u1", "one", now, task.ChecklistItem{ID: "c1", Text: "x"})))
	require.NoError(t, tasks.Create(ctx, newTask("t2", "u1", "two", now)))
	require.NoError(t, tasks.Create(ctx, newTask("t3", "u2", "bob's", now)))

	removed, err := users.DeleteWithTasks(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = users.FindByID(ctx, "u1")
	assert.ErrorIs(t, err, user.ErrNotFound)
	_, err = tasks.Get(ctx, "u1", "t1")
	assert.ErrorIs(t, err, task.ErrNotFound)

	var items int64
	require.NoError(t, db.Model(&task.ChecklistItem{}).Where("task_id = ?", "t1").Count(&items).Error)
	assert.Zero(t, items)

	_, err = tasks.Get(ctx, "u2", "t3")
	assert.NoError(t, err, "other users' tasks survive")
}

func TestGormUserStore_DeleteMissingUser(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "u1")
	users := NewGormUserStore(db)
	tasks := NewGormTaskStore(db)
	ctx := context.Background()

	require.NoError(t, tasks.Create(ctx, newTask("t1", "u1", "keep", time.Now().UTC())))

	_, err := users.DeleteWithTasks(ctx, "ghost")
	assert.ErrorIs(t, err, user.ErrNotFound)

	_, err = tasks.Get(ctx, "u1", "t1")
	assert.NoError(t, err)
}

func TestGormTaskStore_CreateRequiresOwner(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "u1")
	users := NewGormUserStore(db)
	tasks := NewGormTaskStore(db)
	ctx := context.Background()

	err := tasks.Create(ctx, newTask("t0", "ghost", "nobody's", time.Now().UTC()))
	assert.ErrorIs(t, err, task.ErrOwnerNotFound)

	_, err = users.DeleteWithTasks(ctx, "u1")
	require.NoError(t, err)

	err = tasks.Create(ctx, newTask("t1", "u1", "too late", time.Now().UTC(),
		task.ChecklistItem{ID: "c1", Text: "x"},
	))
	assert.ErrorIs(t, err, task.ErrOwnerNotFound)

	_, err = tasks.Get(ctx, "u1", "t1")
	assert.ErrorIs(t, err, task.ErrNotFound)

	var count int64
	require.NoError(t, db.Model(&task.ChecklistItem{}).Count(&count).Error)
	assert.Zero(t, count, "checklist rows roll back with the task")
}

func TestGormTaskStore_ChecklistOrderPreserved(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "u1")
	store := NewGormTaskStore(db)
	ctx := context.Background()

	items := []task.ChecklistItem{
		{ID: "z", Text: "last letter first"},
		{ID: "a", Text: "first letter second", Checked: true},
		{ID: "m", Text: "middle third"},
	}
	require.NoError(t, store.Create(ctx, newTask("t1", "u1", "ordered", time.Now().UTC(), items...)))

	got, err := store.Get(ctx, "u1", "t1")
	require.NoError(t, err)
	require.Len(t, got.Checklist, 3)
	assert.Equal(t, "z", got.Checklist[0].ID)
	assert.Equal(t, "a", got.Checklist[1].ID)
	assert.True(t, got.Checklist[1].Checked)
	assert.Equal(t, "m", got.Checklist[2].ID)
}

func TestGormTaskStore_OwnerScoping(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "alice", "bob")
	store := NewGormTaskStore(db)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTask("t1", "alice", "mine", time.Now().UTC())))

	_, err := store.Get(ctx, "bob", "t1")
	assert.ErrorIs(t, err, task.ErrNotFound)

	called := false
	_, err = store.Mutate(ctx, "bob", "t1", func(t *task.Task) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, task.ErrNotFound)
	assert.False(t, called)

	assert.ErrorIs(t, store.Delete(ctx, "bob", "t1"), task.ErrNotFound)

	_, err = store.Get(ctx, "alice", "t1")
	assert.NoError(t, err)
}

func TestGormTaskStore_ListOrdering(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "u1", "u2")
	store := NewGormTaskStore(db)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(ctx, newTask("old", "u1", "old", base)))
	require.NoError(t, store.Create(ctx, newTask("mid", "u1", "mid", base.Add(time.Minute))))
	require.NoError(t, store.Create(ctx, newTask("new", "u1", "new", base.Add(2*time.Minute))))
	require.NoError(t, store.Create(ctx, newTask("other", "u2", "other", base)))

	pending, err := store.List(ctx, "u1", task.Pending)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{pending[0].ID, pending[1].ID, pending[2].ID})

	complete := func(id string, at time.Time) {
		_, err := store.Mutate(ctx, "u1", id, func(t *task.Task) error {
			done := true
			t.Apply(task.Patch{Completed: &done}, at)
			return nil
		})
		require.NoError(t, err)
	}
	complete("new", base.Add(time.Hour))
	complete("old", base.Add(2*time.Hour))

	completed, err := store.List(ctx, "u1", task.Completed)
	require.NoError(t, err)
	require.Len(t, completed, 2)
	assert.Equal(t, "old", completed[0].ID, "most recently completed first")
	assert.Equal(t, "new", completed[1].ID)

	pending, err = store.List(ctx, "u1", task.Pending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "mid", pending[0].ID)
}

func TestGormTaskStore_ListOrderingTies(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "u1")
	store := NewGormTaskStore(db)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Create(ctx, newTask(id, "u1", id, at)))
	}

	pending, err := store.List(ctx, "u1", task.Pending)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{pending[0].ID, pending[1].ID, pending[2].ID})

	for _, id := range []string{"a", "c"} {
		_, err := store.Mutate(ctx, "u1", id, func(t *task.Task) error {
			done := true
			t.Apply(task.Patch{Completed: &done}, at.Add(time.Hour))
			return nil
		})
		require.NoError(t, err)
	}

	completed, err := store.List(ctx, "u1", task.Completed)
	require.NoError(t, err)
	require.Len(t, completed, 2)
	assert.Equal(t, []string{"c", "a"}, []string{completed[0].ID, completed[1].ID})
}

func TestGormTaskStore_MutateReplacesChecklist(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "u1")
	store := NewGormTaskStore(db)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTask("t1", "u1", "list", time.Now().UTC(),
		task.ChecklistItem{ID: "a", Text: "one"},
		task.ChecklistItem{ID: "b", Text: "two"},
	)))

	updated, err := store.Mutate(ctx, "u1", "t1", func(t *task.Task) error {
		t.Checklist = []task.ChecklistItem{{ID: "b", Text: "two", Checked: true}}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, updated.Checklist, 1)

	got, err := store.Get(ctx, "u1", "t1")
	require.NoError(t, err)
	require.Len(t, got.Checklist, 1)
	assert.Equal(t, "b", got.Checklist[0].ID)
	assert.True(t, got.Checklist[0].Checked)
}

func TestGormTaskStore_MutateAbortsOnError(t *testing.T) {
	db := setupTestDB(t)
	seedUsers(t, db, "u1")
	store := NewGormTaskStore(db)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTask("t1", "u1", "keep", time.Now().UTC())))

	boom := errors.New("boom")
	_, err := store.Mutate(ctx, "u1", "t1", func(t *task.Task) error {
		t.Name = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "keep", got.Name)
}
