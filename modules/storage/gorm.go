package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/task-tracker/domain/task"
	"github.com/example/task-tracker/domain/user"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// OpenSQLite opens (or creates) a SQLite database and migrates the schema.
// Pass ":memory:" for a throwaway database. Foreign keys are enforced.
func OpenSQLite(path string, debug bool) (*gorm.DB, error) {
	logMode := logger.Silent
	if debug {
		logMode = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		Logger:         logger.Default.LogMode(logMode),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite serializes writers anyway, and an in-memory database only
	// exists on the connection that created it.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&user.User{}, &task.Task{}, &task.ChecklistItem{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// sqliteDSN turns on foreign key enforcement, which SQLite leaves off per
// connection by default.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on"
}

// isUniqueViolation reports whether err comes from a unique constraint.
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GormUserStore implements user.Store with GORM.
type GormUserStore struct {
	db *gorm.DB
}

var _ user.Store = (*GormUserStore)(nil)

// NewGormUserStore creates a new GormUserStore.
func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

// Create inserts a new user.
func (s *GormUserStore) Create(ctx context.Context, u *user.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return user.ErrConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByID finds a user by ID.
func (s *GormUserStore) FindByID(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

// FindByLogin finds a user by username or email.
func (s *GormUserStore) FindByLogin(ctx context.Context, emailOrUsername string) (*user.User, error) {
	var u user.User
	err := s.db.WithContext(ctx).
		Where("username = ? OR email = ?", emailOrUsername, strings.ToLower(emailOrUsername)).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

// Taken checks username and email against every user except excludeID.
func (s *GormUserStore) Taken(ctx context.Context, excludeID, username, email string) (bool, bool, error) {
	exists := func(column, value string) (bool, error) {
		if value == "" {
			return false, nil
		}
		var count int64
		err := s.db.WithContext(ctx).Model(&user.User{}).
			Where(column+" = ? AND id <> ?", value, excludeID).
			Count(&count).Error
		return count > 0, err
	}

	usernameTaken, err := exists("username", username)
	if err != nil {
		return false, false, fmt.Errorf("failed to check username: %w", err)
	}
	emailTaken, err := exists("email", email)
	if err != nil {
		return false, false, fmt.Errorf("failed to check email: %w", err)
	}
	return usernameTaken, emailTaken, nil
}

// UpdateProfile changes the username and email of a user.
func (s *GormUserStore) UpdateProfile(ctx context.Context, id, username, email string) (*user.User, error) {
	result := s.db.WithContext(ctx).Model(&user.User{}).Where("id = ?", id).Updates(map[string]any{
		"username":   username,
		"email":      email,
		"updated_at": time.Now().UTC(),
	})
	if err := result.Error; err != nil {
		if isUniqueViolation(err) {
			return nil, user.ErrConflict
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected == 0 {
		return nil, user.ErrNotFound
	}
	return s.FindByID(ctx, id)
}

// UpdatePassword replaces the stored password hash.
func (s *GormUserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result := s.db.WithContext(ctx).Model(&user.User{}).Where("id = ?", id).Updates(map[string]any{
		"password_hash": passwordHash,
		"updated_at":    time.Now().UTC(),
	})
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected == 0 {
		return user.ErrNotFound
	}
	return nil
}

// DeleteWithTasks removes checklist items, tasks and then the user in one
// transaction. Nothing is removed if the user does not exist.
func (s *GormUserStore) DeleteWithTasks(ctx context.Context, id string) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&task.Task{}).Select("id").Where("user_id = ?", id)
		if err := tx.Where("task_id IN (?)", owned).Delete(&task.ChecklistItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete checklist items: %w", err)
		}

		result := tx.Where("user_id = ?", id).Delete(&task.Task{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete tasks: %w", result.Error)
		}
		removed = result.RowsAffected

		result = tx.Delete(&user.User{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return user.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// GormTaskStore implements task.Store with GORM. Checklist items live in
// their own table ordered by position.
type GormTaskStore struct {
	db *gorm.DB
}

var _ task.Store = (*GormTaskStore)(nil)

// NewGormTaskStore creates a new GormTaskStore.
func NewGormTaskStore(db *gorm.DB) *GormTaskStore {
	return &GormTaskStore{db: db}
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// Create inserts a task together with its checklist.
func (s *GormTaskStore) Create(ctx context.Context, t *task.Task) error {
	t.Normalize()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(t).Error; err != nil {
			if errors.Is(err, gorm.ErrForeignKeyViolated) {
				return task.ErrOwnerNotFound
			}
			return fmt.Errorf("failed to create task: %w", err)
		}
		return replaceChecklist(tx, t)
	})
}

// Get returns the task only if ownerID owns it.
func (s *GormTaskStore) Get(ctx context.Context, ownerID, taskID string) (*task.Task, error) {
	return findOwned(s.db.WithContext(ctx), ownerID, taskID)
}

// List returns the owner's tasks in the given state. Equal timestamps fall
// back to insertion order, newest first.
func (s *GormTaskStore) List(ctx context.Context, ownerID string, status task.Status) ([]task.Task, error) {
	order := "created_at DESC, rowid DESC"
	if status == task.Completed {
		order = "completed_at DESC, rowid DESC"
	}

	tasks := []task.Task{}
	err := s.db.WithContext(ctx).
		Preload("Checklist", byPosition).
		Where("user_id = ? AND completed = ?", ownerID, status == task.Completed).
		Order(order).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	for i := range tasks {
		tasks[i].Normalize()
	}
	return tasks, nil
}

// Mutate applies fn to the owned task and saves it in one transaction.
func (s *GormTaskStore) Mutate(ctx context.Context, ownerID, taskID string, fn task.MutateFunc) (*task.Task, error) {
	var saved *task.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := findOwned(tx, ownerID, taskID)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		t.ID, t.UserID = taskID, ownerID
		t.Normalize()

		result := tx.Model(&task.Task{}).
			Where("id = ? AND user_id = ?", taskID, ownerID).
			Updates(map[string]any{
				"name":         t.Name,
				"comment":      t.Comment,
				"completed":    t.Completed,
				"completed_at": t.CompletedAt,
				"updated_at":   t.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update task: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return task.ErrNotFound
		}

		if err := tx.Where("task_id = ?", taskID).Delete(&task.ChecklistItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear checklist: %w", err)
		}
		if err := replaceChecklist(tx, t); err != nil {
			return err
		}
		saved = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Delete removes the owned task and its checklist.
func (s *GormTaskStore) Delete(ctx context.Context, ownerID, taskID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", taskID, ownerID).Delete(&task.Task{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete task: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return task.ErrNotFound
		}
		if err := tx.Where("task_id = ?", taskID).Delete(&task.ChecklistItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete checklist: %w", err)
		}
		return nil
	})
}

func findOwned(db *gorm.DB, ownerID, taskID string) (*task.Task, error) {
	var t task.Task
	err := db.Preload("Checklist", byPosition).
		Where("id = ? AND user_id = ?", taskID, ownerID).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, task.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	t.Normalize()
	return &t, nil
}

func replaceChecklist(tx *gorm.DB, t *task.Task) error {
	if len(t.Checklist) == 0 {
		return nil
	}
	if err := tx.Create(&t.Checklist).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("duplicate checklist item id: %w", err)
		}
		return fmt.Errorf("failed to save checklist: %w", err)
	}
	return nil
}
