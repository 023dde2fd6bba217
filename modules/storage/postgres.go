package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/task-tracker/domain/task"
	"github.com/example/task-tracker/domain/user"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	comment      TEXT NOT NULL DEFAULT '',
	checklist    JSONB NOT NULL DEFAULT '[]'::jsonb,
	completed    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	seq          BIGSERIAL
);

ALTER TABLE tasks ADD COLUMN IF NOT EXISTS seq BIGSERIAL;

CREATE INDEX IF NOT EXISTS idx_tasks_owner_state ON tasks (user_id, completed);
`

// OpenPostgres connects to PostgreSQL and creates the schema if needed.
func OpenPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return pool, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isPgDuplicateKeyError checks if error is a PostgreSQL unique violation.
func isPgDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isPgForeignKeyError checks if error is a PostgreSQL foreign key violation.
func isPgForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// PostgresUserStore implements user.Store with pgx.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

var _ user.Store = (*PostgresUserStore)(nil)

// NewPostgresUserStore creates a new PostgresUserStore.
func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

const userColumns = `id, username, email, password_hash, created_at, updated_at`

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// Create inserts a new user.
func (s *PostgresUserStore) Create(ctx context.Context, u *user.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isPgDuplicateKeyError(err) {
			return user.ErrConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByID finds a user by ID.
func (s *PostgresUserStore) FindByID(ctx context.Context, id string) (*user.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindByLogin finds a user by username or email.
func (s *PostgresUserStore) FindByLogin(ctx context.Context, emailOrUsername string) (*user.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $2 LIMIT 1`,
		emailOrUsername, strings.ToLower(emailOrUsername)))
}

// Taken checks username and email against every user except excludeID.
func (s *PostgresUserStore) Taken(ctx context.Context, excludeID, username, email string) (bool, bool, error) {
	var usernameTaken, emailTaken bool
	err := s.pool.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM users WHERE $2 <> '' AND username = $2 AND id <> $1),
			EXISTS (SELECT 1 FROM users WHERE $3 <> '' AND email = $3 AND id <> $1)`,
		excludeID, username, email).Scan(&usernameTaken, &emailTaken)
	if err != nil {
		return false, false, fmt.Errorf("failed to check uniqueness: %w", err)
	}
	return usernameTaken, emailTaken, nil
}

// UpdateProfile changes the username and email of a user.
func (s *PostgresUserStore) UpdateProfile(ctx context.Context, id, username, email string) (*user.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET username = $2, email = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+userColumns,
		id, username, email, time.Now().UTC()))
	if err != nil && isPgDuplicateKeyError(err) {
		return nil, user.ErrConflict
	}
	return u, err
}

// UpdatePassword replaces the stored password hash.
func (s *PostgresUserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// DeleteWithTasks removes the user's tasks and then the user in one
// transaction.
func (s *PostgresUserStore) DeleteWithTasks(ctx context.Context, id string) (int64, error) {
	var removed int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM tasks WHERE user_id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete tasks: %w", err)
		}
		removed = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return user.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// PostgresTaskStore implements task.Store with pgx. The checklist is kept
// as a JSONB array, which preserves item order.
type PostgresTaskStore struct {
	pool *pgxpool.Pool
}

var _ task.Store = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(pool *pgxpool.Pool) *PostgresTaskStore {
	return &PostgresTaskStore{pool: pool}
}

const taskColumns = `id, user_id, name, comment, checklist, completed, created_at, updated_at, completed_at`

func scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Comment, &t.Checklist,
		&t.Completed, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, task.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	t.Normalize()
	return &t, nil
}

// Create inserts a task.
func (s *PostgresTaskStore) Create(ctx context.Context, t *task.Task) error {
	t.Normalize()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.UserID, t.Name, t.Comment, t.Checklist,
		t.Completed, t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	if err != nil {
		if isPgForeignKeyError(err) {
			return task.ErrOwnerNotFound
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get returns the task only if ownerID owns it.
func (s *PostgresTaskStore) Get(ctx context.Context, ownerID, taskID string) (*task.Task, error) {
	return getOwnedTask(ctx, s.pool, ownerID, taskID, false)
}

// List returns the owner's tasks in the given state. Equal timestamps fall
// back to insertion order, newest first.
func (s *PostgresTaskStore) List(ctx context.Context, ownerID string, status task.Status) ([]task.Task, error) {
	order := "created_at DESC, seq DESC"
	if status == task.Completed {
		order = "completed_at DESC, seq DESC"
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 AND completed = $2 ORDER BY `+order,
		ownerID, status == task.Completed)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Mutate locks the owned task, applies fn and saves it in one transaction.
func (s *PostgresTaskStore) Mutate(ctx context.Context, ownerID, taskID string, fn task.MutateFunc) (*task.Task, error) {
	var saved *task.Task
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := getOwnedTask(ctx, tx, ownerID, taskID, true)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		t.ID, t.UserID = taskID, ownerID
		t.Normalize()

		tag, err := tx.Exec(ctx, `
			UPDATE tasks
			SET name = $3, comment = $4, checklist = $5, completed = $6, completed_at = $7, updated_at = $8
			WHERE id = $1 AND user_id = $2`,
			taskID, ownerID, t.Name, t.Comment, t.Checklist, t.Completed, t.CompletedAt, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return task.ErrNotFound
		}
		saved = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Delete removes the owned task.
func (s *PostgresTaskStore) Delete(ctx context.Context, ownerID, taskID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, taskID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}
	return nil
}

func getOwnedTask(ctx context.Context, q querier, ownerID, taskID string, forUpdate bool) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanTask(q.QueryRow(ctx, query, taskID, ownerID))
}
