package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/task-tracker/domain/task"
	domain "github.com/example/task-tracker/domain/user"
	"github.com/example/task-tracker/errs"
	"github.com/example/task-tracker/modules/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memoryRevoker is an in-process Revoker for tests.
type memoryRevoker struct {
	mu   sync.Mutex
	cuts map[string]time.Time
}

func newMemoryRevoker() *memoryRevoker {
	return &memoryRevoker{cuts: map[string]time.Time{}}
}

func (r *memoryRevoker) Revoke(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cuts[userID] = at
	return nil
}

func (r *memoryRevoker) RevokedAt(_ context.Context, userID string) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.cuts[userID]
	return at, ok, nil
}

type recordingNotifier struct {
	deleted []string
}

func (n *recordingNotifier) AccountDeleted(_ context.Context, userID string, _ int64) {
	n.deleted = append(n.deleted, userID)
}

// testClock is a settable clock shared by the service and its JWT manager.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

type fixture struct {
	service *AuthService
	users   *storage.GormUserStore
	tasks   *storage.GormTaskStore
	clock   *testClock
}

func setupService(t *testing.T, revoker Revoker) *fixture {
	t.Helper()

	db, err := storage.OpenSQLite(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clock := &testClock{now: time.Now()}
	jwtManager := NewJWTManager(testJWTConfig())
	jwtManager.now = clock.Now

	users := storage.NewGormUserStore(db)
	service := NewAuthService(users, NewPasswordHasher(bcrypt.MinCost), jwtManager, revoker)
	service.now = clock.Now

	return &fixture{
		service: service,
		users:   users,
		tasks:   storage.NewGormTaskStore(db),
		clock:   clock,
	}
}

func registerAlice(t *testing.T, s *AuthService) *AuthResult {
	t.Helper()
	result, err := s.Register(context.Background(), RegisterRequest{
		Username:        "alice",
		Email:           "a@x.io",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	return result
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	return e.Fields
}

func TestAuthService_Register(t *testing.T) {
	f := setupService(t, nil)

	result := registerAlice(t, f.service)
	assert.NotEmpty(t, result.Token)
	assert.NotEmpty(t, result.User.ID)
	assert.Equal(t, "alice", result.User.Username)
	assert.Equal(t, "a@x.io", result.User.Email)

	stored, err := f.users.FindByID(context.Background(), result.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")))

	claims, err := f.service.ValidateToken(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.UserID)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	f := setupService(t, nil)

	tests := []struct {
		name      string
		req       RegisterRequest
		wantField string
	}{
		{
			name:      "short username",
			req:       RegisterRequest{Username: "al", Email: "a@x.io", Password: "secret1", ConfirmPassword: "secret1"},
			wantField: "username",
		},
		{
			name:      "malformed email",
			req:       RegisterRequest{Username: "alice", Email: "not-an-email", Password: "secret1", ConfirmPassword: "secret1"},
			wantField: "email",
		},
		{
			name:      "display name email",
			req:       RegisterRequest{Username: "alice", Email: "Alice <a@x.io>", Password: "secret1", ConfirmPassword: "secret1"},
			wantField: "email",
		},
		{
			name:      "short password",
			req:       RegisterRequest{Username: "alice", Email: "a@x.io", Password: "12345", ConfirmPassword: "12345"},
			wantField: "password",
		},
		{
			name:      "mismatched confirmation",
			req:       RegisterRequest{Username: "alice", Email: "a@x.io", Password: "secret1", ConfirmPassword: "secret2"},
			wantField: "confirmPassword",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Register(context.Background(), tt.req)
			require.True(t, errs.Is(err, errs.KindValidation), "got %v", err)
			assert.Contains(t, fieldsOf(t, err), tt.wantField)
		})
	}

	// Nothing was stored by the rejected attempts.
	_, err := f.users.FindByLogin(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuthService_RegisterConflict(t *testing.T) {
	f := setupService(t, nil)
	registerAlice(t, f.service)

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{name: "same username", req: RegisterRequest{Username: "alice", Email: "other@x.io", Password: "secret1", ConfirmPassword: "secret1"}},
		{name: "same email", req: RegisterRequest{Username: "alice2", Email: "A@X.io", Password: "secret1", ConfirmPassword: "secret1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Register(context.Background(), tt.req)
			assert.True(t, errs.Is(err, errs.KindConflict), "got %v", err)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	f := setupService(t, nil)
	alice := registerAlice(t, f.service)
	ctx := context.Background()

	byUsername, err := f.service.Login(ctx, LoginRequest{EmailOrUsername: "alice", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, alice.User.ID, byUsername.User.ID)

	byEmail, err := f.service.Login(ctx, LoginRequest{EmailOrUsername: "a@x.io", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, alice.User.ID, byEmail.User.ID)

	_, wrongPassword := f.service.Login(ctx, LoginRequest{EmailOrUsername: "alice", Password: "wrong!"})
	_, unknownUser := f.service.Login(ctx, LoginRequest{EmailOrUsername: "nobody", Password: "wrong!"})

	assert.True(t, errs.Is(wrongPassword, errs.KindUnauthorized))
	assert.True(t, errs.Is(unknownUser, errs.KindUnauthorized))
	assert.Equal(t, errs.ToPayload(wrongPassword), errs.ToPayload(unknownUser),
		"unknown user and wrong password must look identical")
}

func TestAuthService_LoginUnknownUserComparesHash(t *testing.T) {
	f := setupService(t, nil)
	registerAlice(t, f.service)
	ctx := context.Background()

	compares := 0
	compare := f.service.hasher.compare
	f.service.hasher.compare = func(hash, password []byte) error {
		compares++
		return compare(hash, password)
	}

	_, err := f.service.Login(ctx, LoginRequest{EmailOrUsername: "alice", Password: "wrong!"})
	require.Error(t, err)
	assert.Equal(t, 1, compares)

	_, err = f.service.Login(ctx, LoginRequest{EmailOrUsername: "nobody", Password: "wrong!"})
	require.Error(t, err)
	assert.Equal(t, 2, compares, "an unknown login still runs one bcrypt comparison")
}

func TestAuthService_ValidateToken(t *testing.T) {
	f := setupService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "malformed", token: "abc.def"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.ValidateToken(ctx, tt.token)
			assert.True(t, errs.Is(err, errs.KindUnauthorized), "got %v", err)
		})
	}

	t.Run("expired", func(t *testing.T) {
		alice := registerAlice(t, f.service)
		f.clock.now = f.clock.now.Add(7*24*time.Hour + time.Second)
		_, err := f.service.ValidateToken(ctx, alice.Token)
		assert.True(t, errs.Is(err, errs.KindUnauthorized), "got %v", err)
	})
}

func TestAuthService_UpdateProfile(t *testing.T) {
	f := setupService(t, nil)
	ctx := context.Background()
	alice := registerAlice(t, f.service)
	_, err := f.service.Register(ctx, RegisterRequest{
		Username: "bob", Email: "b@x.io", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)

	updated, err := f.service.UpdateProfile(ctx, UpdateProfileRequest{
		UserID: alice.User.ID, Username: "alice2", Email: "a2@x.io",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Username)
	assert.Equal(t, "a2@x.io", updated.Email)

	unchanged, err := f.service.UpdateProfile(ctx, UpdateProfileRequest{
		UserID: alice.User.ID, Username: "alice2", Email: "a2@x.io",
	})
	require.NoError(t, err, "keeping your own username and email is not a conflict")
	assert.Equal(t, "alice2", unchanged.Username)

	_, err = f.service.UpdateProfile(ctx, UpdateProfileRequest{
		UserID: alice.User.ID, Username: "bob", Email: "a2@x.io",
	})
	assert.True(t, errs.Is(err, errs.KindConflict), "got %v", err)

	_, err = f.service.UpdateProfile(ctx, UpdateProfileRequest{
		UserID: alice.User.ID, Username: "al", Email: "a2@x.io",
	})
	assert.True(t, errs.Is(err, errs.KindValidation), "got %v", err)

	_, err = f.service.UpdateProfile(ctx, UpdateProfileRequest{
		UserID: "missing", Username: "carol", Email: "c@x.io",
	})
	assert.True(t, errs.Is(err, errs.KindNotFound), "got %v", err)
}

func TestAuthService_ChangePassword(t *testing.T) {
	f := setupService(t, nil)
	ctx := context.Background()
	alice := registerAlice(t, f.service)

	_, err := f.service.ChangePassword(ctx, ChangePasswordRequest{
		UserID: alice.User.ID, CurrentPassword: "wrong!", NewPassword: "secret2",
	})
	require.True(t, errs.Is(err, errs.KindValidation), "got %v", err)
	assert.Contains(t, fieldsOf(t, err), "currentPassword")

	_, err = f.service.ChangePassword(ctx, ChangePasswordRequest{
		UserID: alice.User.ID, CurrentPassword: "secret1", NewPassword: "123",
	})
	require.True(t, errs.Is(err, errs.KindValidation), "got %v", err)
	assert.Contains(t, fieldsOf(t, err), "newPassword")

	result, err := f.service.ChangePassword(ctx, ChangePasswordRequest{
		UserID: alice.User.ID, CurrentPassword: "secret1", NewPassword: "secret2",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)

	_, err = f.service.Login(ctx, LoginRequest{EmailOrUsername: "alice", Password: "secret1"})
	assert.True(t, errs.Is(err, errs.KindUnauthorized))
	_, err = f.service.Login(ctx, LoginRequest{EmailOrUsername: "alice", Password: "secret2"})
	assert.NoError(t, err)
}

func TestAuthService_RevocationAfterPasswordChange(t *testing.T) {
	f := setupService(t, newMemoryRevoker())
	ctx := context.Background()
	alice := registerAlice(t, f.service)

	f.clock.now = f.clock.now.Add(2 * time.Second)
	fresh, err := f.service.ChangePassword(ctx, ChangePasswordRequest{
		UserID: alice.User.ID, CurrentPassword: "secret1", NewPassword: "secret2",
	})
	require.NoError(t, err)

	_, err = f.service.ValidateToken(ctx, alice.Token)
	assert.True(t, errs.Is(err, errs.KindUnauthorized), "old token must be revoked, got %v", err)

	claims, err := f.service.ValidateToken(ctx, fresh.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.User.ID, claims.UserID)
}

func TestAuthService_StatelessVerificationSurvivesDeletion(t *testing.T) {
	f := setupService(t, nil)
	ctx := context.Background()
	alice := registerAlice(t, f.service)

	_, err := f.service.DeleteAccount(ctx, alice.User.ID)
	require.NoError(t, err)

	claims, err := f.service.ValidateToken(ctx, alice.Token)
	require.NoError(t, err, "without revocation the token stays verifiable")
	assert.Equal(t, alice.User.ID, claims.UserID)
}

func TestAuthService_DeleteAccount(t *testing.T) {
	revoker := newMemoryRevoker()
	f := setupService(t, revoker)
	notifier := &recordingNotifier{}
	f.service.SetNotifier(notifier)
	ctx := context.Background()

	alice := registerAlice(t, f.service)
	now := time.Now().UTC()
	for _, id := range []string{"t1", "t2"} {
		require.NoError(t, f.tasks.Create(ctx, &task.Task{
			ID: id, UserID: alice.User.ID, Name: id, CreatedAt: now, UpdatedAt: now,
		}))
	}

	f.clock.now = f.clock.now.Add(2 * time.Second)
	removed, err := f.service.DeleteAccount(ctx, alice.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Equal(t, []string{alice.User.ID}, notifier.deleted)

	_, err = f.service.Login(ctx, LoginRequest{EmailOrUsername: "alice", Password: "secret1"})
	assert.True(t, errs.Is(err, errs.KindUnauthorized))

	_, err = f.tasks.Get(ctx, alice.User.ID, "t1")
	assert.ErrorIs(t, err, task.ErrNotFound)

	_, err = f.service.ValidateToken(ctx, alice.Token)
	assert.True(t, errs.Is(err, errs.KindUnauthorized), "token revoked after deletion")

	_, err = f.service.DeleteAccount(ctx, alice.User.ID)
	assert.True(t, errs.Is(err, errs.KindNotFound), "got %v", err)
}
