package auth

import (
	"context"
	"testing"

	"github.com/example/task-tracker/config"
	"github.com/example/task-tracker/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupModule(t *testing.T) *AuthModule {
	t.Helper()
	f := setupService(t, nil)
	m := NewModule(config.Default().Auth, config.RedisConfig{})
	m.service = f.service
	return m
}

func TestAuthModule_StartRequiresStorage(t *testing.T) {
	m := NewModule(config.Default().Auth, config.RedisConfig{})
	assert.Error(t, m.Start(context.Background()))
	assert.False(t, m.Health(context.Background()).Healthy)
}

func TestAuthModule_Metadata(t *testing.T) {
	m := NewModule(config.Default().Auth, config.RedisConfig{})
	assert.Equal(t, "auth", m.Name())
	assert.Len(t, m.EmitEvents(), 1)
}

func TestAuthModule_Envelopes(t *testing.T) {
	m := setupModule(t)
	ctx := context.Background()

	registered, err := m.handleRegister(ctx, RegisterRequest{
		Username: "alice", Email: "a@x.io", Password: "secret1", ConfirmPassword: "secret1",
	}, nil)
	require.NoError(t, err)
	require.Nil(t, registered.Error)
	require.NotNil(t, registered.Result)

	dup, err := m.handleRegister(ctx, RegisterRequest{
		Username: "alice", Email: "a@x.io", Password: "secret1", ConfirmPassword: "secret1",
	}, nil)
	require.NoError(t, err, "domain failures travel inside the response")
	require.NotNil(t, dup.Error)
	assert.Equal(t, errs.KindConflict, dup.Error.Kind)

	badLogin, err := m.handleLogin(ctx, LoginRequest{EmailOrUsername: "alice", Password: "nope!!"}, nil)
	require.NoError(t, err)
	require.NotNil(t, badLogin.Error)
	assert.Equal(t, errs.KindUnauthorized, badLogin.Error.Kind)

	valid, err := m.handleValidateToken(ctx, ValidateTokenRequest{Token: registered.Result.Token}, nil)
	require.NoError(t, err)
	assert.True(t, valid.Valid)
	assert.Equal(t, registered.Result.User.ID, valid.UserID)

	invalid, err := m.handleValidateToken(ctx, ValidateTokenRequest{Token: "garbage"}, nil)
	require.NoError(t, err)
	assert.False(t, invalid.Valid)
	assert.Equal(t, errs.KindUnauthorized, invalid.Error.Kind)

	user, err := m.handleGetUser(ctx, GetUserRequest{UserID: registered.Result.User.ID}, nil)
	require.NoError(t, err)
	require.NotNil(t, user.User)
	assert.Equal(t, "alice", user.User.Username)

	missing, err := m.handleGetUser(ctx, GetUserRequest{UserID: "missing"}, nil)
	require.NoError(t, err)
	assert.Equal(t, errs.KindNotFound, missing.Error.Kind)

	deleted, err := m.handleDeleteAccount(ctx, DeleteAccountRequest{UserID: registered.Result.User.ID}, nil)
	require.NoError(t, err)
	assert.Nil(t, deleted.Error)
	assert.Equal(t, int64(0), deleted.TasksRemoved)
}

func TestAuthModule_EnvelopeRoundTrip(t *testing.T) {
	m := setupModule(t)
	ctx := context.Background()

	resp, err := m.handleRegister(ctx, RegisterRequest{Username: "al", Email: "bad"}, nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)

	rebuilt := resp.Error.Err()
	assert.True(t, errs.Is(rebuilt, errs.KindValidation))
	var e *errs.Error
	require.ErrorAs(t, rebuilt, &e)
	assert.Contains(t, e.Fields, "username")
	assert.Contains(t, e.Fields, "email")
}
