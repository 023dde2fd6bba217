package auth

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/task-tracker/domain/user"
	"github.com/example/task-tracker/errs"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// AuthPort defines the interface for authentication operations.
// This is the port that other modules use to access auth functionality.
type AuthPort interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResult, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResult, error)
	ValidateToken(ctx context.Context, token string) (*domain.Claims, error)
	GetUser(ctx context.Context, userID string) (*domain.PublicUser, error)
	UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*domain.PublicUser, error)
	ChangePassword(ctx context.Context, req ChangePasswordRequest) (*AuthResult, error)
	DeleteAccount(ctx context.Context, userID string) (int64, error)
}

var (
	_ AuthPort = (*AuthService)(nil)
	_ AuthPort = (*AuthAdapter)(nil)
)

// AuthAdapter implements AuthPort using the service container.
type AuthAdapter struct {
	container mono.ServiceContainer
}

// NewAuthAdapter creates a new AuthAdapter.
func NewAuthAdapter(container mono.ServiceContainer) *AuthAdapter {
	return &AuthAdapter{
		container: container,
	}
}

// callService invokes a request-reply service of the auth module and
// classifies transport failures as internal errors.
func callService[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req *Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return errs.Internal(fmt.Errorf("%s request failed: %w", service, err))
	}
	return nil
}

func authResult[Req any](ctx context.Context, container mono.ServiceContainer, service string, req *Req) (*AuthResult, error) {
	var resp AuthResponse
	if err := callService(ctx, container, service, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	if resp.Result == nil {
		return nil, errs.Internal(fmt.Errorf("%s returned an empty result", service))
	}
	return resp.Result, nil
}

func userResult[Req any](ctx context.Context, container mono.ServiceContainer, service string, req *Req) (*domain.PublicUser, error) {
	var resp UserResponse
	if err := callService(ctx, container, service, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	if resp.User == nil {
		return nil, errs.Internal(fmt.Errorf("%s returned an empty result", service))
	}
	return resp.User, nil
}

// Register creates a new account.
func (a *AuthAdapter) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	return authResult(ctx, a.container, "register", &req)
}

// Login authenticates a user.
func (a *AuthAdapter) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	return authResult(ctx, a.container, "login", &req)
}

// ChangePassword replaces the user's password.
func (a *AuthAdapter) ChangePassword(ctx context.Context, req ChangePasswordRequest) (*AuthResult, error) {
	return authResult(ctx, a.container, "change-password", &req)
}

// ValidateToken validates a token and returns claims.
func (a *AuthAdapter) ValidateToken(ctx context.Context, token string) (*domain.Claims, error) {
	req := ValidateTokenRequest{Token: token}
	var resp ValidateTokenResponse
	if err := callService(ctx, a.container, "validate-token", &req, &resp); err != nil {
		return nil, err
	}

	if !resp.Valid {
		if resp.Error != nil {
			return nil, resp.Error.Err()
		}
		return nil, errs.Unauthorized("invalid token")
	}

	return &domain.Claims{
		UserID:   resp.UserID,
		IssuedAt: resp.IssuedAt,
	}, nil
}

// GetUser retrieves a user by ID.
func (a *AuthAdapter) GetUser(ctx context.Context, userID string) (*domain.PublicUser, error) {
	return userResult(ctx, a.container, "get-user", &GetUserRequest{UserID: userID})
}

// UpdateProfile changes the username and email.
func (a *AuthAdapter) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*domain.PublicUser, error) {
	return userResult(ctx, a.container, "update-profile", &req)
}

// DeleteAccount removes the user and their tasks.
func (a *AuthAdapter) DeleteAccount(ctx context.Context, userID string) (int64, error) {
	req := DeleteAccountRequest{UserID: userID}
	var resp DeleteAccountResponse
	if err := callService(ctx, a.container, "delete-account", &req, &resp); err != nil {
		return 0, err
	}
	if resp.Error != nil {
		return 0, resp.Error.Err()
	}
	return resp.TasksRemoved, nil
}
