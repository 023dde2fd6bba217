package auth

import (
	"time"

	domain "github.com/example/task-tracker/domain/user"
	"github.com/example/task-tracker/errs"
)

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	EmailOrUsername string `json:"emailOrUsername"`
	Password        string `json:"password"`
}

// AuthResult is a signed token together with the user it identifies.
type AuthResult struct {
	Token string            `json:"token"`
	User  domain.PublicUser `json:"user"`
}

// AuthResponse is the reply of the register, login and change-password
// services.
type AuthResponse struct {
	Result *AuthResult   `json:"result,omitempty"`
	Error  *errs.Payload `json:"error,omitempty"`
}

// ValidateTokenRequest represents a token validation request.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// ValidateTokenResponse represents a token validation response.
type ValidateTokenResponse struct {
	Valid    bool          `json:"valid"`
	UserID   string        `json:"userId,omitempty"`
	IssuedAt time.Time     `json:"issuedAt,omitempty"`
	Error    *errs.Payload `json:"error,omitempty"`
}

// GetUserRequest represents a get user request.
type GetUserRequest struct {
	UserID string `json:"userId"`
}

// UserResponse carries a public user record.
type UserResponse struct {
	User  *domain.PublicUser `json:"user,omitempty"`
	Error *errs.Payload      `json:"error,omitempty"`
}

// UpdateProfileRequest changes the username and email of UserID.
type UpdateProfileRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ChangePasswordRequest replaces the password of UserID.
type ChangePasswordRequest struct {
	UserID          string `json:"userId"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// DeleteAccountRequest removes UserID and everything they own.
type DeleteAccountRequest struct {
	UserID string `json:"userId"`
}

// DeleteAccountResponse reports the outcome of an account deletion.
type DeleteAccountResponse struct {
	TasksRemoved int64         `json:"tasksRemoved"`
	Error        *errs.Payload `json:"error,omitempty"`
}
