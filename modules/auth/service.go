package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	domain "github.com/example/task-tracker/domain/user"
	"github.com/example/task-tracker/errs"
	"github.com/google/uuid"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6
)

// AccountNotifier is told about completed account deletions.
type AccountNotifier interface {
	AccountDeleted(ctx context.Context, userID string, tasksRemoved int64)
}

// AuthService handles registration, login, token verification and account
// management.
type AuthService struct {
	users    domain.Store
	hasher   *PasswordHasher
	jwt      *JWTManager
	revoker  Revoker
	notifier AccountNotifier
	now      func() time.Time
}

// NewAuthService creates a new AuthService. A nil revoker keeps token
// verification stateless.
func NewAuthService(users domain.Store, hasher *PasswordHasher, jwt *JWTManager, revoker Revoker) *AuthService {
	if revoker == nil {
		revoker = noopRevoker{}
	}
	return &AuthService{
		users:   users,
		hasher:  hasher,
		jwt:     jwt,
		revoker: revoker,
		now:     time.Now,
	}
}

// SetNotifier sets the receiver of account lifecycle notifications.
func (s *AuthService) SetNotifier(n AccountNotifier) {
	s.notifier = n
}

// Register creates a new user account and signs them in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	username := strings.TrimSpace(req.Username)
	email := normalizeEmail(req.Email)

	fields := errs.FieldErrors{}
	validateUsername(fields, username)
	validateEmail(fields, email)
	validatePassword(fields, "password", req.Password)
	if req.Password != req.ConfirmPassword {
		fields.Add("confirmPassword", "passwords do not match")
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	if err := s.ensureAvailable(ctx, "", username, email); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("failed to hash password: %w", err))
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, errs.Conflict("username or email already in use")
		}
		return nil, errs.Internal(fmt.Errorf("failed to create user: %w", err))
	}

	return s.issue(user)
}

// Login authenticates by username or email. Unknown users and wrong
// passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	login := strings.TrimSpace(req.EmailOrUsername)
	if login == "" || req.Password == "" {
		return nil, errs.Unauthorized("invalid credentials")
	}

	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.hasher.VerifyMissing(req.Password)
			return nil, errs.Unauthorized("invalid credentials")
		}
		return nil, errs.Internal(fmt.Errorf("failed to find user: %w", err))
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, errs.Unauthorized("invalid credentials")
	}

	return s.issue(user)
}

// ValidateToken verifies a token and returns the identity it asserts. The
// user is not looked up, so the id may belong to a deleted account.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*domain.Claims, error) {
	if token == "" {
		return nil, errs.Unauthorized("missing token")
	}

	claims, err := s.jwt.Validate(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return nil, errs.Unauthorized("token expired")
		}
		return nil, errs.Unauthorized("invalid token")
	}

	issuedAt := time.Time{}
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}

	cutoff, revoked, err := s.revoker.RevokedAt(ctx, claims.Subject)
	if err != nil {
		return nil, errs.Internal(err)
	}
	if revoked && issuedAt.Unix() < cutoff.Unix() {
		return nil, errs.Unauthorized("token revoked")
	}

	return &domain.Claims{
		UserID:   claims.Subject,
		IssuedAt: issuedAt,
	}, nil
}

// GetUser returns the public record of userID.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*domain.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, s.lookupError(err)
	}
	public := user.Public()
	return &public, nil
}

// UpdateProfile changes the username and email, applying the same rules as
// registration.
func (s *AuthService) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*domain.PublicUser, error) {
	username := strings.TrimSpace(req.Username)
	email := normalizeEmail(req.Email)

	fields := errs.FieldErrors{}
	validateUsername(fields, username)
	validateEmail(fields, email)
	if err := fields.Err(); err != nil {
		return nil, err
	}

	if err := s.ensureAvailable(ctx, req.UserID, username, email); err != nil {
		return nil, err
	}

	user, err := s.users.UpdateProfile(ctx, req.UserID, username, email)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, errs.Conflict("username or email already in use")
		}
		return nil, s.lookupError(err)
	}
	public := user.Public()
	return &public, nil
}

// ChangePassword replaces the password after checking the current one.
// Tokens issued earlier are revoked when revocation is enabled, so a fresh
// token is returned.
func (s *AuthService) ChangePassword(ctx context.Context, req ChangePasswordRequest) (*AuthResult, error) {
	fields := errs.FieldErrors{}
	validatePassword(fields, "newPassword", req.NewPassword)
	if err := fields.Err(); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, s.lookupError(err)
	}

	if !s.hasher.Verify(req.CurrentPassword, user.PasswordHash) {
		return nil, errs.Validation("current password is incorrect", map[string]string{
			"currentPassword": "is incorrect",
		})
	}

	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("failed to hash password: %w", err))
	}
	if err := s.users.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return nil, s.lookupError(err)
	}

	if err := s.revoker.Revoke(ctx, user.ID, s.now()); err != nil {
		return nil, errs.Internal(err)
	}

	return s.issue(user)
}

// DeleteAccount removes the user and every task they own in one store
// transaction. If the transaction fails nothing is removed.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) (int64, error) {
	removed, err := s.users.DeleteWithTasks(ctx, userID)
	if err != nil {
		return 0, s.lookupError(err)
	}

	if err := s.revoker.Revoke(ctx, userID, s.now()); err != nil {
		return removed, errs.Internal(err)
	}

	if s.notifier != nil {
		s.notifier.AccountDeleted(ctx, userID, removed)
	}
	return removed, nil
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, err := s.jwt.Generate(user.ID)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("failed to generate token: %w", err))
	}
	return &AuthResult{
		Token: token,
		User:  user.Public(),
	}, nil
}

func (s *AuthService) ensureAvailable(ctx context.Context, excludeID, username, email string) error {
	usernameTaken, emailTaken, err := s.users.Taken(ctx, excludeID, username, email)
	if err != nil {
		return errs.Internal(err)
	}
	switch {
	case usernameTaken && emailTaken:
		return errs.Conflict("username and email already in use")
	case usernameTaken:
		return errs.Conflict("username already in use")
	case emailTaken:
		return errs.Conflict("email already in use")
	}
	return nil
}

func (s *AuthService) lookupError(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return errs.NotFound("user not found")
	}
	return errs.Internal(err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateUsername(fields errs.FieldErrors, username string) {
	if len([]rune(username)) < minUsernameLength {
		fields.Add("username", fmt.Sprintf("must be at least %d characters", minUsernameLength))
	}
}

func validateEmail(fields errs.FieldErrors, email string) {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		fields.Add("email", "must be a valid email address")
	}
}

func validatePassword(fields errs.FieldErrors, field, password string) {
	switch {
	case len(password) < minPasswordLength:
		fields.Add(field, fmt.Sprintf("must be at least %d characters", minPasswordLength))
	case len(password) > MaxPasswordBytes:
		fields.Add(field, fmt.Sprintf("must be at most %d bytes", MaxPasswordBytes))
	}
}
