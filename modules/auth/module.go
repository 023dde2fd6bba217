package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/task-tracker/config"
	domain "github.com/example/task-tracker/domain/user"
	"github.com/example/task-tracker/errs"
	"github.com/example/task-tracker/events"
	"github.com/example/task-tracker/logging"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// userStoreProvider is implemented by the storage plugin.
type userStoreProvider interface {
	Users() domain.Store
}

// AuthModule provides authentication and account services.
type AuthModule struct {
	cfg      config.AuthConfig
	redisCfg config.RedisConfig
	storage  userStoreProvider
	service  *AuthService
	revoker  *RedisRevoker
	eventBus mono.EventBus
	log      *logrus.Entry
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*AuthModule)(nil)
	_ mono.ServiceProviderModule = (*AuthModule)(nil)
	_ mono.HealthCheckableModule = (*AuthModule)(nil)
	_ mono.EventBusAwareModule   = (*AuthModule)(nil)
	_ mono.EventEmitterModule    = (*AuthModule)(nil)
	_ mono.UsePluginModule       = (*AuthModule)(nil)
)

// NewModule creates a new AuthModule. Token revocation is enabled when
// redisCfg names a server.
func NewModule(cfg config.AuthConfig, redisCfg config.RedisConfig) *AuthModule {
	return &AuthModule{
		cfg:      cfg,
		redisCfg: redisCfg,
		log:      logging.Module("auth"),
	}
}

// Name returns the module name.
func (m *AuthModule) Name() string {
	return "auth"
}

// SetPlugin receives the storage plugin before Start.
func (m *AuthModule) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != "storage" {
		return
	}
	if p, ok := plugin.(userStoreProvider); ok {
		m.storage = p
	}
}

// SetEventBus receives the event bus used for account events.
func (m *AuthModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events published by this module.
func (m *AuthModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.AccountDeletedV1.ToBase(),
	}
}

// Start wires the service to the credential store.
func (m *AuthModule) Start(ctx context.Context) error {
	if m.storage == nil || m.storage.Users() == nil {
		return fmt.Errorf("storage plugin not set - ensure 'storage' plugin is registered")
	}

	var revoker Revoker
	if m.redisCfg.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     m.redisCfg.Addr,
			Password: m.redisCfg.Password,
			DB:       m.redisCfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return fmt.Errorf("failed to connect to redis at %s: %w", m.redisCfg.Addr, err)
		}
		m.revoker = NewRedisRevoker(client, m.cfg.TokenTTL.Duration)
		revoker = m.revoker
	}

	jwtManager := NewJWTManager(JWTConfig{
		SecretKey:     m.cfg.Secret,
		TokenDuration: m.cfg.TokenTTL.Duration,
		Issuer:        m.cfg.Issuer,
	})
	m.service = NewAuthService(m.storage.Users(), NewPasswordHasher(m.cfg.BcryptCost), jwtManager, revoker)
	m.service.SetNotifier(&accountEvents{module: m})

	if m.eventBus == nil {
		m.log.Warn("eventBus not set, account events will not be published")
	}
	m.log.WithFields(logrus.Fields{
		"issuer":     m.cfg.Issuer,
		"token_ttl":  m.cfg.TokenTTL.Duration.String(),
		"revocation": m.revoker != nil,
	}).Info("module started")
	return nil
}

// Stop shuts down the module.
func (m *AuthModule) Stop(_ context.Context) error {
	if m.revoker != nil {
		if err := m.revoker.Close(); err != nil {
			m.log.WithError(err).Warn("failed to close redis client")
		}
	}
	m.log.Info("module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *AuthModule) Health(ctx context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "service not initialized",
		}
	}

	details := map[string]any{
		"revocation": m.revoker != nil,
	}
	if m.revoker != nil {
		if err := m.revoker.client.Ping(ctx).Err(); err != nil {
			return mono.HealthStatus{
				Healthy: false,
				Message: fmt.Sprintf("redis ping failed: %v", err),
				Details: details,
			}
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: details,
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *AuthModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "register", json.Unmarshal, json.Marshal, m.handleRegister,
	); err != nil {
		return fmt.Errorf("failed to register register service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "login", json.Unmarshal, json.Marshal, m.handleLogin,
	); err != nil {
		return fmt.Errorf("failed to register login service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "validate-token", json.Unmarshal, json.Marshal, m.handleValidateToken,
	); err != nil {
		return fmt.Errorf("failed to register validate-token service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "get-user", json.Unmarshal, json.Marshal, m.handleGetUser,
	); err != nil {
		return fmt.Errorf("failed to register get-user service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "update-profile", json.Unmarshal, json.Marshal, m.handleUpdateProfile,
	); err != nil {
		return fmt.Errorf("failed to register update-profile service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "change-password", json.Unmarshal, json.Marshal, m.handleChangePassword,
	); err != nil {
		return fmt.Errorf("failed to register change-password service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, "delete-account", json.Unmarshal, json.Marshal, m.handleDeleteAccount,
	); err != nil {
		return fmt.Errorf("failed to register delete-account service: %w", err)
	}

	m.log.Info("registered services: register, login, validate-token, get-user, update-profile, change-password, delete-account")
	return nil
}

// Failures travel back inside the response so the caller can rebuild the
// error kind; the handler error is reserved for transport problems.

func (m *AuthModule) handleRegister(ctx context.Context, req RegisterRequest, _ *mono.Msg) (AuthResponse, error) {
	result, err := m.service.Register(ctx, req)
	if err != nil {
		return AuthResponse{Error: m.payload("register", err)}, nil
	}
	return AuthResponse{Result: result}, nil
}

func (m *AuthModule) handleLogin(ctx context.Context, req LoginRequest, _ *mono.Msg) (AuthResponse, error) {
	result, err := m.service.Login(ctx, req)
	if err != nil {
		return AuthResponse{Error: m.payload("login", err)}, nil
	}
	return AuthResponse{Result: result}, nil
}

func (m *AuthModule) handleValidateToken(ctx context.Context, req ValidateTokenRequest, _ *mono.Msg) (ValidateTokenResponse, error) {
	claims, err := m.service.ValidateToken(ctx, req.Token)
	if err != nil {
		return ValidateTokenResponse{Valid: false, Error: m.payload("validate-token", err)}, nil
	}
	return ValidateTokenResponse{
		Valid:    true,
		UserID:   claims.UserID,
		IssuedAt: claims.IssuedAt,
	}, nil
}

func (m *AuthModule) handleGetUser(ctx context.Context, req GetUserRequest, _ *mono.Msg) (UserResponse, error) {
	user, err := m.service.GetUser(ctx, req.UserID)
	if err != nil {
		return UserResponse{Error: m.payload("get-user", err)}, nil
	}
	return UserResponse{User: user}, nil
}

func (m *AuthModule) handleUpdateProfile(ctx context.Context, req UpdateProfileRequest, _ *mono.Msg) (UserResponse, error) {
	user, err := m.service.UpdateProfile(ctx, req)
	if err != nil {
		return UserResponse{Error: m.payload("update-profile", err)}, nil
	}
	return UserResponse{User: user}, nil
}

func (m *AuthModule) handleChangePassword(ctx context.Context, req ChangePasswordRequest, _ *mono.Msg) (AuthResponse, error) {
	result, err := m.service.ChangePassword(ctx, req)
	if err != nil {
		return AuthResponse{Error: m.payload("change-password", err)}, nil
	}
	return AuthResponse{Result: result}, nil
}

func (m *AuthModule) handleDeleteAccount(ctx context.Context, req DeleteAccountRequest, _ *mono.Msg) (DeleteAccountResponse, error) {
	removed, err := m.service.DeleteAccount(ctx, req.UserID)
	if err != nil {
		return DeleteAccountResponse{Error: m.payload("delete-account", err)}, nil
	}
	return DeleteAccountResponse{TasksRemoved: removed}, nil
}

// payload logs internal failures before they are reduced to an opaque
// message.
func (m *AuthModule) payload(service string, err error) *errs.Payload {
	if errs.KindOf(err) == errs.KindInternal {
		m.log.WithError(err).WithField("service", service).Error("request failed")
	}
	return errs.ToPayload(err)
}

// accountEvents publishes account lifecycle events on the module's bus.
type accountEvents struct {
	module *AuthModule
}

func (a *accountEvents) AccountDeleted(_ context.Context, userID string, tasksRemoved int64) {
	bus := a.module.eventBus
	if bus == nil {
		return
	}
	event := events.AccountDeletedEvent{
		UserID:       userID,
		TasksRemoved: tasksRemoved,
		DeletedAt:    time.Now().UTC(),
	}
	if err := events.AccountDeletedV1.Publish(bus, event, nil); err != nil {
		a.module.log.WithError(err).WithField("user_id", userID).Warn("failed to publish AccountDeleted event")
	}
}
