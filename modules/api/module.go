package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/task-tracker/config"
	"github.com/example/task-tracker/modules/activity"
	"github.com/example/task-tracker/modules/auth"
	"github.com/example/task-tracker/modules/tasks"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/redis/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AppDeps are the ports and settings the HTTP application is built from.
type AppDeps struct {
	Auth     auth.AuthPort
	Tasks    tasks.TaskPort
	Activity activity.ActivityPort
	Config   *config.Config
	// RateLimitStorage holds limiter counters; nil keeps them in memory.
	RateLimitStorage fiber.Storage
}

// APIModule is the HTTP API module.
type APIModule struct {
	cfg          *config.Config
	app          *fiber.App
	authPort     auth.AuthPort
	taskPort     tasks.TaskPort
	activityPort activity.ActivityPort
	limitStorage *redis.Storage
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*APIModule)(nil)
	_ mono.DependentModule       = (*APIModule)(nil)
	_ mono.HealthCheckableModule = (*APIModule)(nil)
)

// NewModule creates a new APIModule.
func NewModule(cfg *config.Config) *APIModule {
	return &APIModule{cfg: cfg}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"auth", "tasks", "activity"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "auth":
		m.authPort = auth.NewAuthAdapter(container)
	case "tasks":
		m.taskPort = tasks.NewTaskAdapter(container)
	case "activity":
		m.activityPort = activity.NewActivityAdapter(container)
	}
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.authPort == nil {
		return fmt.Errorf("auth dependency not set")
	}
	if m.taskPort == nil {
		return fmt.Errorf("tasks dependency not set")
	}

	deps := AppDeps{
		Auth:     m.authPort,
		Tasks:    m.taskPort,
		Activity: m.activityPort,
		Config:   m.cfg,
	}
	if m.cfg.RateLimit.Enabled && m.cfg.Redis.Enabled() {
		storage, err := newRedisStorage(m.cfg.Redis)
		if err != nil {
			return fmt.Errorf("invalid redis address %q: %w", m.cfg.Redis.Addr, err)
		}
		m.limitStorage = storage
		deps.RateLimitStorage = storage
	}

	app, err := NewApp(deps)
	if err != nil {
		return err
	}
	m.app = app

	addr := m.cfg.HTTP.Addr
	go func() {
		if err := m.app.Listen(addr); err != nil {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	log.WithField("addr", addr).Info("HTTP server started")
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(_ context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Info("shutting down HTTP server")
	err := m.app.Shutdown()
	if m.limitStorage != nil {
		err = errors.Join(err, m.limitStorage.Close())
	}
	return err
}

// Health returns the health status of the module.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"addr": m.cfg.HTTP.Addr,
		},
	}
}

// NewApp builds the Fiber application with every route and middleware.
func NewApp(deps AppDeps) (*fiber.App, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	handlers, err := NewHandlers(deps.Auth, deps.Tasks, deps.Activity)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: true,
		BodyLimit:             cfg.HTTP.BodyLimit,
		ErrorHandler:          customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(RequestLogger(log))
	app.Use(Metrics())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.HTTP.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(InfoResponse{OK: true, Name: cfg.Name, Version: cfg.Version})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"module": "api",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	apiGroup := app.Group("/api")

	authRoutes := apiGroup.Group("/auth")
	if cfg.RateLimit.Enabled {
		authRoutes.Use(RateLimiter(cfg.RateLimit, deps.RateLimitStorage))
	}
	authRoutes.Post("/register", handlers.Register)
	authRoutes.Post("/login", handlers.Login)

	requireAuth := AuthMiddleware(deps.Auth)

	account := apiGroup.Group("/account", requireAuth)
	account.Get("/profile", handlers.Profile)
	account.Put("/profile", handlers.UpdateProfile)
	account.Put("/password", handlers.ChangePassword)
	account.Get("/activity", handlers.Activity)
	account.Delete("/account", handlers.DeleteAccount)
	account.Delete("/", handlers.DeleteAccount)

	taskRoutes := apiGroup.Group("/tasks", requireAuth)
	taskRoutes.Get("/pending", handlers.ListPending)
	taskRoutes.Get("/completed", handlers.ListCompleted)
	taskRoutes.Post("/", handlers.CreateTask)
	taskRoutes.Get("/:id", handlers.GetTask)
	taskRoutes.Put("/:id", handlers.UpdateTask)
	taskRoutes.Patch("/:id/complete", handlers.CompleteTask)
	taskRoutes.Delete("/:id", handlers.DeleteTask)

	return app, nil
}

// customErrorHandler handles Fiber errors such as unknown routes and
// oversized bodies.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	} else {
		log.WithError(err).WithField("path", c.Path()).Error("unhandled error")
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
