package storage

import (
	"context"
	"fmt"

	"github.com/example/task-tracker/config"
	"github.com/example/task-tracker/domain/task"
	"github.com/example/task-tracker/domain/user"
	"github.com/example/task-tracker/logging"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PluginModule owns the database shared by the auth and tasks modules.
// Users and tasks live in one database so account deletion can remove both
// in a single transaction.
type PluginModule struct {
	container types.ServiceContainer
	cfg       config.DatabaseConfig
	db        *gorm.DB
	pool      *pgxpool.Pool
	users     user.Store
	tasks     task.Store
	log       *logrus.Entry
}

// Compile-time interface checks.
var (
	_ mono.PluginModule          = (*PluginModule)(nil)
	_ mono.HealthCheckableModule = (*PluginModule)(nil)
)

// NewPluginModule creates a storage plugin for the configured engine.
func NewPluginModule(cfg config.DatabaseConfig) *PluginModule {
	return &PluginModule{
		cfg: cfg,
		log: logging.Module("storage"),
	}
}

// Name returns the module name.
func (m *PluginModule) Name() string {
	return "storage"
}

// Start opens the database. Plugins start before regular modules.
func (m *PluginModule) Start(ctx context.Context) error {
	switch m.cfg.Driver {
	case config.DriverPostgres:
		pool, err := OpenPostgres(ctx, m.cfg.URL)
		if err != nil {
			return err
		}
		m.pool = pool
		m.users = NewPostgresUserStore(pool)
		m.tasks = NewPostgresTaskStore(pool)
	case config.DriverSQLite:
		db, err := OpenSQLite(m.cfg.Path, m.cfg.Debug)
		if err != nil {
			return err
		}
		m.db = db
		m.users = NewGormUserStore(db)
		m.tasks = NewGormTaskStore(db)
	default:
		return fmt.Errorf("unknown database driver %q", m.cfg.Driver)
	}

	m.log.WithField("driver", m.cfg.Driver).Info("plugin started")
	return nil
}

// Stop closes the database. Plugins stop after regular modules.
func (m *PluginModule) Stop(_ context.Context) error {
	if m.pool != nil {
		m.pool.Close()
	}
	if m.db != nil {
		if sqlDB, err := m.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				return fmt.Errorf("failed to close database: %w", err)
			}
		}
	}
	m.log.Info("plugin stopped")
	return nil
}

// SetContainer sets the service container for this plugin.
func (m *PluginModule) SetContainer(container types.ServiceContainer) {
	m.container = container
}

// Container returns the service container for this plugin.
func (m *PluginModule) Container() types.ServiceContainer {
	return m.container
}

// Users returns the credential store. It is nil until Start has run.
func (m *PluginModule) Users() user.Store {
	return m.users
}

// Tasks returns the task store. It is nil until Start has run.
func (m *PluginModule) Tasks() task.Store {
	return m.tasks
}

// Health pings the active database.
func (m *PluginModule) Health(ctx context.Context) mono.HealthStatus {
	var err error
	switch {
	case m.pool != nil:
		err = m.pool.Ping(ctx)
	case m.db != nil:
		sqlDB, dbErr := m.db.DB()
		if dbErr != nil {
			err = dbErr
		} else {
			err = sqlDB.PingContext(ctx)
		}
	default:
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": m.cfg.Driver,
		},
	}
}
