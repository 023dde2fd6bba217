// Package config loads application settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	flag "github.com/spf13/pflag"
)

const (
	DefaultHTTPAddr   = ":3000"
	DefaultDBDriver   = DriverSQLite
	DefaultDBPath     = "tasks.db"
	DefaultIssuer     = "task-tracker"
	DefaultTokenTTL   = 7 * 24 * time.Hour
	DefaultBcryptCost = 10
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// devSecret is only meant for local runs; set JWT_SECRET anywhere else.
	devSecret = "change-me-in-production"
)

// Duration is a time.Duration that decodes from TOML strings like "15m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config holds every setting the application reads at startup.
type Config struct {
	Name            string   `toml:"name"`
	Version         string   `toml:"version"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`

	HTTP      HTTPConfig      `toml:"http"`
	Database  DatabaseConfig  `toml:"database"`
	Auth      AuthConfig      `toml:"auth"`
	Redis     RedisConfig     `toml:"redis"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Log       LogConfig       `toml:"log"`
}

type HTTPConfig struct {
	Addr        string `toml:"addr"`
	CORSOrigins string `toml:"cors_origins"`
	BodyLimit   int    `toml:"body_limit"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	URL    string `toml:"url"`
	Debug  bool   `toml:"debug"`
}

type AuthConfig struct {
	Secret     string   `toml:"secret"`
	Issuer     string   `toml:"issuer"`
	TokenTTL   Duration `toml:"token_ttl"`
	BcryptCost int      `toml:"bcrypt_cost"`
}

// RedisConfig is optional. An empty Addr disables token revocation and
// keeps rate limiting in process memory.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Enabled reports whether a Redis server was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type RateLimitConfig struct {
	Enabled bool     `toml:"enabled"`
	Max     int      `toml:"max"`
	Window  Duration `toml:"window"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Name:            "task-tracker",
		Version:         "1.0.0",
		ShutdownTimeout: Duration{30 * time.Second},
		HTTP: HTTPConfig{
			Addr:        DefaultHTTPAddr,
			CORSOrigins: "*",
			BodyLimit:   1 << 20,
		},
		Database: DatabaseConfig{
			Driver: DefaultDBDriver,
			Path:   DefaultDBPath,
		},
		Auth: AuthConfig{
			Secret:     devSecret,
			Issuer:     DefaultIssuer,
			TokenTTL:   Duration{DefaultTokenTTL},
			BcryptCost: DefaultBcryptCost,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Max:     20,
			Window:  Duration{time.Minute},
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load builds the configuration in priority order: defaults, TOML file,
// environment, then command-line flags.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Default()

	configPath := fs.String("config", os.Getenv("TASKS_CONFIG"), "path to a TOML config file")
	addr := fs.String("addr", "", "HTTP listen address")
	dbPath := fs.String("db", "", "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", *configPath, err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv overrides cfg from environment variables.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		if os.Getenv("DB_DRIVER") == "" {
			cfg.Database.Driver = DriverPostgres
		}
	}
	if v := os.Getenv("DB_DEBUG"); v != "" {
		cfg.Database.Debug = v == "true" || v == "1"
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TOKEN_TTL: %w", err)
		}
		cfg.Auth.TokenTTL = Duration{d}
	}
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BCRYPT_COST: %w", err)
		}
		cfg.Auth.BcryptCost = n
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_MAX: %w", err)
		}
		cfg.RateLimit.Max = n
		cfg.RateLimit.Enabled = n > 0
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
		}
		cfg.RateLimit.Window = Duration{d}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

// Validate rejects settings the application cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}

	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret must not be empty"))
	}
	if c.Auth.TokenTTL.Duration <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost %d out of range [4, 31]", c.Auth.BcryptCost))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Max <= 0 || c.RateLimit.Window.Duration <= 0) {
		errs = append(errs, errors.New("rate_limit.max and rate_limit.window must be positive"))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// UsesDevSecret reports whether the built-in signing secret is in use.
func (c *Config) UsesDevSecret() bool {
	return c.Auth.Secret == devSecret
}
