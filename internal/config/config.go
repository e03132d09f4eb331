// Package config loads process-wide configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3002"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	Database  DatabaseConfig
	EventBus  EventBusConfig
	GitHub    GitHubConfig
	Workspace WorkspaceConfig
	Pulse     PulseConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"djinnbot"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"djinnbot"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// EventBusConfig holds the Redis Streams transport settings for EventBus.
type EventBusConfig struct {
	Addr           string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password       string        `env:"REDIS_PASSWORD" envDefault:""`
	DB             int           `env:"REDIS_DB" envDefault:"0"`
	ConsumerName   string        `env:"EVENTBUS_CONSUMER_NAME" envDefault:""`
	PublishTimeout time.Duration `env:"EVENTBUS_PUBLISH_TIMEOUT" envDefault:"3s"`
}

// GitHubConfig holds the fallback git credentials used when no GitHub App
// installation matches a project's repository (spec §4.2 credential
// resolution, steps 3-4).
type GitHubConfig struct {
	Token string `env:"GITHUB_TOKEN" envDefault:""`
	User  string `env:"GITHUB_USER" envDefault:""`

	// AppEncryptionKey decrypts stored GitHub App private keys / webhook secrets.
	AppEncryptionKey string `env:"GITHUB_APP_ENCRYPTION_KEY" envDefault:""`
}

// WorkspaceConfig holds on-disk workspace roots.
type WorkspaceConfig struct {
	WorkspacesDir string `env:"WORKSPACES_DIR" envDefault:"/data/workspaces"`
	SharedRunsDir string `env:"SHARED_RUNS_DIR" envDefault:"/data/runs"`

	// WorktreePollInterval / WorktreePollTimeout bound RequestWorktree's poll loop (spec §4.2, §5).
	WorktreePollInterval time.Duration `env:"WORKTREE_POLL_INTERVAL" envDefault:"500ms"`
	WorktreePollTimeout  time.Duration `env:"WORKTREE_POLL_TIMEOUT" envDefault:"30s"`
}

// PulseConfig holds PULSE_DEFAULT_INTERVAL_MINUTES. domain/pulse does not read
// it: the periodic-wake interval comes from the pulseIntervalMinutes row in
// global_settings, falling back to pulse.DefaultPulseIntervalMinutes. Guardrails
// (wakeCooldownSec, maxWakesPerDay, ...) are NOT process config either — they
// live in the global_settings table and are read on demand (spec §9).
type PulseConfig struct {
	DefaultIntervalMinutes int `env:"PULSE_DEFAULT_INTERVAL_MINUTES" envDefault:"10"`
}

// NewConfig loads configuration from environment variables.
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.String("workspaces_dir", cfg.Workspace.WorkspacesDir),
	)

	return cfg, nil
}
