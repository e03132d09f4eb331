package config

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewConfig(discardLogger())
	require.NoError(t, err)

	assert.Equal(t, 3002, cfg.ServerPort)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "/data/workspaces", cfg.Workspace.WorkspacesDir)
	assert.Equal(t, "/data/runs", cfg.Workspace.SharedRunsDir)
	assert.Equal(t, 10, cfg.Pulse.DefaultIntervalMinutes)
	assert.Equal(t, "localhost:6379", cfg.EventBus.Addr)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("WORKSPACES_DIR", "/tmp/ws")
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	cfg, err := NewConfig(discardLogger())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, "/tmp/ws", cfg.Workspace.WorkspacesDir)
	assert.Equal(t, "ghp_test", cfg.GitHub.Token)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://u:p@db:5432/d?sslmode=disable", d.DSN())
}

// clearEnv unsets every env var NewConfig might read, restoring each to its
// prior value when the test finishes, so defaults tests are hermetic.
func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"SERVER_PORT", "SERVER_ADDRESS", "ENVIRONMENT", "DEBUG", "LOG_LEVEL",
		"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD",
		"POSTGRES_DB", "POSTGRES_SSL_MODE", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS",
		"DB_MAX_IDLE_TIME", "DB_QUERY_DEBUG",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "EVENTBUS_CONSUMER_NAME", "EVENTBUS_PUBLISH_TIMEOUT",
		"GITHUB_TOKEN", "GITHUB_USER", "GITHUB_APP_ENCRYPTION_KEY",
		"WORKSPACES_DIR", "SHARED_RUNS_DIR", "WORKTREE_POLL_INTERVAL", "WORKTREE_POLL_TIMEOUT",
		"PULSE_DEFAULT_INTERVAL_MINUTES",
		"SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT", "SERVER_IDLE_TIMEOUT", "SHUTDOWN_TIMEOUT",
	}
	for _, name := range vars {
		orig, had := os.LookupEnv(name)
		os.Unsetenv(name)
		t.Cleanup(func() {
			if had {
				os.Setenv(name, orig)
			}
		})
	}
}
