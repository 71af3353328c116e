package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/campaign-service/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, config.StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "@every 1m", cfg.Scheduler.TickSpec)
	assert.Equal(t, 4*time.Hour, cfg.Scheduler.DefaultInterval)
	assert.Equal(t, 5, cfg.Dispatcher.MaxAttempts)
	assert.Equal(t, config.PrepKitNone, cfg.PrepKit.Provider)
	assert.Equal(t, "EVENT_CARD_MOVED", cfg.Notifications.Channel)
}

func TestLoad_YAMLThenEnvOverride(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: postgres
database:
  url: postgres://from-yaml
scheduler:
  workers: 8
  source_timeout: 5s
dispatcher:
  max_attempts: 2
`)
	t.Setenv("DATABASE_URL", "postgres://from-env")
	t.Setenv("SCHEDULER_WORKERS", "3")
	t.Setenv("DISPATCHER_INITIAL_BACKOFF", "250ms")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://from-env", cfg.Database.URL)
	assert.Equal(t, 3, cfg.Scheduler.Workers)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.SourceTimeout)
	assert.Equal(t, 2, cfg.Dispatcher.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Dispatcher.InitialBackoff)
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"postgres without url", "storage:\n  driver: postgres\n"},
		{"unknown driver", "storage:\n  driver: sqlite\n"},
		{"http prepkit without url", "prepkit:\n  provider: http\n"},
		{"gemini without key", "prepkit:\n  provider: gemini\n"},
		{"unknown prepkit", "prepkit:\n  provider: carrier-pigeon\n"},
		{"notifications without redis", "notifications:\n  enabled: true\n"},
		{"negative workers", "scheduler:\n  workers: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := config.Load(writeConfig(t, "server: [unterminated"))
	assert.Error(t, err)
}

func TestPath(t *testing.T) {
	assert.Equal(t, "config.yml", config.Path("config.yml"))
	t.Setenv("CONFIG_PATH", "/etc/campaign.yml")
	assert.Equal(t, "/etc/campaign.yml", config.Path("config.yml"))
}
