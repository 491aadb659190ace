package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "hooks", cfg.Queues.Hooks.Name)
	assert.Equal(t, 10, cfg.Queues.Commands.Concurrency)
	assert.Equal(t, 5, cfg.Queues.Events.Concurrency)
	assert.Equal(t, "local", cfg.Execution.Mode)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.DomainCacheTTL)
	assert.Equal(t, time.Hour, cfg.RateLimit.NotifyTTL)
	assert.Equal(t, []string{"node", "/app/run.mjs"}, cfg.Execution.Remote.Command)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Empty(t, cfg.OTel.Endpoint)
}

func TestLoadConfig_OTelEndpoint(t *testing.T) {
	t.Setenv("TAKARO_LOG_OTEL", "true")
	t.Setenv("TAKARO_OTEL_ENDPOINT", "collector:4318")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.True(t, cfg.Log.OTel)
	assert.Equal(t, "collector:4318", cfg.OTel.Endpoint)
	assert.True(t, cfg.OTel.Insecure)
}

func TestLoadConfig_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "worker.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
queues:
  hooks:
    name: custom-hooks
    concurrency: 3
execution:
  mode: remote
  timeout: 5s
`), 0o600))

	t.Setenv("TAKARO_QUEUES_COMMANDS_CONCURRENCY", "7")

	cfg, err := LoadConfig(file, "--http.addr=:9999")
	require.NoError(t, err)

	assert.Equal(t, "custom-hooks", cfg.Queues.Hooks.Name)
	assert.Equal(t, 3, cfg.Queues.Hooks.Concurrency)
	assert.Equal(t, 7, cfg.Queues.Commands.Concurrency)
	assert.Equal(t, "remote", cfg.Execution.Mode)
	assert.Equal(t, 5*time.Second, cfg.Execution.Timeout)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero concurrency", map[string]string{"TAKARO_QUEUES_EVENTS_CONCURRENCY": "0"}},
		{"bad mode", map[string]string{"TAKARO_EXECUTION_MODE": "wasm"}},
		{"sub-minute scheduler", map[string]string{"TAKARO_SCHEDULER_INTERVAL": "30s"}},
		{"otel logs without endpoint", map[string]string{"TAKARO_LOG_OTEL": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			assert.Error(t, err)
		})
	}
}

func TestConfig_Queue(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, cfg.Queues.Cronjobs, cfg.Queue("cronjobs"))
	assert.Equal(t, QueueConfig{Name: "other", Concurrency: 1}, cfg.Queue("other"))
}
