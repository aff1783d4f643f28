package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerSettingString(t *testing.T) {
	tests := []struct {
		name string
		ws   WorkerSetting
		want string
	}{
		{"auto mode", WorkerSetting{Mode: WorkersAuto}, "auto"},
		{"fixed mode 4", WorkerSetting{Mode: WorkersFixed, Value: 4}, "4"},
		{"fixed mode 0", WorkerSetting{Mode: WorkersFixed, Value: 0}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ws.String()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DNSVERDICT_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "30s", cfg.Poll.Interval)
	assert.Equal(t, 100, cfg.Poll.BatchLimit)
	assert.Equal(t, 5000, cfg.Cache.MemoryCapacity)
	assert.Equal(t, "5m", cfg.Cache.MemoryTTL)
	assert.Equal(t, 5000, cfg.Dedup.Window)
	assert.Equal(t, WorkersFixed, cfg.Worker.PoolSize.Mode)
	assert.Equal(t, 8, cfg.Worker.PoolSize.Value)
	assert.Equal(t, "127.0.0.1", cfg.API.Host)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Empty(t, cfg.Upstream.URLs)
	assert.False(t, cfg.ReasoningEnabled())
	assert.False(t, cfg.LedgerEnabled())
}

func TestLoadFromFile(t *testing.T) {
	content := `
poll:
  interval: "10s"
  batch_limit: 50

upstream:
  urls:
    - "https://sinkhole.local/log"
    - "http://192.168.1.1/log"
  username: "admin"
  password: "secret"

reasoning:
  endpoint: "https://reasoning.example.com/analyze"
  api_key: "rk-test"

ledger:
  id: "ledger-1"
  credentials: "cred-1"

cache:
  memory_capacity: 2000
  disk_path: "/tmp/test-cache.db"

dedup:
  window: 1000

worker:
  pool_size: "4"

logging:
  level: "debug"
  structured: true

api:
  host: "0.0.0.0"
  port: 9090
  api_key: "api-secret"
`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10s", cfg.Poll.Interval)
	assert.Equal(t, 50, cfg.Poll.BatchLimit)
	require.Len(t, cfg.Upstream.URLs, 2)
	assert.Equal(t, "https://sinkhole.local/log", cfg.Upstream.URLs[0])
	assert.Equal(t, "admin", cfg.Upstream.Username)
	assert.True(t, cfg.UpstreamAuthEnabled())
	assert.True(t, cfg.ReasoningEnabled())
	assert.True(t, cfg.LedgerEnabled())
	assert.Equal(t, 2000, cfg.Cache.MemoryCapacity)
	assert.Equal(t, 1000, cfg.Dedup.Window)
	assert.Equal(t, WorkersFixed, cfg.Worker.PoolSize.Mode)
	assert.Equal(t, 4, cfg.Worker.PoolSize.Value)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Structured)
	assert.Equal(t, 9090, cfg.API.Port)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DNSVERDICT_UPSTREAM_URLS", "https://a.example/log,https://b.example/log")
	t.Setenv("DNSVERDICT_API_PORT", "9999")
	t.Setenv("DNSVERDICT_WORKER_POOL_SIZE", "16")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Upstream.URLs, 2)
	assert.Equal(t, "https://b.example/log", cfg.Upstream.URLs[1])
	assert.Equal(t, 9999, cfg.API.Port)
	assert.Equal(t, 16, cfg.Worker.PoolSize.Value)
}

func TestNormalizeConfigRejectsBadPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  port: 99999\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWarnings(t *testing.T) {
	cfg := &Config{}
	warnings := cfg.Warnings()
	assert.NotEmpty(t, warnings)

	cfg.Upstream.URLs = []string{"https://sinkhole.local/log"}
	cfg.Upstream.Username = "admin"
	cfg.Reasoning.Endpoint = "https://reasoning.example.com"
	cfg.Reasoning.APIKey = "rk-test"
	cfg.Ledger.ID = "ledger-1"
	cfg.Redis.Addr = "localhost:6379"
	assert.Empty(t, cfg.Warnings())
}
