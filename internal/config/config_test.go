package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/cost-reconciler/internal/matching"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, matching.DefaultThresholds(), cfg.Matching.Thresholds())
	assert.Equal(t, 5, cfg.Matching.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Matching.ItemTimeout)
	assert.Equal(t, LockBackendMemory, cfg.Lock.Backend)
	assert.False(t, cfg.OpenAI.Enabled())

	tol, err := cfg.Matching.Tolerance()
	require.NoError(t, err)
	assert.Equal(t, "0.01", tol.String())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
matching:
  auto_accept: 0.8
  batch_size: 3
lock:
  backend: redis
logger:
  format: console
`)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("RECONCILER_SERVER_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.Matching.AutoAccept)
	assert.Equal(t, 3, cfg.Matching.BatchSize)
	assert.Equal(t, "localhost:6379", cfg.Lock.RedisAddr)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.OpenAI.Enabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"floor above auto accept", "matching:\n  floor: 0.9\n  auto_accept: 0.8\n"},
		{"zero batch size", "matching:\n  batch_size: 0\n"},
		{"redis without address", "lock:\n  backend: redis\n"},
		{"unknown lock backend", "lock:\n  backend: etcd\n"},
		{"bad tolerance", "matching:\n  total_tolerance: abc\n"},
		{"bad log format", "logger:\n  format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REDIS_ADDR", "")
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
