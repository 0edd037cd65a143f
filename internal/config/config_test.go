package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8765", cfg.API.Addr)
	assert.Equal(t, 2*time.Minute, cfg.API.WriteTimeout)
	assert.Equal(t, runtime.NumCPU(), cfg.Worker.PoolSize)
	assert.False(t, cfg.Queue.Enabled)
	assert.False(t, cfg.Storage.Enabled())
	assert.Empty(t, cfg.Database.DSN)
	assert.Equal(t, 200, cfg.History.Capacity)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PIXELSHRINK_API_ADDR", "127.0.0.1:9999")
	t.Setenv("WORKER_POOL_SIZE", "3")
	t.Setenv("QUEUE_ENABLED", "true")
	t.Setenv("REDIS_DB", "4")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.API.Addr)
	assert.Equal(t, 3, cfg.Worker.PoolSize)
	assert.True(t, cfg.Queue.Enabled)
	assert.Equal(t, 4, cfg.Queue.RedisClientOpt().DB)
	assert.Equal(t, 4, cfg.Queue.RedisOptions().DB)
	assert.True(t, cfg.Storage.Enabled())
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	content := "[api]\naddr = \"127.0.0.1:7000\"\n\n[history]\ncapacity = 10\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pixelshrink.toml"), []byte(content), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.API.Addr)
	assert.Equal(t, 10, cfg.History.Capacity)

	t.Setenv("HISTORY_CAPACITY", "25")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.History.Capacity)
}

func TestLoadRejectsBrokenConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is = = not toml"), 0o644))
	t.Setenv("PIXELSHRINK_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}
