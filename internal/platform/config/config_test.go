package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, 30, cfg.NotifyUserLimit)
	assert.Equal(t, 300, cfg.NotifyChurchLimit)
	assert.Equal(t, time.Minute, cfg.NotifyWindow)
	assert.Equal(t, "notifications.outbound", cfg.KafkaTopic)
	assert.True(t, cfg.InMemory())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FLOCK_ADDR", ":9090")
	t.Setenv("FLOCK_DATABASE_URL", "postgres://localhost/flock")
	t.Setenv("FLOCK_KAFKA_BROKERS", "k1:9092,k2:9092,k1:9092")
	t.Setenv("FLOCK_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("FLOCK_WS_ALLOWED_ORIGINS", "https://App.Flock.Church, https://app.flock.church")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.False(t, cfg.InMemory())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, []string{"https://app.flock.church"}, cfg.WSAllowedOrigins)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flock.env")
	require.NoError(t, os.WriteFile(path, []byte("FLOCK_NOTIFY_USER_LIMIT=5\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("FLOCK_NOTIFY_USER_LIMIT") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.NotifyUserLimit)

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestProductionRequiresSigningKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FLOCK_ENVIRONMENT", "production")

	_, err := Load("")
	assert.ErrorContains(t, err, "FLOCK_JWT_SIGNING_KEY")
}
