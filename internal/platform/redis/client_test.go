package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/platform/config"
)

func TestNewWithoutURLKeepsMemoryMode(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestOptions(t *testing.T) {
	t.Run("pool settings override the URL", func(t *testing.T) {
		opts, err := options(config.RedisConfig{
			URL:         "redis://:secret@cache.internal:6380/2",
			PoolSize:    12,
			DialTimeout: 2 * time.Second,
		})
		require.NoError(t, err)
		assert.Equal(t, "cache.internal:6380", opts.Addr)
		assert.Equal(t, "secret", opts.Password)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, 12, opts.PoolSize)
		assert.Equal(t, 2*time.Second, opts.DialTimeout)
	})

	t.Run("zero values keep defaults", func(t *testing.T) {
		opts, err := options(config.RedisConfig{URL: "redis://localhost:6379/0"})
		require.NoError(t, err)
		assert.Zero(t, opts.PoolSize)
		assert.Zero(t, opts.MinIdleConns)
	})

	t.Run("bad URL", func(t *testing.T) {
		_, err := options(config.RedisConfig{URL: "http://nope"})
		assert.Error(t, err)
	})
}
