package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthcommons/internal/platform/config"
)

func TestNew(t *testing.T) {
	t.Run("no URL means no client", func(t *testing.T) {
		c, err := New(context.Background(), config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("connects and applies pool settings", func(t *testing.T) {
		mr := miniredis.RunT(t)
		c, err := New(context.Background(), config.RedisConfig{
			URL:         "redis://" + mr.Addr(),
			PoolSize:    3,
			DialTimeout: time.Second,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })

		assert.Equal(t, 3, c.Options().PoolSize)
		assert.Equal(t, time.Second, c.Options().DialTimeout)
		assert.NoError(t, c.Health(context.Background()))

		mr.Close()
		assert.Error(t, c.Health(context.Background()))
	})

	t.Run("rejects a malformed URL", func(t *testing.T) {
		_, err := New(context.Background(), config.RedisConfig{URL: "://nope"})
		assert.Error(t, err)
	})

	t.Run("fails when the server is unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		_, err := New(context.Background(), config.RedisConfig{URL: "redis://" + addr, DialTimeout: 200 * time.Millisecond})
		assert.Error(t, err)
	})
}
