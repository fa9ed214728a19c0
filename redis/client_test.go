package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestReadEnvironment(t *testing.T) {
	t.Run("host and port are required", func(t *testing.T) {
		// t.Setenv restores the variables once the test ends
		t.Setenv("ENS_REDIS_HOST", "")
		t.Setenv("ENS_REDIS_PORT", "")
		require.NoError(t, os.Unsetenv("ENS_REDIS_HOST"))
		require.NoError(t, os.Unsetenv("ENS_REDIS_PORT"))
		_, err := NewClient(0)
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("ENS_REDIS_HOST", "cache.local")
		t.Setenv("ENS_REDIS_PORT", "6380")
		cfg, err := readEnvironment()
		require.NoError(t, err)
		require.Equal(t, 3, cfg.LockExpirationSeconds)
		require.Equal(t, "26379", cfg.HASentinelPort)
		require.False(t, cfg.HAMode)

		client := NewClientFromConfig(cfg, 2)
		defer client.Close()
		require.Equal(t, 3*time.Second, client.lockExpiration)
		single, ok := client.client.(*redis.Client)
		require.True(t, ok)
		require.Equal(t, "cache.local:6380", single.Options().Addr)
		require.Equal(t, 2, single.Options().DB)
	})
}

func TestIsMissing(t *testing.T) {
	require.True(t, IsMissing(fmt.Errorf("key x: %w", redis.Nil)))
	require.False(t, IsMissing(context.Canceled))
}
