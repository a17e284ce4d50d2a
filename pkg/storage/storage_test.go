package storage_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskengine/pkg/redis"
	"github.com/dmitrymomot/taskengine/pkg/storage"
)

func quiet() storage.Option {
	return storage.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("memory tiers", func(t *testing.T) {
		t.Parallel()
		b, err := storage.Open(ctx, storage.Config{Primary: storage.KindMemory, Secondary: storage.KindMemory}, quiet())
		require.NoError(t, err)
		assert.False(t, b.Degraded())
		assert.Equal(t, "memory", b.Primary.Name())
		assert.NoError(t, b.Healthcheck(ctx))
		assert.NoError(t, b.Close())
	})

	t.Run("no primary", func(t *testing.T) {
		t.Parallel()
		b, err := storage.Open(ctx, storage.Config{Primary: storage.KindNone, Secondary: storage.KindMemory}, quiet())
		require.NoError(t, err)
		assert.True(t, b.Degraded())
	})

	t.Run("unreachable primary degrades", func(t *testing.T) {
		t.Parallel()
		cfg := storage.Config{
			Primary:   storage.KindRedis,
			Secondary: storage.KindPebble,
			Redis: redis.Config{
				ConnectionURL:  "redis://127.0.0.1:1/0",
				RetryAttempts:  1,
				ConnectTimeout: time.Second,
			},
		}
		cfg.Pebble.DataDir = t.TempDir()

		b, err := storage.Open(ctx, cfg, quiet())
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })

		assert.True(t, b.Degraded())
		assert.Equal(t, "pebble", b.Secondary.Name())
	})

	t.Run("unreachable secondary fails", func(t *testing.T) {
		t.Parallel()
		cfg := storage.Config{Primary: storage.KindNone, Secondary: storage.KindPebble}
		_, err := storage.Open(ctx, cfg, quiet())
		assert.ErrorIs(t, err, storage.ErrSecondaryUnavailable)
	})

	t.Run("unknown kinds", func(t *testing.T) {
		t.Parallel()
		_, err := storage.Open(ctx, storage.Config{Primary: storage.KindPostgres, Secondary: storage.KindMemory}, quiet())
		assert.ErrorIs(t, err, storage.ErrUnknownKind)

		_, err = storage.Open(ctx, storage.Config{Secondary: "memcached"}, quiet())
		assert.ErrorIs(t, err, storage.ErrUnknownKind)
	})

	t.Run("same backend twice", func(t *testing.T) {
		t.Parallel()
		_, err := storage.Open(ctx, storage.Config{Primary: storage.KindRedis, Secondary: storage.KindRedis}, quiet())
		assert.ErrorIs(t, err, storage.ErrSameBackend)
	})
}
