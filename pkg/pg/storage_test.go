package pg_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskengine/pkg/pg"
)

func setupStorage(t *testing.T) (*pg.Storage, string) {
	t.Helper()
	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL is not set")
	}

	ctx := context.Background()
	cfg := pg.Config{ConnectionString: url, RetryAttempts: 1, MigrationsTable: "taskengine_migrations"}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, pg.Healthcheck(pool)(ctx))

	return pg.NewStorage(pool), "test_" + uuid.NewString() + "_"
}

func TestStorage(t *testing.T) {
	s, ns := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, ns+"a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, ns+"b", []byte("2"), 0))
	require.NoError(t, s.Set(ctx, ns+"expired", []byte("3"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	v, ok, err := s.Get(ctx, ns+"a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	ttl, ok, err := s.TTL(ctx, ns+"a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, float64(time.Minute), float64(ttl), float64(5*time.Second))

	ttl, ok, err = s.TTL(ctx, ns+"b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, ttl, "no expiry")

	_, ok, err = s.TTL(ctx, ns+"expired")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get(ctx, ns+"expired")
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := s.GetMulti(ctx, []string{ns + "a", ns + "b", ns + "expired"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	added, err := s.SetNX(ctx, ns+"a", []byte("x"), time.Minute)
	require.NoError(t, err)
	assert.False(t, added)

	added, err = s.SetNX(ctx, ns+"expired", []byte("x"), time.Minute)
	require.NoError(t, err)
	assert.True(t, added, "an expired row can be taken over")

	keys, err := s.Keys(ctx, ns+"*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{ns + "a", ns + "b", ns + "expired"}, keys)

	require.NoError(t, s.Set(ctx, ns+"gone", []byte("1"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)
	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	for _, k := range keys {
		require.NoError(t, s.Delete(ctx, k))
	}
	exists, err := s.Exists(ctx, ns+"a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConnect_EmptyURL(t *testing.T) {
	t.Parallel()
	_, err := pg.Connect(context.Background(), pg.Config{})
	assert.ErrorIs(t, err, pg.ErrEmptyConnectionString)
}
