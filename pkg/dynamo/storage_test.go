package dynamo_test

import (
	"context"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskengine/pkg/dynamo"
)

func setupStorage(t *testing.T) *dynamo.Storage {
	t.Helper()
	endpoint := os.Getenv("DYNAMO_ENDPOINT")
	if endpoint == "" {
		t.Skip("DYNAMO_ENDPOINT is not set")
	}

	ctx := context.Background()
	cfg := dynamo.Config{
		Table:       "cache_" + uuid.NewString(),
		Region:      "us-east-1",
		Endpoint:    endpoint,
		WaitTimeout: 30 * time.Second,
	}
	client, err := dynamo.New(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, dynamo.EnsureTable(ctx, client, cfg))
	require.NoError(t, dynamo.Healthcheck(client, cfg.Table)(ctx))

	return dynamo.NewStorage(client, cfg.Table)
}

func TestStorage(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "queue_task_a_1", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "queue_task_a_2", []byte("2"), 0))
	require.NoError(t, s.Set(ctx, "queue_task_b_1", []byte("3"), 0))
	require.NoError(t, s.Set(ctx, "expired", []byte("4"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	v, ok, err := s.Get(ctx, "queue_task_a_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	ttl, ok, err := s.TTL(ctx, "queue_task_a_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, float64(time.Minute), float64(ttl), float64(5*time.Second))

	ttl, ok, err = s.TTL(ctx, "queue_task_a_2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, ttl, "no expiry")

	_, ok, err = s.TTL(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := s.GetMulti(ctx, []string{"queue_task_a_1", "queue_task_b_1", "expired", "missing"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	keys, err := s.Keys(ctx, "queue_task_a_*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"queue_task_a_1", "queue_task_a_2"}, keys)

	added, err := s.SetNX(ctx, "queue_task_a_1", []byte("x"), time.Minute)
	require.NoError(t, err)
	assert.False(t, added)

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	added, err = s.SetNX(ctx, "expired", []byte("x"), time.Minute)
	require.NoError(t, err)
	assert.True(t, added)

	require.NoError(t, s.Flush(ctx))
	keys, err = s.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestEnsureTable_RequiresName(t *testing.T) {
	t.Parallel()
	assert.ErrorIs(t, dynamo.EnsureTable(context.Background(), nil, dynamo.Config{}), dynamo.ErrTableRequired)
}
