package mongo_test

import (
	"context"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskengine/pkg/mongo"
)

func setupStorage(t *testing.T) *mongo.Storage {
	t.Helper()
	url := os.Getenv("MONGODB_URL")
	if url == "" {
		t.Skip("MONGODB_URL is not set")
	}

	ctx := context.Background()
	client, err := mongo.New(ctx, mongo.Config{ConnectionURL: url, RetryAttempts: 1, ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)
	require.NoError(t, mongo.Healthcheck(client)(ctx))

	coll := client.Database("taskengine_test").Collection("cache_" + uuid.NewString())
	t.Cleanup(func() {
		_ = coll.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	s := mongo.NewStorage(coll)
	require.NoError(t, s.EnsureIndexes(ctx))
	return s
}

func TestStorage(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, s.Set(ctx, "expired", []byte("3"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	ttl, ok, err := s.TTL(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, float64(time.Minute), float64(ttl), float64(5*time.Second))

	ttl, ok, err = s.TTL(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, ttl, "no expiry")

	_, ok, err = s.TTL(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := s.GetMulti(ctx, []string{"a", "b", "expired"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	added, err := s.SetNX(ctx, "b", []byte("x"), time.Minute)
	require.NoError(t, err)
	assert.False(t, added)

	added, err = s.SetNX(ctx, "expired", []byte("x"), time.Minute)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.SetNX(ctx, "fresh", []byte("x"), time.Minute)
	require.NoError(t, err)
	assert.True(t, added)

	keys, err := s.Keys(ctx, "*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"a", "b", "expired", "fresh"}, keys)

	require.NoError(t, s.Delete(ctx, "a"))
	exists, err := s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Flush(ctx))
	keys, err = s.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()
	_, err := mongo.New(context.Background(), mongo.Config{})
	assert.ErrorIs(t, err, mongo.ErrEmptyConnectionURL)
}
