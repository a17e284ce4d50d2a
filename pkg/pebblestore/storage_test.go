package pebblestore_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskengine/pkg/pebblestore"
)

func openStorage(t *testing.T, mode pebblestore.FsyncMode) *pebblestore.Storage {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: mode})
	require.NoError(t, err)
	s := pebblestore.NewStorage(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	t.Parallel()

	_, err := pebblestore.Open(pebblestore.Options{})
	assert.ErrorIs(t, err, pebblestore.ErrDataDirRequired)

	opts, err := pebblestore.Config{DataDir: "x", Fsync: "always"}.Options()
	require.NoError(t, err)
	assert.Equal(t, pebblestore.FsyncModeAlways, opts.Fsync)

	_, err = pebblestore.Config{DataDir: "x", Fsync: "sometimes"}.Options()
	assert.ErrorIs(t, err, pebblestore.ErrInvalidFsyncMode)
}

func TestStorage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("set get delete", func(t *testing.T) {
		t.Parallel()
		s := openStorage(t, pebblestore.FsyncModeAlways)

		require.NoError(t, s.Set(ctx, "k", []byte("value"), 0))
		v, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("value"), v)

		require.NoError(t, s.Delete(ctx, "k"))
		ok, err = s.Exists(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expiry and purge", func(t *testing.T) {
		t.Parallel()
		s := openStorage(t, pebblestore.FsyncModeInterval)

		require.NoError(t, s.Set(ctx, "short", []byte("1"), 10*time.Millisecond))
		require.NoError(t, s.Set(ctx, "long", []byte("2"), time.Hour))
		time.Sleep(30 * time.Millisecond)

		_, ok, err := s.Get(ctx, "short")
		require.NoError(t, err)
		assert.False(t, ok)

		keys, err := s.Keys(ctx, "*")
		require.NoError(t, err)
		assert.Equal(t, []string{"long"}, keys)

		n, err := s.PurgeExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("remaining ttl", func(t *testing.T) {
		t.Parallel()
		s := openStorage(t, pebblestore.FsyncModeNever)

		require.NoError(t, s.Set(ctx, "short", []byte("1"), 20*time.Millisecond))
		require.NoError(t, s.Set(ctx, "forever", []byte("2"), 0))

		ttl, ok, err := s.TTL(ctx, "short")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, 20*time.Millisecond)

		ttl, ok, err = s.TTL(ctx, "forever")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Zero(t, ttl)

		time.Sleep(40 * time.Millisecond)
		_, ok, err = s.TTL(ctx, "short")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set nx", func(t *testing.T) {
		t.Parallel()
		s := openStorage(t, pebblestore.FsyncModeNever)

		added, err := s.SetNX(ctx, "lock", []byte("a"), 10*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = s.SetNX(ctx, "lock", []byte("b"), time.Minute)
		require.NoError(t, err)
		assert.False(t, added)

		time.Sleep(30 * time.Millisecond)
		added, err = s.SetNX(ctx, "lock", []byte("b"), time.Minute)
		require.NoError(t, err)
		assert.True(t, added)
	})

	t.Run("prefix scan and flush", func(t *testing.T) {
		t.Parallel()
		s := openStorage(t, pebblestore.FsyncModeInterval)

		for _, k := range []string{"te_queue_task_a_1", "te_queue_task_a_2", "te_queue_task_ab_1", "te_other"} {
			require.NoError(t, s.Set(ctx, k, []byte("x"), 0))
		}

		keys, err := s.Keys(ctx, "te_queue_task_a_*")
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"te_queue_task_a_1", "te_queue_task_a_2"}, keys)

		found, err := s.GetMulti(ctx, []string{"te_other", "missing"})
		require.NoError(t, err)
		assert.Len(t, found, 1)

		require.NoError(t, s.Flush(ctx))
		keys, err = s.Keys(ctx, "*")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}
