package queue_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskengine/pkg/cache"
	"github.com/dmitrymomot/taskengine/pkg/queue"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// downBackend fails every operation
type downBackend struct{}

var errBackendDown = errors.New("backend down")

func (downBackend) Name() string { return "down" }
func (downBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errBackendDown
}
func (downBackend) Set(context.Context, string, []byte, time.Duration) error { return errBackendDown }
func (downBackend) Delete(context.Context, string) error                     { return errBackendDown }
func (downBackend) Exists(context.Context, string) (bool, error)             { return false, errBackendDown }
func (downBackend) Flush(context.Context) error                              { return errBackendDown }

// Test payload types
type testPayload struct {
	Message string `json:"message"`
	Value   int    `json:"value"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCache(t *testing.T, opts ...cache.Option) *cache.Cache {
	t.Helper()
	c, err := cache.New(cache.NewMemoryBackend(1000), append([]cache.Option{cache.WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return c
}

func newManager(t *testing.T, c *cache.Cache, clock *fakeClock, opts ...queue.ManagerOption) *queue.Manager {
	t.Helper()
	if c == nil {
		c = newCache(t)
	}
	base := []queue.ManagerOption{queue.WithLogger(quietLogger())}
	if clock != nil {
		base = append(base, queue.WithClock(clock.Now))
	}
	m, err := queue.NewManager(c, append(base, opts...)...)
	require.NoError(t, err)
	return m
}

func noopHandler(name string) queue.Handler {
	return queue.NewNamedHandler(name, func(ctx context.Context, p testPayload) error { return nil })
}

func TestNewManager(t *testing.T) {
	t.Parallel()

	t.Run("nil cache error", func(t *testing.T) {
		t.Parallel()

		m, err := queue.NewManager(nil)
		assert.ErrorIs(t, err, queue.ErrCacheNil)
		assert.Nil(t, m)
	})

	t.Run("zero config falls back to defaults", func(t *testing.T) {
		t.Parallel()

		m := newManager(t, nil, nil, queue.WithConfig(queue.Config{}), queue.WithDispatcherID("node-1"))
		assert.Equal(t, queue.DefaultConfig(), m.Config())
		assert.Equal(t, "node-1", m.ID())
	})
}

func TestManager_RegisterQueue(t *testing.T) {
	t.Parallel()

	t.Run("defaults and overrides", func(t *testing.T) {
		t.Parallel()

		m := newManager(t, nil, nil)
		require.NoError(t, m.RegisterQueue("emails",
			queue.WithQueuePriority(queue.PriorityHigh),
			queue.WithMaxWorkers(2),
			queue.WithBatchSize(20),
			queue.WithQueueTimeout(30*time.Second),
			queue.WithMaxRetries(5),
			queue.WithDeadLetter(false),
		))

		status, err := m.QueueStatus("emails")
		require.NoError(t, err)
		assert.Equal(t, "emails", status.Name)
		assert.Equal(t, queue.PriorityHigh, status.Config.Priority)
		assert.Equal(t, 2, status.Config.MaxWorkers)
		assert.Equal(t, 20, status.Config.BatchSize)
		assert.Equal(t, 30*time.Second, status.Config.Timeout)
		assert.Equal(t, 5, status.Config.MaxRetries)
		assert.False(t, status.Config.DeadLetter)
		assert.Equal(t, queue.DefaultConfig().RetryPolicy(), status.Config.Retry)
	})

	t.Run("invalid names", func(t *testing.T) {
		t.Parallel()

		m := newManager(t, nil, nil)
		for _, name := range []string{"", "has space", "a/b", "dead_letter_emails", "émails"} {
			assert.ErrorIs(t, m.RegisterQueue(name), queue.ErrInvalidQueueName, name)
		}
		assert.Empty(t, m.Queues())
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()

		m := newManager(t, nil, nil)
		assert.ErrorIs(t, m.RegisterQueue("q", queue.WithMaxWorkers(0)), queue.ErrInvalidQueueConfig)
		assert.ErrorIs(t, m.RegisterQueue("q", queue.WithBatchSize(-1)), queue.ErrInvalidQueueConfig)
		assert.ErrorIs(t, m.RegisterQueue("q", queue.WithQueueTimeout(0)), queue.ErrInvalidQueueConfig)
		assert.ErrorIs(t, m.RegisterQueue("q", queue.WithMaxRetries(-1)), queue.ErrInvalidQueueConfig)
		assert.ErrorIs(t, m.RegisterQueue("q", queue.WithQueuePriority(101)), queue.ErrInvalidPriority)
		assert.ErrorIs(t, m.RegisterQueue("q", queue.WithRetryPolicy(queue.RetryPolicy{})), queue.ErrInvalidQueueConfig)
		assert.Empty(t, m.Queues())
	})

	t.Run("re-registration resets counters without duplicating", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		m := newManager(t, nil, nil)
		require.NoError(t, m.RegisterQueue("q"))
		require.NoError(t, m.RegisterHandler(noopHandler("h")))

		_, err := m.AddTask(ctx, "q", "h", testPayload{Value: 1})
		require.NoError(t, err)

		status, err := m.QueueStatus("q")
		require.NoError(t, err)
		assert.EqualValues(t, 1, status.Stats.Total)

		require.NoError(t, m.RegisterQueue("q"))
		status, err = m.QueueStatus("q")
		require.NoError(t, err)
		assert.Equal(t, queue.QueueStats{}, status.Stats)
		assert.Equal(t, []string{"q"}, m.Queues())
	})

	t.Run("queues ordered by priority", func(t *testing.T) {
		t.Parallel()

		m := newManager(t, nil, nil)
		require.NoError(t, m.RegisterQueue("low", queue.WithQueuePriority(10)))
		require.NoError(t, m.RegisterQueue("high", queue.WithQueuePriority(90)))
		require.NoError(t, m.RegisterQueue("mid", queue.WithQueuePriority(50)))

		assert.Equal(t, []string{"high", "mid", "low"}, m.Queues())

		all := m.AllQueueStatus()
		require.Len(t, all, 3)
		assert.Equal(t, "high", all[0].Name)
	})
}

func TestManager_RegisterHandler(t *testing.T) {
	t.Parallel()

	m := newManager(t, nil, nil)
	assert.ErrorIs(t, m.RegisterHandler(nil), queue.ErrHandlerNil)
	assert.NoError(t, m.RegisterHandlers(noopHandler("a"), noopHandler("b")))
	assert.ErrorIs(t, m.RegisterHandlers(noopHandler("c"), nil), queue.ErrHandlerNil)
}

func TestManager_AddTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	setup := func(t *testing.T) (*queue.Manager, *fakeClock) {
		clock := newFakeClock()
		m := newManager(t, nil, clock)
		require.NoError(t, m.RegisterQueue("q", queue.WithQueuePriority(queue.PriorityLow), queue.WithMaxRetries(4)))
		require.NoError(t, m.RegisterHandler(noopHandler("h")))
		return m, clock
	}

	t.Run("stores pending task with queue defaults", func(t *testing.T) {
		t.Parallel()

		m, clock := setup(t)
		id, err := m.AddTask(ctx, "q", "h", testPayload{Message: "hi", Value: 7})
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, id)

		task, err := m.TaskStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "q", task.Queue)
		assert.Equal(t, "h", task.Handler)
		assert.Equal(t, queue.TaskStatusPending, task.Status)
		assert.Equal(t, queue.PriorityLow, task.Priority)
		assert.Equal(t, 4, task.MaxAttempts)
		assert.Equal(t, 0, task.Attempts)
		assert.Equal(t, 5*time.Minute, task.Timeout)
		assert.True(t, clock.Now().Equal(task.ScheduledAt))
		assert.JSONEq(t, `{"message":"hi","value":7}`, string(task.Payload))

		status, err := m.QueueStatus("q")
		require.NoError(t, err)
		assert.EqualValues(t, 1, status.Stats.Total)
		assert.EqualValues(t, 1, status.Stats.Pending)
	})

	t.Run("task options", func(t *testing.T) {
		t.Parallel()

		m, clock := setup(t)
		id, err := m.AddTask(ctx, "q", "h", nil,
			queue.WithPriority(queue.PriorityMax),
			queue.WithDelay(time.Hour),
			queue.WithMaxAttempts(1),
			queue.WithTimeout(time.Second),
		)
		require.NoError(t, err)

		task, err := m.TaskStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.PriorityMax, task.Priority)
		assert.Equal(t, 1, task.MaxAttempts)
		assert.Equal(t, time.Second, task.Timeout)
		assert.True(t, clock.Now().Add(time.Hour).Equal(task.ScheduledAt))
		assert.Empty(t, task.Payload)
	})

	t.Run("scheduled at wins over delay", func(t *testing.T) {
		t.Parallel()

		m, clock := setup(t)
		at := clock.Now().Add(3 * time.Hour)
		id, err := m.AddTask(ctx, "q", "h", nil, queue.WithDelay(time.Minute), queue.WithScheduledAt(at))
		require.NoError(t, err)

		task, err := m.TaskStatus(ctx, id)
		require.NoError(t, err)
		assert.True(t, at.Equal(task.ScheduledAt))
	})

	t.Run("zero attempt budget runs once", func(t *testing.T) {
		t.Parallel()

		m := newManager(t, nil, newFakeClock())
		require.NoError(t, m.RegisterQueue("once", queue.WithMaxRetries(0), queue.WithDeadLetter(false)))
		require.NoError(t, m.RegisterHandler(queue.NewPeriodicTaskHandler("broken", func(ctx context.Context) error {
			return errors.New("boom")
		})))

		inherited, err := m.AddTask(ctx, "once", "broken", nil)
		require.NoError(t, err)
		explicit, err := m.AddTask(ctx, "once", "broken", nil, queue.WithMaxAttempts(0))
		require.NoError(t, err)

		for _, id := range []uuid.UUID{inherited, explicit} {
			task, err := m.TaskStatus(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 1, task.MaxAttempts)
		}

		sum, err := m.Dispatch(ctx, "once")
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Failed)
		assert.Zero(t, sum.Retried)

		for _, id := range []uuid.UUID{inherited, explicit} {
			task, err := m.TaskStatus(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, queue.TaskStatusFailed, task.Status)
			assert.Equal(t, task.MaxAttempts, task.Attempts)
		}
	})

	t.Run("rejections", func(t *testing.T) {
		t.Parallel()

		m, _ := setup(t)
		_, err := m.AddTask(ctx, "missing", "h", nil)
		assert.ErrorIs(t, err, queue.ErrQueueNotFound)

		_, err = m.AddTask(ctx, "q", "missing", nil)
		assert.ErrorIs(t, err, queue.ErrHandlerNotFound)

		_, err = m.AddTask(ctx, "q", "h", nil, queue.WithPriority(-1))
		assert.ErrorIs(t, err, queue.ErrInvalidPriority)

		_, err = m.AddTask(ctx, "q", "h", make(chan int))
		assert.ErrorIs(t, err, queue.ErrPayloadMarshal)

		status, err := m.QueueStatus("q")
		require.NoError(t, err)
		assert.Zero(t, status.Stats.Total)
	})

	t.Run("storage failure", func(t *testing.T) {
		t.Parallel()

		c, err := cache.New(downBackend{}, cache.WithLogger(quietLogger()))
		require.NoError(t, err)
		m := newManager(t, c, nil)
		require.NoError(t, m.RegisterQueue("q"))
		require.NoError(t, m.RegisterHandler(noopHandler("h")))

		_, err = m.AddTask(ctx, "q", "h", nil)
		assert.ErrorIs(t, err, queue.ErrTaskCreate)
	})
}

func TestManager_AddBatchTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t, nil, nil)
	require.NoError(t, m.RegisterQueue("q", queue.WithBatchSize(2)))
	require.NoError(t, m.RegisterHandler(noopHandler("h")))

	t.Run("empty batch", func(t *testing.T) {
		_, err := m.AddBatchTasks(ctx, "q", nil)
		assert.ErrorIs(t, err, queue.ErrNoItemsToEnqueue)
	})

	t.Run("unknown queue", func(t *testing.T) {
		_, err := m.AddBatchTasks(ctx, "missing", []queue.BatchItem{{Handler: "h"}})
		assert.ErrorIs(t, err, queue.ErrQueueNotFound)
	})

	t.Run("partial success continues past failures", func(t *testing.T) {
		items := []queue.BatchItem{
			{Handler: "h", Payload: testPayload{Value: 1}},
			{Handler: "nope", Payload: testPayload{Value: 2}},
			{Handler: "h", Payload: testPayload{Value: 3}, Options: []queue.TaskOption{queue.WithPriority(queue.PriorityMax)}},
			{Handler: "h", Payload: testPayload{Value: 4}, Options: []queue.TaskOption{queue.WithPriority(-5)}},
			{Handler: "h", Payload: testPayload{Value: 5}},
		}

		ids, err := m.AddBatchTasks(ctx, "q", items, queue.WithDelay(time.Minute))
		require.Error(t, err)
		assert.ErrorIs(t, err, queue.ErrHandlerNotFound)
		assert.ErrorIs(t, err, queue.ErrInvalidPriority)
		assert.Contains(t, err.Error(), "item 1")
		assert.Contains(t, err.Error(), "item 3")
		require.Len(t, ids, 3)

		task, err := m.TaskStatus(ctx, ids[1])
		require.NoError(t, err)
		assert.Equal(t, queue.PriorityMax, task.Priority)
		assert.True(t, task.ScheduledAt.After(task.CreatedAt))
	})
}

func TestManager_TaskStatus(t *testing.T) {
	t.Parallel()

	m := newManager(t, nil, nil)
	_, err := m.TaskStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
}

func TestManager_QueueStatus(t *testing.T) {
	t.Parallel()

	m := newManager(t, nil, nil)
	_, err := m.QueueStatus("missing")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)
}

func TestManager_ClearQueue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	m := newManager(t, nil, clock)
	require.NoError(t, m.RegisterQueue("q"))
	require.NoError(t, m.RegisterQueue("q_other"))
	require.NoError(t, m.RegisterHandler(noopHandler("h")))

	done, err := m.AddTask(ctx, "q", "h", nil)
	require.NoError(t, err)
	_, err = m.Dispatch(ctx, "q")
	require.NoError(t, err)

	for range 3 {
		_, err := m.AddTask(ctx, "q", "h", nil, queue.WithDelay(time.Hour))
		require.NoError(t, err)
	}
	other, err := m.AddTask(ctx, "q_other", "h", nil, queue.WithDelay(time.Hour))
	require.NoError(t, err)

	_, err = m.ClearQueue(ctx, "missing")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)

	n, err := m.ClearQueue(ctx, "q", queue.TaskStatusPending)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	task, err := m.TaskStatus(ctx, done)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStatusCompleted, task.Status)

	n, err = m.ClearQueue(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = m.TaskStatus(ctx, done)
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)

	_, err = m.TaskStatus(ctx, other)
	assert.NoError(t, err, "queues sharing a name prefix are not touched")

	status, err := m.QueueStatus("q")
	require.NoError(t, err)
	assert.Zero(t, status.Stats.Total)
	assert.Zero(t, status.Stats.Pending)
	assert.Zero(t, status.Stats.Completed)
}
