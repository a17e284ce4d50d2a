package queue

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// QueueConfig is the immutable definition of a queue.
type QueueConfig struct {
	Priority   Priority      `json:"priority"`
	MaxWorkers int           `json:"max_workers"`
	BatchSize  int           `json:"batch_size"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	DeadLetter bool          `json:"dead_letter"`
	Retry      RetryPolicy   `json:"retry"`
}

// Validate checks the bounds of a queue definition.
func (c QueueConfig) Validate() error {
	switch {
	case !c.Priority.Valid():
		return ErrInvalidPriority
	case c.MaxWorkers <= 0, c.BatchSize <= 0, c.Timeout <= 0, c.MaxRetries < 0:
		return ErrInvalidQueueConfig
	case !c.Retry.valid():
		return ErrInvalidQueueConfig
	}
	return nil
}

// QueueOption configures a queue at registration
type QueueOption func(*QueueConfig)

// WithQueuePriority sets the queue priority; tasks inherit it unless overridden
func WithQueuePriority(p Priority) QueueOption {
	return func(c *QueueConfig) {
		c.Priority = p
	}
}

// WithMaxWorkers bounds the workers a dispatch pass may use for the queue
func WithMaxWorkers(n int) QueueOption {
	return func(c *QueueConfig) {
		c.MaxWorkers = n
	}
}

// WithBatchSize sets the chunk size used by AddBatchTasks
func WithBatchSize(n int) QueueOption {
	return func(c *QueueConfig) {
		c.BatchSize = n
	}
}

// WithQueueTimeout sets the default per-task execution timeout
func WithQueueTimeout(d time.Duration) QueueOption {
	return func(c *QueueConfig) {
		c.Timeout = d
	}
}

// WithMaxRetries sets the default attempt budget of tasks in the queue
func WithMaxRetries(n int) QueueOption {
	return func(c *QueueConfig) {
		c.MaxRetries = n
	}
}

// WithDeadLetter toggles moving exhausted tasks into dead_letter_<queue>
func WithDeadLetter(enabled bool) QueueOption {
	return func(c *QueueConfig) {
		c.DeadLetter = enabled
	}
}

// WithRetryPolicy overrides the backoff policy of the queue
func WithRetryPolicy(p RetryPolicy) QueueOption {
	return func(c *QueueConfig) {
		c.Retry = p
	}
}

func defaultQueueConfig(retry RetryPolicy) QueueConfig {
	return QueueConfig{
		Priority:   PriorityDefault,
		MaxWorkers: 3,
		BatchSize:  10,
		Timeout:    5 * time.Minute,
		MaxRetries: 3,
		DeadLetter: true,
		Retry:      retry,
	}
}

func deadLetterQueueConfig(retry RetryPolicy) QueueConfig {
	return QueueConfig{
		Priority:   PriorityMin,
		MaxWorkers: 1,
		BatchSize:  5,
		Timeout:    5 * time.Minute,
		MaxRetries: 0,
		DeadLetter: false,
		Retry:      retry,
	}
}

type queueEntry struct {
	name   string
	config QueueConfig
	stats  *queueStats
}

// registry owns queue definitions and their statistics.
type registry struct {
	mu     sync.RWMutex
	queues map[string]*queueEntry
}

func newRegistry() *registry {
	return &registry{queues: make(map[string]*queueEntry)}
}

// put stores cfg under name, replacing any previous definition and its counters.
func (r *registry) put(name string, cfg QueueConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[name] = &queueEntry{name: name, config: cfg, stats: &queueStats{}}
}

// ensure registers name with cfg only when it is absent.
func (r *registry) ensure(name string, cfg QueueConfig) *queueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.queues[name]; ok {
		return e
	}
	e := &queueEntry{name: name, config: cfg, stats: &queueStats{}}
	r.queues[name] = e
	return e
}

func (r *registry) get(name string) (*queueEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.queues[name]
	return e, ok
}

// ordered returns the queues by descending priority, then name.
func (r *registry) ordered() []*queueEntry {
	r.mu.RLock()
	out := make([]*queueEntry, 0, len(r.queues))
	for _, e := range r.queues {
		out = append(out, e)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *queueEntry) int {
		if c := cmp.Compare(b.config.Priority, a.config.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})
	return out
}
