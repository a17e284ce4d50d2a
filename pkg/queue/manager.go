package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/taskengine/pkg/cache"
	"github.com/dmitrymomot/taskengine/pkg/logger"
)

// Manager owns the queue registry, the handler table and the task store. It is
// safe for concurrent use; dispatch passes for one queue are serialized through a
// storage-backed lease.
type Manager struct {
	cfg      Config
	registry *registry
	store    *store
	lease    *lease
	id       string
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewManager creates a queue manager persisting tasks through c.
func NewManager(c *cache.Cache, opts ...ManagerOption) (*Manager, error) {
	if c == nil {
		return nil, ErrCacheNil
	}

	options := &managerOptions{
		config: DefaultConfig(),
		logger: slog.Default(),
		clock:  time.Now,
		id:     uuid.NewString(),
	}
	for _, opt := range opts {
		opt(options)
	}
	cfg := options.config.normalize()

	return &Manager{
		cfg:      cfg,
		registry: newRegistry(),
		store:    &store{cache: c, retention: cfg.CompletedRetention},
		lease:    &lease{cache: c, owner: options.id, ttl: cfg.LeaseTTL},
		id:       options.id,
		logger:   options.logger.With(logger.Component("queue"), logger.WorkerID(options.id)),
		now:      options.clock,
		handlers: make(map[string]Handler),
	}, nil
}

// ID returns the dispatcher identity used for queue leases.
func (m *Manager) ID() string {
	return m.id
}

// Config returns the normalized manager configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// RegisterQueue validates and stores a queue definition. Registering an existing
// queue replaces its definition and resets its statistics.
func (m *Manager) RegisterQueue(name string, opts ...QueueOption) error {
	if err := validateQueueName(name); err != nil {
		return fmt.Errorf("%w: %q", err, name)
	}

	cfg := defaultQueueConfig(m.cfg.RetryPolicy())
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("queue %q: %w", name, err)
	}

	m.registry.put(name, cfg)
	m.logger.Info("queue registered",
		logger.Queue(name),
		slog.Int("priority", int(cfg.Priority)),
		slog.Int("max_workers", cfg.MaxWorkers),
		slog.Int("max_retries", cfg.MaxRetries),
		slog.Bool("dead_letter", cfg.DeadLetter))
	return nil
}

// RegisterHandler adds a handler to the lookup table, replacing one with the same name.
func (m *Manager) RegisterHandler(handler Handler) error {
	if handler == nil {
		return ErrHandlerNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[handler.Name()] = handler
	return nil
}

// RegisterHandlers registers multiple handlers
func (m *Manager) RegisterHandlers(handlers ...Handler) error {
	for _, h := range handlers {
		if err := m.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) handler(name string) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[name]
	return h, ok
}

// Queues returns the registered queue names, highest priority first.
func (m *Manager) Queues() []string {
	entries := m.registry.ordered()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// QueueStatus returns the definition and counters of one queue.
func (m *Manager) QueueStatus(name string) (QueueStatus, error) {
	e, ok := m.registry.get(name)
	if !ok {
		return QueueStatus{}, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
	}
	return QueueStatus{Name: e.name, Config: e.config, Stats: e.stats.snapshot()}, nil
}

// AllQueueStatus returns the status of every queue, highest priority first.
func (m *Manager) AllQueueStatus() []QueueStatus {
	entries := m.registry.ordered()
	out := make([]QueueStatus, len(entries))
	for i, e := range entries {
		out[i] = QueueStatus{Name: e.name, Config: e.config, Stats: e.stats.snapshot()}
	}
	return out
}

// TaskStatus returns the stored record of a task, active or recently completed.
func (m *Manager) TaskStatus(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, ok := m.store.find(ctx, id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

// RetryTask moves a failed task back to pending with its attempt counter intact.
// An empty queue searches every queue.
func (m *Manager) RetryTask(ctx context.Context, id uuid.UUID, queue string) error {
	var (
		t  *Task
		ok bool
	)
	if queue != "" {
		t, ok = m.store.load(ctx, queue, id)
	} else {
		t, ok = m.store.find(ctx, id)
	}
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status != TaskStatusFailed {
		return fmt.Errorf("%w: status %s", ErrTaskNotRetryable, t.Status)
	}

	entry, ok := m.registry.get(t.Queue)
	if !ok {
		return fmt.Errorf("%w: %s", ErrQueueNotFound, t.Queue)
	}

	now := m.now()
	prev := recordKey(t)
	if err := requeue(t, t.Queue, now); err != nil {
		return err
	}
	// give the task one more attempt if its budget is spent
	t.MaxAttempts = max(t.MaxAttempts, t.Attempts+1)
	if err := m.store.relocate(ctx, t, prev, now); err != nil {
		return err
	}
	entry.stats.requeued(now)

	m.logger.InfoContext(ctx, "task requeued",
		logger.Queue(t.Queue),
		logger.TaskID(t.ID),
		logger.Handler(t.Handler))
	return nil
}

// ClearQueue deletes the records of a queue, optionally only those in the given
// statuses, and returns how many were removed. Completed archives are included
// when no filter is given or the filter names TaskStatusCompleted.
func (m *Manager) ClearQueue(ctx context.Context, name string, statuses ...TaskStatus) (int, error) {
	entry, ok := m.registry.get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
	}

	match := func(s TaskStatus) bool {
		return len(statuses) == 0 || slices.Contains(statuses, s)
	}

	removed := 0
	records := m.store.active(ctx, name)
	if match(TaskStatusFailed) {
		records = append(records, m.store.failed(ctx, name)...)
	}
	for _, t := range records {
		if !match(t.Status) {
			continue
		}
		if m.store.cache.Delete(ctx, recordKey(t)) {
			entry.stats.removed(t.Status)
			removed++
		}
	}
	if match(TaskStatusCompleted) {
		for _, t := range m.store.completed(ctx, name) {
			if m.store.cache.Delete(ctx, completedKey(name, t.ID)) {
				entry.stats.removed(TaskStatusCompleted)
				removed++
			}
		}
	}

	m.logger.InfoContext(ctx, "queue cleared",
		logger.Queue(name),
		slog.Int("removed", removed))
	return removed, nil
}
