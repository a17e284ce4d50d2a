package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/taskengine/pkg/logger"
)

// AddTask persists a pending task for handler in queue and returns its id.
// Unknown queues and handlers are rejected before anything is written.
func (m *Manager) AddTask(ctx context.Context, queue, handler string, payload any, opts ...TaskOption) (uuid.UUID, error) {
	entry, ok := m.registry.get(queue)
	if !ok || IsDeadLetterQueue(queue) {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrQueueNotFound, queue)
	}
	if _, ok := m.handler(handler); !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, handler)
	}

	options := &taskOptions{}
	for _, opt := range opts {
		opt(options)
	}

	task, err := m.buildTask(entry, handler, payload, options)
	if err != nil {
		return uuid.Nil, err
	}

	now := m.now()
	if err := m.store.create(ctx, task, now); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create task %q in queue %q: %w", handler, queue, err)
	}
	entry.stats.added(now)

	m.logger.DebugContext(ctx, "task added",
		logger.Queue(queue),
		logger.TaskID(task.ID),
		logger.Handler(handler),
		slog.Time("scheduled_at", task.ScheduledAt))

	return task.ID, nil
}

// AddBatchTasks adds items in chunks of the queue's batch size. It continues past
// individual failures and returns the ids that were stored together with the
// joined per-item errors.
func (m *Manager) AddBatchTasks(ctx context.Context, queue string, items []BatchItem, opts ...TaskOption) ([]uuid.UUID, error) {
	if len(items) == 0 {
		return nil, ErrNoItemsToEnqueue
	}
	entry, ok := m.registry.get(queue)
	if !ok || IsDeadLetterQueue(queue) {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, queue)
	}

	ids := make([]uuid.UUID, 0, len(items))
	var errs []error
	offset := 0
	for chunk := range slices.Chunk(items, entry.config.BatchSize) {
		for i, item := range chunk {
			if err := ctx.Err(); err != nil {
				return ids, errors.Join(append(errs, err)...)
			}
			itemOpts := append(slices.Clone(opts), item.Options...)
			id, err := m.AddTask(ctx, queue, item.Handler, item.Payload, itemOpts...)
			if err != nil {
				errs = append(errs, fmt.Errorf("item %d: %w", offset+i, err))
				continue
			}
			ids = append(ids, id)
		}
		offset += len(chunk)
	}

	if len(errs) > 0 {
		m.logger.WarnContext(ctx, "batch partially added",
			logger.Queue(queue),
			slog.Int("added", len(ids)),
			slog.Int("failed", len(errs)))
	}
	return ids, errors.Join(errs...)
}

// buildTask constructs a Task from the queue defaults and per-task options
func (m *Manager) buildTask(entry *queueEntry, handler string, payload any, options *taskOptions) (*Task, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	priority := entry.config.Priority
	if options.priority != nil {
		priority = *options.priority
	}
	if !priority.Valid() {
		return nil, ErrInvalidPriority
	}

	maxAttempts := entry.config.MaxRetries
	if options.maxAttempts != nil {
		maxAttempts = *options.maxAttempts
	}
	// every task runs at least once
	maxAttempts = max(maxAttempts, 1)

	timeout := entry.config.Timeout
	if options.timeout > 0 {
		timeout = options.timeout
	}

	now := m.now()
	scheduledAt := now
	if options.scheduledAt != nil {
		scheduledAt = *options.scheduledAt
	} else if options.delay > 0 {
		scheduledAt = now.Add(options.delay)
	}

	return &Task{
		ID:          uuid.New(),
		Queue:       entry.name,
		Handler:     handler,
		Payload:     raw,
		Status:      TaskStatusPending,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		Timeout:     timeout,
		CreatedAt:   now,
		ScheduledAt: scheduledAt,
	}, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, ErrPayloadMarshal
		}
		return p, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Join(ErrPayloadMarshal, fmt.Errorf("payload of type %T: %w", payload, err))
	}
	return raw, nil
}

// requeue resets a failed or dead-lettered record to a fresh pending state in queue.
func requeue(t *Task, queue string, now time.Time) error {
	if err := t.fire(eventRequeue); err != nil {
		return err
	}
	t.Queue = queue
	t.ScheduledAt = now
	t.StartedAt = nil
	t.CompletedAt = nil
	return nil
}
