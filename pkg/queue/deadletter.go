package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/taskengine/pkg/logger"
)

// deadLetterEntry returns the dead-letter queue of source, registering it on first use.
func (m *Manager) deadLetterEntry(source string) *queueEntry {
	return m.registry.ensure(DeadLetterQueueName(source), deadLetterQueueConfig(m.cfg.RetryPolicy()))
}

// moveToDeadLetter writes t into dead_letter_<queue> and removes the source record.
// The two writes are not atomic; a leftover source record is recovered as stale.
func (m *Manager) moveToDeadLetter(ctx context.Context, entry *queueEntry, t *Task, reason string, now time.Time) error {
	dlq := m.deadLetterEntry(entry.name)

	moved := *t
	if err := moved.fire(eventDeadLetter); err != nil {
		return fmt.Errorf("failed to move task %s to dead letter queue: %w", t.ID, err)
	}
	moved.Queue = dlq.name
	moved.SourceQueue = entry.name
	moved.DeadLetterReason = reason
	moved.CompletedAt = &now

	if err := m.store.save(ctx, &moved, now); err != nil {
		return fmt.Errorf("failed to move task %s to dead letter queue: %w", t.ID, err)
	}
	if !m.store.delete(ctx, entry.name, t.ID) {
		m.logger.WarnContext(ctx, "dead-lettered task still present in source queue",
			logger.Queue(entry.name),
			logger.TaskID(t.ID))
	}

	entry.stats.movedOut(now)
	dlq.stats.deadLettered(now)
	*t = moved

	m.logger.WarnContext(ctx, "task moved to dead letter queue",
		logger.Queue(entry.name),
		logger.TaskID(t.ID),
		logger.Handler(t.Handler),
		slog.String("reason", reason),
		logger.Attempt(t.Attempts, t.MaxAttempts))
	return nil
}

// RequeueDeadLetter replays a dead-lettered task into its source queue as a fresh
// pending task: attempts, history and error are reset, the id is kept.
func (m *Manager) RequeueDeadLetter(ctx context.Context, id uuid.UUID) error {
	t, ok := m.store.find(ctx, id)
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status != TaskStatusDeadLetter {
		return fmt.Errorf("%w: status %s", ErrNotDeadLettered, t.Status)
	}

	source, ok := m.registry.get(t.SourceQueue)
	if !ok {
		return fmt.Errorf("%w: %s", ErrQueueNotFound, t.SourceQueue)
	}
	dlq := m.deadLetterEntry(t.SourceQueue)

	now := m.now()
	replay := *t
	if err := requeue(&replay, source.name, now); err != nil {
		return err
	}
	replay.Attempts = 0
	replay.History = nil
	replay.Error = ""
	replay.SourceQueue = ""
	replay.DeadLetterReason = ""

	if err := m.store.create(ctx, &replay, now); err != nil {
		return fmt.Errorf("requeue task %s: %w", id, err)
	}
	m.store.delete(ctx, dlq.name, id)

	dlq.stats.takeFailed(now)
	source.stats.added(now)

	m.logger.InfoContext(ctx, "dead-lettered task requeued",
		logger.Queue(source.name),
		logger.TaskID(id),
		logger.Handler(replay.Handler))
	return nil
}
