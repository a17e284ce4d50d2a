package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/taskengine/pkg/logger"
)

// errAbandoned marks a task whose dispatcher died mid-execution after its last attempt.
var errAbandoned = errors.New("task abandoned in processing")

// Dispatch runs one pass over a single queue. Dead-letter queues are never dispatched.
// Task failures are reported in the summary, never as the returned error.
func (m *Manager) Dispatch(ctx context.Context, queue string, opts ...DispatchOption) (Summary, error) {
	entry, ok := m.registry.get(queue)
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrQueueNotFound, queue)
	}
	if IsDeadLetterQueue(queue) {
		return Summary{}, nil
	}
	return m.dispatchQueue(ctx, entry, newDispatchOptions(opts)), nil
}

// DispatchAll runs one pass over every registered queue, highest priority first.
func (m *Manager) DispatchAll(ctx context.Context, opts ...DispatchOption) Summary {
	o := newDispatchOptions(opts)

	var sum Summary
	for _, entry := range m.registry.ordered() {
		if IsDeadLetterQueue(entry.name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			sum.Errors = append(sum.Errors, err)
			break
		}
		sum.merge(m.dispatchQueue(ctx, entry, o))
	}
	return sum
}

func newDispatchOptions(opts []DispatchOption) *dispatchOptions {
	o := &dispatchOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (m *Manager) dispatchQueue(ctx context.Context, entry *queueEntry, o *dispatchOptions) Summary {
	sum := Summary{Queues: 1}

	if !m.lease.acquire(ctx, entry.name) {
		m.logger.DebugContext(ctx, "queue lease held elsewhere, skipping", logger.Queue(entry.name))
		sum.Skipped = 1
		return sum
	}
	defer m.lease.release(context.WithoutCancel(ctx), entry.name)

	limit := min(entry.config.MaxWorkers, m.cfg.MaxWorkers) * m.cfg.MaxTasksPerWorker
	if o.batchLimit > 0 {
		limit = min(limit, o.batchLimit)
	}

	now := m.now()
	var due []*Task
	for _, t := range m.store.active(ctx, entry.name) {
		if t.Status == TaskStatusProcessing && m.stale(t, entry, now) {
			if !m.recoverStale(ctx, entry, t, now, &sum) {
				continue
			}
		}
		if t.eligible(now) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return sum
	}

	slices.SortFunc(due, compareTasks)
	if len(due) > limit {
		due = due[:limit]
	}

	for _, t := range due {
		if err := ctx.Err(); err != nil {
			sum.Errors = append(sum.Errors, err)
			break
		}
		// the lease covers the task about to run, overrun included
		if !m.lease.extend(ctx, entry.name, m.timeout(t, entry)+m.cfg.LeaseTTL) {
			m.logger.WarnContext(ctx, "queue lease lost, ending pass early", logger.Queue(entry.name))
			sum.Errors = append(sum.Errors, fmt.Errorf("%w: %s", ErrLeaseLost, entry.name))
			break
		}
		m.processTask(ctx, entry, t, &sum)
	}

	m.logger.DebugContext(ctx, "queue dispatched",
		logger.Queue(entry.name),
		slog.Int("claimed", sum.Claimed),
		slog.Int("succeeded", sum.Succeeded),
		slog.Int("retried", sum.Retried))
	return sum
}

// stale reports whether a processing record outlived any dispatcher that could own it.
func (m *Manager) stale(t *Task, entry *queueEntry, now time.Time) bool {
	if t.StartedAt == nil {
		return true
	}
	return now.Sub(*t.StartedAt) > m.timeout(t, entry)+m.cfg.LeaseTTL
}

// recoverStale returns a stale task to pending, or fails it when its last attempt
// was the one that got abandoned. It reports whether t is pending afterwards.
func (m *Manager) recoverStale(ctx context.Context, entry *queueEntry, t *Task, now time.Time, sum *Summary) bool {
	m.logger.WarnContext(ctx, "recovering stale task",
		logger.Queue(entry.name),
		logger.TaskID(t.ID),
		logger.Handler(t.Handler),
		logger.Attempt(t.Attempts, t.MaxAttempts))

	if t.Attempts >= t.MaxAttempts {
		t.Error = errAbandoned.Error()
		m.finalizeFailure(ctx, entry, t, ReasonMaxAttemptsExceeded, now, sum)
		return false
	}

	if err := t.fire(eventRecover); err != nil {
		sum.Errors = append(sum.Errors, fmt.Errorf("recover task %s: %w", t.ID, err))
		return false
	}
	t.ScheduledAt = now
	t.StartedAt = nil
	if err := m.store.save(ctx, t, now); err != nil {
		sum.Errors = append(sum.Errors, fmt.Errorf("recover task %s: %w", t.ID, err))
		return false
	}
	entry.stats.recovered(now)
	sum.Recovered++
	return true
}

func (m *Manager) timeout(t *Task, entry *queueEntry) time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return entry.config.Timeout
}

// processTask claims and executes one task, then drives its state transition.
// The record is re-read first; a listed task that was claimed, removed or
// rescheduled since the listing is skipped.
func (m *Manager) processTask(ctx context.Context, entry *queueEntry, listed *Task, sum *Summary) {
	now := m.now()
	t, ok := m.store.load(ctx, entry.name, listed.ID)
	if !ok || t.Attempts != listed.Attempts || !t.eligible(now) {
		m.logger.DebugContext(ctx, "task changed since listing, skipping",
			logger.Queue(entry.name),
			logger.TaskID(listed.ID))
		return
	}
	if err := t.fire(eventClaim); err != nil {
		sum.Errors = append(sum.Errors, fmt.Errorf("claim task %s: %w", t.ID, err))
		return
	}
	t.Attempts++
	t.StartedAt = &now
	t.Timeout = m.timeout(t, entry)
	if err := m.store.save(ctx, t, now); err != nil {
		m.logger.ErrorContext(ctx, "failed to claim task",
			logger.Queue(entry.name),
			logger.TaskID(t.ID),
			logger.Error(err))
		sum.Errors = append(sum.Errors, fmt.Errorf("claim task %s: %w", t.ID, err))
		return
	}
	entry.stats.started(now)
	sum.Claimed++

	handler, ok := m.handler(t.Handler)
	if !ok {
		m.handleMissingHandler(ctx, entry, t, sum)
		return
	}

	result, took, err := m.execute(ctx, handler, t)
	if err != nil {
		m.handleTaskFailure(ctx, entry, t, err, took, sum)
		return
	}
	m.handleTaskSuccess(ctx, entry, t, result, took, sum)
}

// execute runs the handler under the task timeout. The handler context is detached
// from ctx so shutdown lets the running task finish; the deadline is advisory and
// an overrun is detected once the handler returns.
func (m *Manager) execute(ctx context.Context, h Handler, t *Task) (result json.RawMessage, took time.Duration, err error) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
			m.logger.ErrorContext(ctx, "handler panicked",
				logger.Queue(t.Queue),
				logger.TaskID(t.ID),
				logger.Handler(t.Handler),
				slog.Any("panic", r))
		}

		took = time.Since(start)
		overrun := took > t.Timeout || (errors.Is(err, context.DeadlineExceeded) && hctx.Err() != nil)
		if overrun && !errors.Is(err, ErrTaskTimeout) {
			result = nil
			if err == nil {
				err = ErrTaskTimeout
			} else {
				err = fmt.Errorf("%w: %w", ErrTaskTimeout, err)
			}
		}
	}()

	result, err = h.Handle(withTask(hctx, *t), t.Payload)
	return result, took, err
}

func (m *Manager) handleMissingHandler(ctx context.Context, entry *queueEntry, t *Task, sum *Summary) {
	m.logger.ErrorContext(ctx, "no handler registered for task",
		logger.Queue(entry.name),
		logger.TaskID(t.ID),
		logger.Handler(t.Handler))

	t.Error = fmt.Sprintf("%s: %s", ErrHandlerNotFound, t.Handler)
	m.finalizeFailure(ctx, entry, t, ReasonHandlerNotFound, m.now(), sum)
}

func (m *Manager) handleTaskFailure(ctx context.Context, entry *queueEntry, t *Task, execErr error, took time.Duration, sum *Summary) {
	m.logger.ErrorContext(ctx, "task failed",
		logger.Queue(entry.name),
		logger.TaskID(t.ID),
		logger.Handler(t.Handler),
		logger.Attempt(t.Attempts, t.MaxAttempts),
		logger.Duration(took),
		logger.Error(execErr))

	now := m.now()
	t.Error = execErr.Error()

	if t.Attempts >= t.MaxAttempts {
		m.finalizeFailure(ctx, entry, t, ReasonMaxAttemptsExceeded, now, sum)
		return
	}

	if err := t.fire(eventRetry); err != nil {
		sum.Errors = append(sum.Errors, fmt.Errorf("reschedule task %s: %w", t.ID, err))
		return
	}
	t.ScheduledAt = now.Add(entry.config.Retry.Delay(t.Attempts))
	t.StartedAt = nil
	t.History = append(t.History, RetryRecord{
		Attempt:       t.Attempts,
		Error:         t.Error,
		RescheduledAt: t.ScheduledAt,
	})
	if err := m.store.save(ctx, t, now); err != nil {
		sum.Errors = append(sum.Errors, fmt.Errorf("reschedule task %s: %w", t.ID, err))
		return
	}
	entry.stats.retried(now)
	sum.Retried++
}

// finalizeFailure ends a task for good: into the dead-letter queue when the queue
// has one, else as failed in place.
func (m *Manager) finalizeFailure(ctx context.Context, entry *queueEntry, t *Task, reason string, now time.Time, sum *Summary) {
	if entry.config.DeadLetter {
		err := m.moveToDeadLetter(ctx, entry, t, reason, now)
		if err == nil {
			sum.DeadLettered++
			return
		}
		m.logger.ErrorContext(ctx, "failed to move task to dead letter queue, marking failed",
			logger.Queue(entry.name),
			logger.TaskID(t.ID),
			logger.Error(err))
		sum.Errors = append(sum.Errors, err)
	}

	prev := recordKey(t)
	if err := t.fire(eventFail); err != nil {
		sum.Errors = append(sum.Errors, fmt.Errorf("fail task %s: %w", t.ID, err))
		return
	}
	t.CompletedAt = &now
	if err := m.store.relocate(ctx, t, prev, now); err != nil {
		sum.Errors = append(sum.Errors, fmt.Errorf("fail task %s: %w", t.ID, err))
		return
	}
	entry.stats.failedTask(now)
	sum.Failed++
}

func (m *Manager) handleTaskSuccess(ctx context.Context, entry *queueEntry, t *Task, result json.RawMessage, took time.Duration, sum *Summary) {
	now := m.now()
	if err := t.fire(eventComplete); err != nil {
		sum.Errors = append(sum.Errors, fmt.Errorf("complete task %s: %w", t.ID, err))
		return
	}
	t.CompletedAt = &now
	t.Error = ""
	t.Result = result

	if err := m.store.archive(ctx, t); err != nil {
		m.logger.ErrorContext(ctx, "failed to archive completed task",
			logger.Queue(entry.name),
			logger.TaskID(t.ID),
			logger.Error(err))
		sum.Errors = append(sum.Errors, fmt.Errorf("archive task %s: %w", t.ID, err))
	}
	entry.stats.succeeded(now, took)
	sum.Succeeded++

	m.logger.InfoContext(ctx, "task completed",
		logger.Queue(entry.name),
		logger.TaskID(t.ID),
		logger.Handler(t.Handler),
		logger.Attempt(t.Attempts, t.MaxAttempts),
		logger.Duration(took))
}
