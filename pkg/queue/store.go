package queue

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/taskengine/pkg/cache"
)

// store persists task records through the tiered cache. Every method maps a
// false result of the cache into a sentinel error; the cache has already logged it.
type store struct {
	cache     *cache.Cache
	retention time.Duration
}

// ttl returns the storage retention of t at now. Dead-lettered records never expire.
func (s *store) ttl(t *Task, now time.Time) time.Duration {
	if t.Status == TaskStatusDeadLetter {
		return cache.NoExpiry
	}
	delay := max(t.ScheduledAt.Sub(now), 0)
	return t.Priority.retention() + delay
}

func (s *store) create(ctx context.Context, t *Task, now time.Time) error {
	if !s.cache.Set(ctx, taskKey(t.Queue, t.ID), t, s.ttl(t, now)) {
		return ErrTaskCreate
	}
	return nil
}

func (s *store) save(ctx context.Context, t *Task, now time.Time) error {
	if !s.cache.Set(ctx, recordKey(t), t, s.ttl(t, now)) {
		return ErrTaskUpdate
	}
	return nil
}

// relocate saves t and drops the copy it had under prev when its status moved
// it to another key family.
func (s *store) relocate(ctx context.Context, t *Task, prev string, now time.Time) error {
	if err := s.save(ctx, t, now); err != nil {
		return err
	}
	if recordKey(t) != prev {
		s.cache.Delete(ctx, prev)
	}
	return nil
}

// load reads a record of queue, active or failed.
func (s *store) load(ctx context.Context, queue string, id uuid.UUID) (*Task, bool) {
	for _, key := range []string{taskKey(queue, id), failedKey(queue, id)} {
		var t Task
		if s.cache.Get(ctx, key, &t) && t.Queue == queue {
			return &t, true
		}
	}
	return nil, false
}

func (s *store) delete(ctx context.Context, queue string, id uuid.UUID) bool {
	return s.cache.Delete(ctx, taskKey(queue, id))
}

// archive stores a completed task under its short-lived completed key and removes
// the active record. The two writes are independent.
func (s *store) archive(ctx context.Context, t *Task) error {
	if !s.cache.Set(ctx, completedKey(t.Queue, t.ID), t, s.retention) {
		return ErrTaskUpdate
	}
	if !s.delete(ctx, t.Queue, t.ID) {
		return ErrTaskUpdate
	}
	return nil
}

// active returns the pending and processing records of queue, ordered for
// dispatch. Failed records live under their own keys and are not listed.
func (s *store) active(ctx context.Context, queue string) []*Task {
	return s.fetch(ctx, s.cache.Keys(ctx, taskPattern(queue)), queue)
}

func (s *store) failed(ctx context.Context, queue string) []*Task {
	return s.fetch(ctx, s.cache.Keys(ctx, failedPattern(queue)), queue)
}

func (s *store) completed(ctx context.Context, queue string) []*Task {
	return s.fetch(ctx, s.cache.Keys(ctx, completedPattern(queue)), queue)
}

// find locates a task by id across every queue: active, failed, then completed.
func (s *store) find(ctx context.Context, id uuid.UUID) (*Task, bool) {
	suffix := "_" + id.String()
	for _, prefix := range []string{taskKeyPrefix, failedKeyPrefix, completedKeyPrefix} {
		pattern := prefix + "*" + suffix
		for _, t := range s.fetch(ctx, s.cache.Keys(ctx, pattern), "") {
			if t.ID == id {
				return t, true
			}
		}
	}
	return nil, false
}

// fetch decodes keys; a non-empty queue drops records of queues sharing the key prefix.
func (s *store) fetch(ctx context.Context, keys []string, queue string) []*Task {
	if len(keys) == 0 {
		return nil
	}

	found := cache.GetMultiAs[*Task](ctx, s.cache, keys, nil)
	tasks := make([]*Task, 0, len(found))
	for _, t := range found {
		if t == nil || (queue != "" && t.Queue != queue) {
			continue
		}
		tasks = append(tasks, t)
	}
	slices.SortFunc(tasks, compareTasks)
	return tasks
}

// compareTasks orders by priority desc, then ScheduledAt, CreatedAt and id ascending.
func compareTasks(a, b *Task) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	if c := a.ScheduledAt.Compare(b.ScheduledAt); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID.String(), b.ID.String())
}
