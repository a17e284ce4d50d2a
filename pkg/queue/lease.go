package queue

import (
	"context"
	"time"

	"github.com/dmitrymomot/taskengine/pkg/cache"
)

// lease is a storage-backed mutual exclusion token for dispatching one queue.
// It relies on the secondary backend's conditional write, so it holds across
// processes sharing the same storage.
type lease struct {
	cache *cache.Cache
	owner string
	ttl   time.Duration
}

// acquire returns true when this dispatcher now owns the queue lease.
func (l *lease) acquire(ctx context.Context, queue string) bool {
	return l.cache.Add(ctx, lockKey(queue), l.owner, l.ttl)
}

// release deletes the lease only while it still names this dispatcher. The
// check and the delete are separate operations; the ttl bounds the damage of a
// lease that expired and was re-taken in between.
func (l *lease) release(ctx context.Context, queue string) {
	key := lockKey(queue)
	var owner string
	if !l.cache.Get(ctx, key, &owner) || owner != l.owner {
		return
	}
	l.cache.Delete(ctx, key)
}

// extend moves the lease deadline to ttl from now while the lease still names
// this dispatcher. It reports false once the lease expired or changed hands.
// The read and the write are separate operations; claims re-read each record
// so an overlap in that window cannot run a task twice.
func (l *lease) extend(ctx context.Context, queue string, ttl time.Duration) bool {
	key := lockKey(queue)
	var owner string
	if !l.cache.Get(ctx, key, &owner) || owner != l.owner {
		return false
	}
	return l.cache.Set(ctx, key, l.owner, ttl)
}
