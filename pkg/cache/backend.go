package cache

import (
	"context"
	"time"
)

// Backend is the uniform key/value contract every storage tier implements.
// Get reports a miss with (nil, false, nil); errors are reserved for backend failures.
// A zero ttl means the entry never expires.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Flush(ctx context.Context) error
}

// MultiGetter is implemented by backends with a native batch read.
// Missing keys are simply absent from the returned map.
type MultiGetter interface {
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)
}

// KeyLister is implemented by backends that can enumerate keys matching a glob pattern.
type KeyLister interface {
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// ConditionalSetter is implemented by backends with an atomic "set if absent" write.
// Expired entries count as absent.
type ConditionalSetter interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// Purger is implemented by backends that keep expired rows around until swept.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// TTLReader is implemented by backends that can report the remaining lifetime
// of a key. A found key with a zero ttl never expires.
type TTLReader interface {
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
}

// capabilities caches the optional interfaces a backend satisfies so the
// engine resolves them once, at construction.
type capabilities struct {
	backend     Backend
	multiGetter MultiGetter
	keyLister   KeyLister
	conditional ConditionalSetter
	purger      Purger
	ttlReader   TTLReader
}

func resolveCapabilities(b Backend) *capabilities {
	if b == nil {
		return nil
	}
	c := &capabilities{backend: b}
	c.multiGetter, _ = b.(MultiGetter)
	c.keyLister, _ = b.(KeyLister)
	c.conditional, _ = b.(ConditionalSetter)
	c.purger, _ = b.(Purger)
	c.ttlReader, _ = b.(TTLReader)
	return c
}

// expiresAt converts a ttl into an absolute deadline; the zero time means no expiry.
func expiresAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
