package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dmitrymomot/taskengine/pkg/logger"
)

// NoExpiry stores an entry without a ttl. A zero ttl means "use the default ttl".
const NoExpiry time.Duration = -1

// Cache composes an optional fast primary backend with a mandatory durable
// secondary backend behind one key/value contract.
//
// Reads go to the primary first and fall back to the secondary, repopulating the
// primary on a secondary hit. Writes must succeed on the secondary; the primary
// is written best-effort and invalidated when that write fails so it never
// shadows newer data. Backend failures are logged and counted, never returned.
type Cache struct {
	primary    *capabilities
	secondary  *capabilities
	prefix     string
	codec      codec
	defaultTTL time.Duration
	// bounds primary copies when the secondary cannot report remaining ttls
	repopulateTTL time.Duration
	logger        *slog.Logger
	stats         statsRecorder
}

// New creates a cache engine on top of the given secondary backend.
func New(secondary Backend, opts ...Option) (*Cache, error) {
	if secondary == nil {
		return nil, ErrBackendNil
	}

	o := &options{
		threshold:     1024,
		level:         6,
		defaultTTL:    time.Hour,
		repopulateTTL: time.Minute,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	c := &Cache{
		primary:       resolveCapabilities(o.primary),
		secondary:     resolveCapabilities(secondary),
		prefix:        o.keyPrefix,
		codec:         newCodec(o.threshold, o.level),
		defaultTTL:    o.defaultTTL,
		repopulateTTL: o.repopulateTTL,
		logger:        o.logger.With(logger.Component("cache")),
	}

	if c.primary == nil {
		c.logger.Info("cache running without primary backend",
			logger.Backend(secondary.Name()))
	}

	return c, nil
}

// Degraded reports whether the engine runs on the secondary backend alone.
func (c *Cache) Degraded() bool {
	return c.primary == nil
}

// Get decodes the value stored under key into dst and reports whether it was found.
// On a miss or a decoding failure dst is left untouched, so callers pre-fill it with their default.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	raw, ok := c.lookup(ctx, key)
	if !ok {
		return false
	}
	if dst == nil {
		return true
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.stats.errors.Add(1)
		c.logger.WarnContext(ctx, "cache value cannot be decoded",
			logger.CacheKey(key), logger.Error(err))
		return false
	}
	return true
}

// GetRaw returns the serialized JSON stored under key.
func (c *Cache) GetRaw(ctx context.Context, key string) (json.RawMessage, bool) {
	return c.lookup(ctx, key)
}

func (c *Cache) lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	start := time.Now()
	defer func() { c.stats.observeRead(time.Since(start)) }()

	k := c.key(key)

	if c.primary != nil {
		data, ok, err := c.primary.backend.Get(ctx, k)
		switch {
		case err != nil:
			c.backendError(ctx, "get", c.primary.backend, key, err)
		case ok:
			raw, err := c.codec.decode(data)
			if err == nil {
				c.stats.hits.Add(1)
				c.stats.primaryHits.Add(1)
				return raw, true
			}
			c.backendError(ctx, "decode", c.primary.backend, key, err)
		}
	}

	data, ok, err := c.secondary.backend.Get(ctx, k)
	if err != nil {
		c.backendError(ctx, "get", c.secondary.backend, key, err)
		c.stats.misses.Add(1)
		return nil, false
	}
	if !ok {
		c.stats.misses.Add(1)
		return nil, false
	}

	raw, err := c.codec.decode(data)
	if err != nil {
		c.backendError(ctx, "decode", c.secondary.backend, key, err)
		c.stats.misses.Add(1)
		return nil, false
	}

	c.stats.hits.Add(1)
	c.stats.secondaryHits.Add(1)
	c.repopulate(ctx, key, k, data)
	return raw, true
}

// repopulate copies a secondary hit into the primary for no longer than the
// secondary entry has left to live.
func (c *Cache) repopulate(ctx context.Context, key, k string, data []byte) {
	if c.primary == nil {
		return
	}
	ttl, ok := c.copyTTL(ctx, key, k)
	if !ok {
		return
	}
	if err := c.primary.backend.Set(ctx, k, data, ttl); err != nil {
		c.backendError(ctx, "repopulate", c.primary.backend, key, err)
	}
}

// copyTTL returns the ttl of a primary copy of the secondary entry k, or false
// when the entry is already gone. A secondary that cannot report ttls bounds
// the copy by min(default ttl, repopulate ttl).
func (c *Cache) copyTTL(ctx context.Context, key, k string) (time.Duration, bool) {
	if c.secondary.ttlReader == nil {
		return c.capTTL(c.repopulateTTL), true
	}

	remaining, ok, err := c.secondary.ttlReader.TTL(ctx, k)
	switch {
	case err != nil:
		c.backendError(ctx, "ttl", c.secondary.backend, key, err)
		return c.capTTL(c.repopulateTTL), true
	case !ok || remaining < 0:
		return 0, false
	case remaining == 0:
		return c.defaultTTL, true
	default:
		return c.capTTL(remaining), true
	}
}

// capTTL bounds d by the default ttl; a zero default ttl means no bound.
func (c *Cache) capTTL(d time.Duration) time.Duration {
	if c.defaultTTL > 0 {
		return min(d, c.defaultTTL)
	}
	return d
}

// GetMulti returns the serialized JSON for every key found in either tier.
func (c *Cache) GetMulti(ctx context.Context, keys []string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out
	}

	start := time.Now()
	defer func() { c.stats.observeRead(time.Since(start)) }()

	pending := make(map[string]string, len(keys)) // backend key -> caller key
	for _, key := range keys {
		pending[c.key(key)] = key
	}

	if c.primary != nil {
		found := c.fetchMany(ctx, c.primary, slices.Collect(maps.Keys(pending)))
		for k, data := range found {
			raw, err := c.codec.decode(data)
			if err != nil {
				c.backendError(ctx, "decode", c.primary.backend, pending[k], err)
				continue
			}
			out[pending[k]] = raw
			c.stats.hits.Add(1)
			c.stats.primaryHits.Add(1)
			delete(pending, k)
		}
	}

	if len(pending) > 0 {
		found := c.fetchMany(ctx, c.secondary, slices.Collect(maps.Keys(pending)))
		for k, data := range found {
			raw, err := c.codec.decode(data)
			if err != nil {
				c.backendError(ctx, "decode", c.secondary.backend, pending[k], err)
				continue
			}
			out[pending[k]] = raw
			c.stats.hits.Add(1)
			c.stats.secondaryHits.Add(1)
			c.repopulate(ctx, pending[k], k, data)
			delete(pending, k)
		}
	}

	c.stats.misses.Add(uint64(len(pending)))
	return out
}

// fetchMany uses the backend-native batch read when available, else per-key reads.
func (c *Cache) fetchMany(ctx context.Context, tier *capabilities, keys []string) map[string][]byte {
	if tier.multiGetter != nil {
		found, err := tier.multiGetter.GetMulti(ctx, keys)
		if err == nil {
			return found
		}
		c.backendError(ctx, "get_multi", tier.backend, strings.Join(keys, ","), err)
	}

	found := make(map[string][]byte, len(keys))
	for _, k := range keys {
		data, ok, err := tier.backend.Get(ctx, k)
		if err != nil {
			c.backendError(ctx, "get", tier.backend, k, err)
			continue
		}
		if ok {
			found[k] = data
		}
	}
	return found
}

// Set serializes and stores value. It returns true only when the secondary write succeeded.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, ok := c.encode(ctx, key, value)
	if !ok {
		return false
	}
	return c.write(ctx, key, data, ttl)
}

// SetMulti stores every item and reports whether all secondary writes succeeded.
func (c *Cache) SetMulti(ctx context.Context, items map[string]any, ttl time.Duration) bool {
	all := true
	for key, value := range items {
		if !c.Set(ctx, key, value, ttl) {
			all = false
		}
	}
	return all
}

func (c *Cache) write(ctx context.Context, key string, data []byte, ttl time.Duration) bool {
	k := c.key(key)
	ttl = c.ttl(ttl)

	if err := c.secondary.backend.Set(ctx, k, data, ttl); err != nil {
		c.backendError(ctx, "set", c.secondary.backend, key, err)
		c.invalidatePrimary(ctx, key, k)
		return false
	}
	c.stats.sets.Add(1)

	if c.primary != nil {
		if err := c.primary.backend.Set(ctx, k, data, ttl); err != nil {
			c.backendError(ctx, "set", c.primary.backend, key, err)
			c.invalidatePrimary(ctx, key, k)
		}
	}
	return true
}

// Add stores value only when key is absent, using the secondary's atomic conditional
// write. It is the building block for storage-backed leases.
func (c *Cache) Add(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, ok := c.encode(ctx, key, value)
	if !ok {
		return false
	}

	k := c.key(key)
	ttl = c.ttl(ttl)

	var added bool
	if c.secondary.conditional != nil {
		var err error
		added, err = c.secondary.conditional.SetNX(ctx, k, data, ttl)
		if err != nil {
			c.backendError(ctx, "set_nx", c.secondary.backend, key, err)
			return false
		}
	} else {
		// not atomic; only reachable with a custom backend lacking SetNX
		exists, err := c.secondary.backend.Exists(ctx, k)
		if err != nil {
			c.backendError(ctx, "exists", c.secondary.backend, key, err)
			return false
		}
		if exists {
			return false
		}
		if err := c.secondary.backend.Set(ctx, k, data, ttl); err != nil {
			c.backendError(ctx, "set", c.secondary.backend, key, err)
			return false
		}
		added = true
	}

	if !added {
		return false
	}
	c.stats.sets.Add(1)

	if c.primary != nil {
		if err := c.primary.backend.Set(ctx, k, data, ttl); err != nil {
			c.backendError(ctx, "set", c.primary.backend, key, err)
			c.invalidatePrimary(ctx, key, k)
		}
	}
	return true
}

// Delete removes key from both tiers; the result reflects the secondary.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	k := c.key(key)
	c.invalidatePrimary(ctx, key, k)

	if err := c.secondary.backend.Delete(ctx, k); err != nil {
		c.backendError(ctx, "delete", c.secondary.backend, key, err)
		return false
	}
	c.stats.deletes.Add(1)
	return true
}

// Exists reports whether key is present in either tier.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	k := c.key(key)

	if c.primary != nil {
		ok, err := c.primary.backend.Exists(ctx, k)
		if err != nil {
			c.backendError(ctx, "exists", c.primary.backend, key, err)
		} else if ok {
			return true
		}
	}

	ok, err := c.secondary.backend.Exists(ctx, k)
	if err != nil {
		c.backendError(ctx, "exists", c.secondary.backend, key, err)
		return false
	}
	return ok
}

// Keys lists caller keys (prefix stripped) matching pattern. The secondary is
// authoritative; the primary is only consulted when the secondary cannot enumerate.
func (c *Cache) Keys(ctx context.Context, pattern string) []string {
	tier := c.secondary
	if tier.keyLister == nil {
		tier = c.primary
	}
	if tier == nil || tier.keyLister == nil {
		c.logger.WarnContext(ctx, "no backend supports key enumeration",
			slog.String("pattern", pattern))
		return nil
	}

	keys, err := tier.keyLister.Keys(ctx, c.key(pattern))
	if err != nil {
		c.backendError(ctx, "keys", tier.backend, pattern, err)
		return nil
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, c.prefix) {
			out = append(out, k[len(c.prefix):])
		}
	}
	return out
}

// DeleteByPattern removes every key matching pattern from both tiers and returns
// the number of distinct keys removed. Best effort: failures are logged and skipped.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) int {
	prefixed := c.key(pattern)
	matched := make(map[string]struct{})

	for _, tier := range []*capabilities{c.primary, c.secondary} {
		if tier == nil || tier.keyLister == nil {
			continue
		}
		keys, err := tier.keyLister.Keys(ctx, prefixed)
		if err != nil {
			c.backendError(ctx, "keys", tier.backend, pattern, err)
			continue
		}
		for _, k := range keys {
			matched[k] = struct{}{}
		}
	}

	deleted := 0
	for k := range matched {
		removed := true
		for _, tier := range []*capabilities{c.primary, c.secondary} {
			if tier == nil {
				continue
			}
			if err := tier.backend.Delete(ctx, k); err != nil {
				c.backendError(ctx, "delete", tier.backend, k, err)
				removed = false
			}
		}
		if removed {
			deleted++
			c.stats.deletes.Add(1)
		}
	}
	return deleted
}

// Clear flushes both tiers. Maintenance only; task processing never calls it.
func (c *Cache) Clear(ctx context.Context) bool {
	if c.primary != nil {
		if err := c.primary.backend.Flush(ctx); err != nil {
			c.backendError(ctx, "flush", c.primary.backend, "*", err)
		}
	}
	if err := c.secondary.backend.Flush(ctx); err != nil {
		c.backendError(ctx, "flush", c.secondary.backend, "*", err)
		return false
	}
	return true
}

// Purge sweeps expired entries from backends that keep them until collected.
func (c *Cache) Purge(ctx context.Context) int {
	total := 0
	for _, tier := range []*capabilities{c.primary, c.secondary} {
		if tier == nil || tier.purger == nil {
			continue
		}
		n, err := tier.purger.PurgeExpired(ctx)
		if err != nil {
			c.backendError(ctx, "purge", tier.backend, "*", err)
			continue
		}
		total += n
	}
	return total
}

// Stats returns a snapshot of the engine counters.
func (c *Cache) Stats() Stats {
	return c.stats.snapshot()
}

// ResetStats zeroes every counter.
func (c *Cache) ResetStats() {
	c.stats.reset()
}

// Close releases both backends when they hold resources.
func (c *Cache) Close() error {
	var errs []error
	for _, tier := range []*capabilities{c.primary, c.secondary} {
		if tier == nil {
			continue
		}
		if closer, ok := tier.backend.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Cache) encode(ctx context.Context, key string, value any) ([]byte, bool) {
	data, compressed, err := c.codec.encode(value)
	if err != nil {
		c.stats.errors.Add(1)
		c.logger.WarnContext(ctx, "cache value cannot be encoded",
			logger.CacheKey(key), logger.Error(err))
		return nil, false
	}
	if compressed {
		c.stats.compressed.Add(1)
	}
	return data, true
}

func (c *Cache) invalidatePrimary(ctx context.Context, key, k string) {
	if c.primary == nil {
		return
	}
	if err := c.primary.backend.Delete(ctx, k); err != nil {
		c.backendError(ctx, "delete", c.primary.backend, key, err)
	}
}

func (c *Cache) backendError(ctx context.Context, op string, b Backend, key string, err error) {
	c.stats.errors.Add(1)
	c.logger.WarnContext(ctx, "cache backend operation failed",
		slog.String("op", op),
		logger.Backend(b.Name()),
		logger.CacheKey(key),
		logger.Error(err))
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

func (c *Cache) ttl(ttl time.Duration) time.Duration {
	switch {
	case ttl < 0:
		return 0
	case ttl == 0:
		return c.defaultTTL
	default:
		return ttl
	}
}
