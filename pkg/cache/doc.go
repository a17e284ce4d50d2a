// Package cache provides a tiered key/value engine: a fast primary backend in
// front of a durable, always-available secondary backend, presented as a single
// contract with transparent compression and hit/miss/latency instrumentation.
//
// # Backends
//
// Every storage tier implements the small Backend interface. Optional batch
// reads, key enumeration, atomic conditional writes and expiry sweeping are
// expressed as separate interfaces (MultiGetter, KeyLister, ConditionalSetter,
// Purger) and resolved once when the engine is built. MemoryBackend is an
// LRU-bounded in-memory implementation of all of them; network and disk
// backends live in the redis, pg, mongo, dynamo and pebble packages.
//
// # Tiering
//
//   - Reads check the primary, then the secondary; a secondary hit is copied
//     back into the primary.
//   - Writes must succeed on the secondary. The primary write is best-effort and
//     a failed primary write invalidates the primary copy.
//   - Without a primary the engine keeps the same contract on the secondary alone.
//
// Backend failures never escape the engine: they are logged, counted in Stats
// and reported as a miss or a false result.
//
// # Encoding
//
// Values are serialized as JSON. Payloads at or above the compression threshold
// are gzip-compressed and prefixed with CompressionMarker, so a reader can tell
// compressed and raw entries apart without extra metadata.
//
// # Usage
//
//	secondary := cache.NewMemoryBackend(0)
//	c, err := cache.New(secondary,
//		cache.WithPrimary(redisStorage),
//		cache.WithKeyPrefix("app_"),
//	)
//	if err != nil {
//		return err
//	}
//
//	c.Set(ctx, "user_42", user, time.Hour)
//	user = cache.GetAs(ctx, c, "user_42", User{})
//	removed := c.DeleteByPattern(ctx, "user_*")
package cache
