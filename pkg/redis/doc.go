// Package redis connects to Redis with retries and exposes it as a cache backend.
//
// Connect parses a redis:// URL and pings the server until it is ready.
// Storage implements the cache backend contract with native TTLs, MGET batch
// reads, SET NX conditional writes and SCAN based key enumeration.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	primary := redis.NewStorageWithConfig(client, cfg)
//	engine, err := cache.New(secondary, cache.WithPrimary(primary))
//
// Healthcheck returns a probe function suitable for readiness checks.
package redis
