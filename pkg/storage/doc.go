// Package storage opens the primary and secondary cache backends named in
// configuration.
//
// The secondary backend (postgres, pebble, mongo, dynamo, redis or memory) is
// required; Open fails when it cannot be reached. The primary backend (redis,
// mongo, dynamo, memory or none) is optional: a connection failure is logged
// and the cache engine runs degraded on the secondary alone.
//
//	var cfg storage.Config
//	config.MustLoad(&cfg)
//	backends, err := storage.Open(ctx, cfg, storage.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	engine, err := cache.New(backends.Secondary, cache.WithPrimary(backends.Primary))
package storage
