// Package pg connects to PostgreSQL with pgx/v5 and provides a durable cache backend.
//
// Connect opens a pgxpool.Pool with retries. Migrate applies the embedded goose
// migrations that create the cache_entries table. Storage implements the cache
// backend contract on that table: upserts for writes, INSERT ... ON CONFLICT
// for conditional writes and expires_at filtering for ttl handling. Expired
// rows linger until PurgeExpired removes them.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//	    return err
//	}
//	secondary := pg.NewStorage(pool)
package pg
