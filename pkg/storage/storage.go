package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/dmitrymomot/taskengine/pkg/cache"
	"github.com/dmitrymomot/taskengine/pkg/dynamo"
	"github.com/dmitrymomot/taskengine/pkg/logger"
	"github.com/dmitrymomot/taskengine/pkg/mongo"
	"github.com/dmitrymomot/taskengine/pkg/pebblestore"
	"github.com/dmitrymomot/taskengine/pkg/pg"
	"github.com/dmitrymomot/taskengine/pkg/redis"
)

// Backends holds the opened cache tiers. Primary is nil in degraded mode.
type Backends struct {
	Primary   cache.Backend
	Secondary cache.Backend

	checks map[string]func(context.Context) error
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger for connection and migration output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Open connects the configured backends. The secondary is mandatory and any
// failure to open it is returned. A primary that cannot be reached is dropped
// with a warning and the cache runs on the secondary alone.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Backends, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	log := o.logger.With(logger.Component("storage"))

	if cfg.Primary == "" {
		cfg.Primary = KindNone
	}
	if !slices.Contains(primaryKinds, cfg.Primary) {
		return nil, fmt.Errorf("%w: primary %q", ErrUnknownKind, cfg.Primary)
	}
	if !slices.Contains(secondaryKinds, cfg.Secondary) {
		return nil, fmt.Errorf("%w: secondary %q", ErrUnknownKind, cfg.Secondary)
	}
	if cfg.Primary == cfg.Secondary && cfg.Primary != KindMemory {
		return nil, fmt.Errorf("%w: %s", ErrSameBackend, cfg.Primary)
	}

	b := &Backends{checks: make(map[string]func(context.Context) error)}

	secondary, check, err := open(ctx, cfg.Secondary, cfg, log)
	if err != nil {
		return nil, errors.Join(ErrSecondaryUnavailable, err)
	}
	b.Secondary = secondary
	if check != nil {
		b.checks[secondary.Name()] = check
	}
	log.InfoContext(ctx, "secondary cache backend ready", logger.Backend(secondary.Name()))

	if cfg.Primary == KindNone {
		return b, nil
	}

	primary, check, err := open(ctx, cfg.Primary, cfg, log)
	if err != nil {
		log.WarnContext(ctx, "primary cache backend unavailable, running degraded",
			logger.Backend(string(cfg.Primary)), logger.Error(err))
		return b, nil
	}
	b.Primary = primary
	if check != nil {
		b.checks[primary.Name()] = check
	}
	log.InfoContext(ctx, "primary cache backend ready", logger.Backend(primary.Name()))

	return b, nil
}

func open(ctx context.Context, kind Kind, cfg Config, log *slog.Logger) (cache.Backend, func(context.Context) error, error) {
	switch kind {
	case KindMemory:
		return cache.NewMemoryBackend(cfg.MemoryCapacity), nil, nil

	case KindRedis:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return redis.NewStorageWithConfig(client, cfg.Redis), redis.Healthcheck(client), nil

	case KindPostgres:
		pool, err := pg.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Postgres.AutoMigrate {
			if err := pg.Migrate(ctx, pool, cfg.Postgres, log); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return pg.NewStorage(pool), pg.Healthcheck(pool), nil

	case KindPebble:
		popts, err := cfg.Pebble.Options()
		if err != nil {
			return nil, nil, err
		}
		db, err := pebblestore.Open(popts)
		if err != nil {
			return nil, nil, err
		}
		return pebblestore.NewStorage(db), nil, nil

	case KindMongo:
		client, err := mongo.New(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		store := mongo.NewStorage(client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection))
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return store, mongo.Healthcheck(client), nil

	case KindDynamo:
		client, err := dynamo.New(ctx, cfg.Dynamo)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Dynamo.CreateTable {
			if err := dynamo.EnsureTable(ctx, client, cfg.Dynamo); err != nil {
				return nil, nil, err
			}
		}
		return dynamo.NewStorage(client, cfg.Dynamo.Table), dynamo.Healthcheck(client, cfg.Dynamo.Table), nil
	}

	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Degraded reports whether the primary tier is missing.
func (b *Backends) Degraded() bool {
	return b.Primary == nil
}

// Healthcheck pings every network backend and joins the failures.
func (b *Backends) Healthcheck(ctx context.Context) error {
	var errs []error
	for name, check := range b.checks {
		if err := check(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrHealthcheckFailed}, errs...)...)
	}
	return nil
}

// Close releases both tiers. Use it only when the backends were not handed to
// a cache.Cache, whose Close already releases them.
func (b *Backends) Close() error {
	var errs []error
	for _, backend := range []cache.Backend{b.Primary, b.Secondary} {
		if closer, ok := backend.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
