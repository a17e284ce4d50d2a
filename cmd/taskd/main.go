package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/taskengine/pkg/cache"
	"github.com/dmitrymomot/taskengine/pkg/config"
	"github.com/dmitrymomot/taskengine/pkg/logger"
	"github.com/dmitrymomot/taskengine/pkg/queue"
	"github.com/dmitrymomot/taskengine/pkg/storage"
)

// daemonConfig holds the settings that belong to the binary itself.
type daemonConfig struct {
	EnvFiles       []string      `env:"TASKD_ENV_FILES" envSeparator:","`
	SystemQueue    string        `env:"TASKD_SYSTEM_QUEUE" envDefault:"system"`
	PurgeInterval  time.Duration `env:"TASKD_PURGE_INTERVAL" envDefault:"10m"`
	HealthInterval time.Duration `env:"TASKD_HEALTH_INTERVAL" envDefault:"30s"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var dcfg daemonConfig
	if err := config.Load(&dcfg); err != nil {
		return err
	}
	if len(dcfg.EnvFiles) > 0 {
		if err := config.LoadEnv(dcfg.EnvFiles...); err != nil {
			return err
		}
	}

	var (
		logCfg     logger.Config
		storageCfg storage.Config
		cacheCfg   cache.Config
		queueCfg   queue.Config
	)
	if err := errors.Join(
		config.Load(&logCfg),
		config.Load(&storageCfg),
		config.Load(&cacheCfg),
		config.Load(&queueCfg),
	); err != nil {
		return err
	}

	logOpts, err := logCfg.Options()
	if err != nil {
		return err
	}
	log := logger.New(logOpts...)
	logger.SetAsDefault(log)

	backends, err := storage.Open(ctx, storageCfg, storage.WithLogger(log))
	if err != nil {
		return err
	}

	c, err := cache.New(backends.Secondary, append(cacheCfg.Options(),
		cache.WithPrimary(backends.Primary),
		cache.WithLogger(log),
	)...)
	if err != nil {
		return errors.Join(err, backends.Close())
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error("failed to close cache", logger.Error(err))
		}
	}()

	m, err := queue.NewManager(c, queue.WithConfig(queueCfg), queue.WithLogger(log))
	if err != nil {
		return err
	}

	if queueCfg.DefinitionsFile != "" {
		defs, err := queue.LoadDefinitionsFile(queueCfg.DefinitionsFile)
		if err != nil {
			return err
		}
		if err := m.RegisterDefinitions(defs); err != nil {
			return err
		}
		log.InfoContext(ctx, "queue definitions loaded",
			slog.String("file", queueCfg.DefinitionsFile),
			slog.Int("queues", len(defs)))
	}

	if err := m.RegisterHandler(newLogHandler(log)); err != nil {
		return err
	}

	if err := m.RegisterQueue(dcfg.SystemQueue,
		queue.WithQueuePriority(queue.PriorityHigh),
		queue.WithMaxWorkers(1),
		queue.WithMaxRetries(0),
		queue.WithDeadLetter(false),
	); err != nil {
		return err
	}

	scheduler, err := queue.NewScheduler(m, queue.WithSchedulerLogger(log))
	if err != nil {
		return err
	}
	if err := scheduler.AddTask(newPurgeHandler(c, log), queue.EveryInterval(dcfg.PurgeInterval),
		queue.WithTaskQueue(dcfg.SystemQueue),
	); err != nil {
		return err
	}

	runner, err := queue.NewRunner(m, queue.WithRunnerLogger(log))
	if err != nil {
		return err
	}

	log.InfoContext(ctx, "taskd started",
		slog.String("dispatcher_id", m.ID()),
		slog.Any("queues", m.Queues()),
		slog.Bool("degraded", backends.Degraded()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(runner.Run(gctx))
	g.Go(scheduler.Run(gctx))
	g.Go(healthLoop(gctx, backends, dcfg.HealthInterval, log))

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("taskd stopped", slog.Any("stats", c.Stats()))
	return nil
}

// healthLoop pings the network backends and only logs failures; the cache
// already routes around an unhealthy primary.
func healthLoop(ctx context.Context, b *storage.Backends, interval time.Duration, log *slog.Logger) func() error {
	return func() error {
		if interval <= 0 {
			return nil
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, interval)
				err := b.Healthcheck(checkCtx)
				cancel()
				if err != nil && ctx.Err() == nil {
					log.WarnContext(ctx, "backend healthcheck failed", logger.Error(err))
				}
			}
		}
	}
}
