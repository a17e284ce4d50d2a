package queue

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/taskengine/pkg/logger"
)

// Runner drives a Manager on a fixed tick. Each tick runs one bounded dispatch
// pass; failures are logged and the next tick proceeds independently.
type Runner struct {
	manager            *Manager
	tickInterval       time.Duration
	persistent         bool
	persistentInterval time.Duration
	persistentBatch    int
	logger             *slog.Logger
	running            atomic.Bool
}

// RunnerOption is a functional option for configuring a Runner
type RunnerOption func(*Runner)

// WithTickInterval sets how often the full dispatch pass runs
func WithTickInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.tickInterval = d
		}
	}
}

// WithPersistentWorker enables an extra, faster loop draining at most batch
// tasks per queue on every interval
func WithPersistentWorker(interval time.Duration, batch int) RunnerOption {
	return func(r *Runner) {
		if interval > 0 && batch > 0 {
			r.persistent = true
			r.persistentInterval = interval
			r.persistentBatch = batch
		}
	}
}

// WithRunnerLogger sets the logger for the runner
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a runner with intervals taken from the manager configuration.
func NewRunner(m *Manager, opts ...RunnerOption) (*Runner, error) {
	if m == nil {
		return nil, ErrManagerNil
	}

	cfg := m.Config()
	r := &Runner{
		manager:            m,
		tickInterval:       cfg.TickInterval,
		persistent:         cfg.PersistentWorker,
		persistentInterval: cfg.PersistentInterval,
		persistentBatch:    cfg.PersistentBatchSize,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("queue_runner"))
	return r, nil
}

// Start blocks running dispatch passes until ctx is cancelled. The in-flight pass
// is allowed to finish.
func (r *Runner) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunnerStarted
	}
	defer r.running.Store(false)

	r.logger.InfoContext(ctx, "runner started",
		slog.Duration("tick_interval", r.tickInterval),
		slog.Bool("persistent_worker", r.persistent))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.loop(gctx, r.tickInterval)
		return nil
	})
	if r.persistent {
		g.Go(func() error {
			r.loop(gctx, r.persistentInterval, WithBatchLimit(r.persistentBatch))
			return nil
		})
	}
	err := g.Wait()

	r.logger.Info("runner stopped")
	return err
}

// Run returns a function suitable for errgroup
func (r *Runner) Run(ctx context.Context) func() error {
	return func() error {
		return r.Start(ctx)
	}
}

func (r *Runner) loop(ctx context.Context, interval time.Duration, opts ...DispatchOption) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.tick(ctx, opts...)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx, opts...)
		}
	}
}

func (r *Runner) tick(ctx context.Context, opts ...DispatchOption) {
	sum := r.manager.DispatchAll(ctx, opts...)
	if len(sum.Errors) > 0 && ctx.Err() == nil {
		r.logger.ErrorContext(ctx, "dispatch pass finished with errors",
			slog.Int("claimed", sum.Claimed),
			logger.Errors(sum.Errors...))
		return
	}
	if sum.Claimed == 0 && sum.Recovered == 0 {
		r.logger.DebugContext(ctx, "idle tick", slog.Int("queues", sum.Queues))
		return
	}
	r.logger.InfoContext(ctx, "dispatch pass finished",
		slog.Int("claimed", sum.Claimed),
		slog.Int("succeeded", sum.Succeeded),
		slog.Int("retried", sum.Retried),
		slog.Int("failed", sum.Failed),
		slog.Int("dead_lettered", sum.DeadLettered),
		slog.Int("recovered", sum.Recovered),
		slog.Int("skipped", sum.Skipped))
}
