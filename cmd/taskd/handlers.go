package main

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/taskengine/pkg/cache"
	"github.com/dmitrymomot/taskengine/pkg/logger"
	"github.com/dmitrymomot/taskengine/pkg/queue"
)

// logPayload is the payload accepted by the built-in "log" handler.
type logPayload struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// newLogHandler writes the payload to the daemon log. It is handy for smoke
// testing a deployment without any application handlers.
func newLogHandler(log *slog.Logger) queue.Handler {
	log = log.With(logger.Component("log_handler"))
	return queue.NewNamedHandler("log", func(ctx context.Context, p logPayload) error {
		lvl, err := logger.ParseLevel(p.Level)
		if err != nil {
			lvl = slog.LevelInfo
		}

		attrs := make([]slog.Attr, 0, len(p.Fields)+1)
		if t, ok := queue.TaskFromContext(ctx); ok {
			attrs = append(attrs, logger.TaskID(t.ID))
		}
		for k, v := range p.Fields {
			attrs = append(attrs, slog.Any(k, v))
		}
		log.LogAttrs(ctx, lvl, p.Message, attrs...)
		return nil
	})
}

// newPurgeHandler drops expired entries from both cache tiers.
func newPurgeHandler(c *cache.Cache, log *slog.Logger) queue.Handler {
	return queue.NewPeriodicTaskHandler("cache.purge", func(ctx context.Context) error {
		n := c.Purge(ctx)
		log.DebugContext(ctx, "expired cache entries purged",
			logger.Component("cache_purge"), slog.Int("removed", n))
		return nil
	})
}
