// Package logger builds slog loggers with functional options, consistent
// attribute helpers and context-driven attribute injection.
//
// New returns a *slog.Logger backed by a text or JSON handler and wrapped in a
// ContextHandler, which runs the registered ContextExtractor callbacks on every
// record. Attribute helpers such as Queue, TaskID, Attempt, CacheKey and Error
// keep field names uniform across the task engine.
//
// # Usage
//
//	var cfg logger.Config
//	config.MustLoad(&cfg)
//	opts, err := cfg.Options()
//	if err != nil {
//	    panic(err)
//	}
//	log := logger.New(opts...)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "task completed",
//	    logger.Queue("emails"),
//	    logger.TaskID(task.ID),
//	    logger.Duration(time.Since(start)),
//	)
//
// Error and Errors return an empty attribute for nil errors so they can be
// passed unconditionally.
package logger
