package queue

import (
	"log/slog"
	"time"
)

// DefaultQueueName is the queue recurring tasks go to unless WithTaskQueue is given
const DefaultQueueName = "default"

// SchedulerOption is a functional option for configuring a scheduler
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	checkInterval time.Duration
	logger        *slog.Logger
}

// WithCheckInterval sets how often scheduler checks for due tasks
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

// WithSchedulerLogger sets the logger for the scheduler
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// SchedulerTaskOption is a functional option for configuring a scheduled task
type SchedulerTaskOption func(*schedulerTaskOptions)

type schedulerTaskOptions struct {
	queue       string
	priority    *Priority
	maxAttempts *int
}

// WithTaskQueue sets the queue for the scheduled task
func WithTaskQueue(queue string) SchedulerTaskOption {
	return func(o *schedulerTaskOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithTaskPriority overrides the queue priority for the scheduled task
func WithTaskPriority(priority Priority) SchedulerTaskOption {
	return func(o *schedulerTaskOptions) {
		if priority.Valid() {
			o.priority = &priority
		}
	}
}

// WithTaskMaxAttempts overrides the queue attempt budget (0-10)
// Capped at 10 to prevent infinite retry loops on persistent failures
func WithTaskMaxAttempts(n int) SchedulerTaskOption {
	return func(o *schedulerTaskOptions) {
		if n >= 0 && n <= 10 {
			o.maxAttempts = &n
		}
	}
}
