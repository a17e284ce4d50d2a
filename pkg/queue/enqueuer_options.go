package queue

import "time"

// TaskOption is a functional option for AddTask and AddBatchTasks
type TaskOption func(*taskOptions)

type taskOptions struct {
	priority    *Priority
	delay       time.Duration
	scheduledAt *time.Time
	maxAttempts *int
	timeout     time.Duration
}

// WithPriority overrides the priority inherited from the queue
func WithPriority(priority Priority) TaskOption {
	return func(o *taskOptions) {
		o.priority = &priority
	}
}

// WithDelay sets a delay before the task can be processed
func WithDelay(delay time.Duration) TaskOption {
	return func(o *taskOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithScheduledAt sets a specific time for the task to be processed.
// It takes precedence over WithDelay.
func WithScheduledAt(scheduledAt time.Time) TaskOption {
	return func(o *taskOptions) {
		o.scheduledAt = &scheduledAt
	}
}

// WithMaxAttempts overrides the attempt budget inherited from the queue
func WithMaxAttempts(n int) TaskOption {
	return func(o *taskOptions) {
		if n >= 0 {
			o.maxAttempts = &n
		}
	}
}

// WithTimeout overrides the execution timeout inherited from the queue
func WithTimeout(d time.Duration) TaskOption {
	return func(o *taskOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}
