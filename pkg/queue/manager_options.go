package queue

import (
	"log/slog"
	"time"
)

// ManagerOption is a functional option for configuring a Manager
type ManagerOption func(*managerOptions)

type managerOptions struct {
	config Config
	logger *slog.Logger
	clock  func() time.Time
	id     string
}

// WithConfig sets the manager configuration; zero fields fall back to defaults
func WithConfig(cfg Config) ManagerOption {
	return func(o *managerOptions) {
		o.config = cfg
	}
}

// WithLogger sets the logger for the manager
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) ManagerOption {
	return func(o *managerOptions) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithDispatcherID sets the identity written into queue leases
func WithDispatcherID(id string) ManagerOption {
	return func(o *managerOptions) {
		if id != "" {
			o.id = id
		}
	}
}

// DispatchOption tunes a single dispatch pass
type DispatchOption func(*dispatchOptions)

type dispatchOptions struct {
	batchLimit int
}

// WithBatchLimit caps the tasks claimed per queue in one pass
func WithBatchLimit(n int) DispatchOption {
	return func(o *dispatchOptions) {
		if n > 0 {
			o.batchLimit = n
		}
	}
}
