package cache

import (
	"log/slog"
	"time"
)

// Option is a functional option for configuring a Cache
type Option func(*options)

type options struct {
	primary       Backend
	keyPrefix     string
	threshold     int
	level         int
	defaultTTL    time.Duration
	repopulateTTL time.Duration
	logger        *slog.Logger
}

// WithPrimary sets the fast primary backend. A nil backend leaves the engine
// running on the secondary alone.
func WithPrimary(b Backend) Option {
	return func(o *options) {
		o.primary = b
	}
}

// WithKeyPrefix namespaces every key written through the engine
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithCompressionThreshold sets the serialized size at which values get compressed.
// A non-positive threshold disables compression.
func WithCompressionThreshold(n int) Option {
	return func(o *options) {
		o.threshold = n
	}
}

// WithCompressionLevel sets the gzip level (-2..9)
func WithCompressionLevel(level int) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithDefaultTTL is applied when Set is called with a zero ttl
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl >= 0 {
			o.defaultTTL = ttl
		}
	}
}

// WithRepopulateTTL bounds the lifetime of primary copies made from secondary
// hits when the secondary cannot report how long an entry has left.
func WithRepopulateTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.repopulateTTL = ttl
		}
	}
}

// WithLogger sets the logger used for backend failures
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
