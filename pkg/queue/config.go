package queue

import "time"

// Config holds the configuration for the queue manager and its runner
type Config struct {
	TickInterval        time.Duration `env:"QUEUE_TICK_INTERVAL" envDefault:"60s"`
	PersistentWorker    bool          `env:"QUEUE_PERSISTENT_WORKER" envDefault:"false"`
	PersistentInterval  time.Duration `env:"QUEUE_PERSISTENT_INTERVAL" envDefault:"10s"`
	PersistentBatchSize int           `env:"QUEUE_PERSISTENT_BATCH_SIZE" envDefault:"5"`
	MaxWorkers          int           `env:"QUEUE_MAX_WORKERS" envDefault:"3"`
	MaxTasksPerWorker   int           `env:"QUEUE_MAX_TASKS_PER_WORKER" envDefault:"10"`
	LeaseTTL            time.Duration `env:"QUEUE_LEASE_TTL" envDefault:"5m"`
	CompletedRetention  time.Duration `env:"QUEUE_COMPLETED_RETENTION" envDefault:"1h"`
	RetryInitialDelay   time.Duration `env:"QUEUE_RETRY_INITIAL_DELAY" envDefault:"60s"`
	RetryMultiplier     float64       `env:"QUEUE_RETRY_MULTIPLIER" envDefault:"2"`
	RetryMaxDelay       time.Duration `env:"QUEUE_RETRY_MAX_DELAY" envDefault:"1h"`
	DefinitionsFile     string        `env:"QUEUE_DEFINITIONS_FILE"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		TickInterval:        time.Minute,
		PersistentInterval:  10 * time.Second,
		PersistentBatchSize: 5,
		MaxWorkers:          3,
		MaxTasksPerWorker:   10,
		LeaseTTL:            5 * time.Minute,
		CompletedRetention:  time.Hour,
		RetryInitialDelay:   time.Minute,
		RetryMultiplier:     2,
		RetryMaxDelay:       time.Hour,
	}
}

// RetryPolicy returns the default retry policy derived from the configuration.
func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: c.RetryInitialDelay,
		Multiplier:   c.RetryMultiplier,
		MaxDelay:     c.RetryMaxDelay,
	}
}

// normalize fills zero or invalid fields with defaults.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.PersistentInterval <= 0 {
		c.PersistentInterval = d.PersistentInterval
	}
	if c.PersistentBatchSize <= 0 {
		c.PersistentBatchSize = d.PersistentBatchSize
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = d.MaxWorkers
	}
	if c.MaxTasksPerWorker <= 0 {
		c.MaxTasksPerWorker = d.MaxTasksPerWorker
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = d.LeaseTTL
	}
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = d.CompletedRetention
	}
	if c.RetryInitialDelay <= 0 {
		c.RetryInitialDelay = d.RetryInitialDelay
	}
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = d.RetryMultiplier
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	return c
}
