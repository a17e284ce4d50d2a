package cache

import "time"

// Config holds the environment-driven settings of the tiered cache engine
type Config struct {
	KeyPrefix            string        `env:"CACHE_KEY_PREFIX" envDefault:"te_"`
	CompressionThreshold int           `env:"CACHE_COMPRESSION_THRESHOLD" envDefault:"1024"`
	CompressionLevel     int           `env:"CACHE_COMPRESSION_LEVEL" envDefault:"6"`
	DefaultTTL           time.Duration `env:"CACHE_DEFAULT_TTL" envDefault:"1h"`
	RepopulateTTL        time.Duration `env:"CACHE_REPOPULATE_TTL" envDefault:"1m"`
}

// Options converts the configuration into engine options.
func (c Config) Options() []Option {
	return []Option{
		WithKeyPrefix(c.KeyPrefix),
		WithCompressionThreshold(c.CompressionThreshold),
		WithCompressionLevel(c.CompressionLevel),
		WithDefaultTTL(c.DefaultTTL),
		WithRepopulateTTL(c.RepopulateTTL),
	}
}
