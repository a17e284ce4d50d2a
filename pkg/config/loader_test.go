package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskengine/pkg/config"
)

type workerConfig struct {
	Interval time.Duration `env:"TEST_WORKER_INTERVAL" envDefault:"10s"`
	Workers  int           `env:"TEST_WORKER_COUNT" envDefault:"3"`
	Enabled  bool          `env:"TEST_WORKER_ENABLED" envDefault:"false"`
}

type cachedConfig struct {
	Prefix string `env:"TEST_CACHED_PREFIX" envDefault:"te_"`
}

type reloadConfig struct {
	Name string `env:"TEST_RELOAD_NAME"`
}

type requiredConfig struct {
	URL string `env:"TEST_REQUIRED_URL,required"`
}

type fileConfig struct {
	Queue  string   `env:"TEST_FILE_QUEUE"`
	Tags   []string `env:"TEST_FILE_TAGS" envSeparator:","`
	Region string   `env:"TEST_FILE_REGION"`
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("parses values", func(t *testing.T) {
		t.Setenv("TEST_WORKER_INTERVAL", "250ms")
		t.Setenv("TEST_WORKER_COUNT", "8")
		t.Setenv("TEST_WORKER_ENABLED", "true")

		var cfg workerConfig
		require.NoError(t, config.Reload(&cfg))
		assert.Equal(t, 250*time.Millisecond, cfg.Interval)
		assert.Equal(t, 8, cfg.Workers)
		assert.True(t, cfg.Enabled)
	})

	t.Run("caches per type", func(t *testing.T) {
		t.Setenv("TEST_CACHED_PREFIX", "first_")
		var first cachedConfig
		require.NoError(t, config.Reload(&first))

		t.Setenv("TEST_CACHED_PREFIX", "second_")
		var second cachedConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, "first_", second.Prefix)

		require.NoError(t, config.Reload(&second))
		assert.Equal(t, "second_", second.Prefix)
	})

	t.Run("missing required", func(t *testing.T) {
		os.Unsetenv("TEST_REQUIRED_URL")
		var cfg requiredConfig
		err := config.Load(&cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)

		assert.Panics(t, func() { config.MustLoad(&cfg) })
	})

	t.Run("nil pointer", func(t *testing.T) {
		var cfg *workerConfig
		assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})

	t.Run("non struct", func(t *testing.T) {
		var n int
		assert.ErrorIs(t, config.Load(&n), config.ErrInvalidConfigType)
	})
}

func TestLoadEnv(t *testing.T) {
	base := writeEnvFile(t, "TEST_FILE_QUEUE=emails\nTEST_FILE_TAGS=a,b,c\nTEST_FILE_REGION=\"us-east-1\"\n")
	override := writeEnvFile(t, "TEST_FILE_QUEUE=reports\n")

	t.Cleanup(func() {
		os.Unsetenv("TEST_FILE_QUEUE")
		os.Unsetenv("TEST_FILE_TAGS")
		os.Unsetenv("TEST_FILE_REGION")
	})

	require.NoError(t, config.LoadEnv(base, override))
	config.ResetCache()

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "reports", cfg.Queue)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Tags)
	assert.Equal(t, "us-east-1", cfg.Region)

	err := config.LoadEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, config.ErrLoadingEnvFile)

	assert.NoError(t, config.LoadEnv())
}
