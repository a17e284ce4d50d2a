package pebblestore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
)

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	// FsyncModeInterval lets Pebble group WAL syncs within FsyncInterval.
	FsyncModeInterval FsyncMode = iota
	// FsyncModeAlways syncs the WAL on every committed batch.
	FsyncModeAlways
	// FsyncModeNever leaves WAL syncing entirely to Pebble.
	FsyncModeNever
)

// ParseFsyncMode converts "interval", "always" or "never" to a FsyncMode.
func ParseFsyncMode(s string) (FsyncMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "interval":
		return FsyncModeInterval, nil
	case "always":
		return FsyncModeAlways, nil
	case "never":
		return FsyncModeNever, nil
	default:
		return FsyncModeInterval, fmt.Errorf("%w: %q", ErrInvalidFsyncMode, s)
	}
}

// Config holds the environment-driven settings of the embedded store.
type Config struct {
	DataDir       string        `env:"PEBBLE_DIR" envDefault:"data/cache"`
	Fsync         string        `env:"PEBBLE_FSYNC" envDefault:"interval"`
	FsyncInterval time.Duration `env:"PEBBLE_FSYNC_INTERVAL" envDefault:"5ms"`
}

// Options converts the configuration into Open options.
func (c Config) Options() (Options, error) {
	mode, err := ParseFsyncMode(c.Fsync)
	if err != nil {
		return Options{}, err
	}
	return Options{DataDir: c.DataDir, Fsync: mode, FsyncInterval: c.FsyncInterval}, nil
}

// Options configures the Pebble wrapper.
type Options struct {
	DataDir       string
	Fsync         FsyncMode
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning. Nil means Pebble defaults.
	PebbleOptions *pebble.Options
}

// DB wraps a Pebble database and applies the fsync policy to every write.
type DB struct {
	inner     *pebble.DB
	writeSync bool
}

// Open creates or opens a Pebble database.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, ErrDataDirRequired
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}

	if opts.Fsync == FsyncModeInterval {
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, errors.Join(ErrOpen, err)
	}

	return &DB{inner: inner, writeSync: opts.Fsync == FsyncModeAlways}, nil
}

func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// Get copies the value for key. Missing keys return pebble.ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (db *DB) NewBatch() *pebble.Batch {
	return db.inner.NewBatch()
}

// CommitBatch commits b with the configured fsync policy.
func (db *DB) CommitBatch(b *pebble.Batch) error {
	if b == nil {
		return ErrNilBatch
	}
	opts := pebble.NoSync
	if db.writeSync {
		opts = pebble.Sync
	}
	return b.Commit(opts)
}

func (db *DB) Set(key, value []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	return db.CommitBatch(b)
}

func (db *DB) Delete(key []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return err
	}
	return db.CommitBatch(b)
}

// NewPrefixIter iterates over every key starting with prefix.
func (db *DB) NewPrefixIter(prefix []byte) (*pebble.Iterator, error) {
	opts := &pebble.IterOptions{}
	if len(prefix) > 0 {
		opts.LowerBound = prefix
		opts.UpperBound = prefixUpperBound(prefix)
	}
	return db.inner.NewIter(opts)
}

// prefixUpperBound returns the smallest key greater than every key with prefix,
// or nil when no such key exists (prefix of all 0xff bytes).
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
