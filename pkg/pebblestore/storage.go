package pebblestore

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/dmitrymomot/taskengine/pkg/cache"
)

// headerSize is the length of the big-endian expiry (unix nanos, 0 = never)
// stored in front of every value.
const headerSize = 8

// Storage is an embedded, durable cache backend. Expired entries are hidden
// from reads and removed by PurgeExpired.
type Storage struct {
	db  *DB
	now func() time.Time
	// serializes conditional writes; Pebble has no compare-and-set
	mu sync.Mutex
}

func NewStorage(db *DB) *Storage {
	return &Storage{db: db, now: time.Now}
}

func (s *Storage) Name() string { return "pebble" }

func (s *Storage) Get(_ context.Context, key string) ([]byte, bool, error) {
	return s.read(key)
}

func (s *Storage) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, ok, err := s.read(key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = value
		}
	}
	return out, nil
}

func (s *Storage) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.Set([]byte(key), s.encode(value, ttl))
}

func (s *Storage) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok, err := s.read(key)
	if err != nil || ok {
		return false, err
	}
	if err := s.db.Set([]byte(key), s.encode(value, ttl)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	raw, ok, err := s.readRaw(key)
	if err != nil || !ok {
		return 0, false, err
	}
	deadline := int64(binary.BigEndian.Uint64(raw[:headerSize]))
	if deadline == 0 {
		return 0, true, nil
	}
	return time.Unix(0, deadline).Sub(s.now()), true, nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	return s.db.Delete([]byte(key))
}

func (s *Storage) Exists(_ context.Context, key string) (bool, error) {
	_, ok, err := s.read(key)
	return ok, err
}

// Keys iterates the literal prefix of pattern and applies the full glob.
func (s *Storage) Keys(_ context.Context, pattern string) ([]string, error) {
	var keys []string
	err := s.scan([]byte(cache.PatternPrefix(pattern)), func(key []byte, expired bool) error {
		if !expired && cache.MatchPattern(pattern, string(key)) {
			keys = append(keys, string(key))
		}
		return nil
	})
	return keys, err
}

func (s *Storage) Flush(_ context.Context) error {
	b := s.db.NewBatch()
	defer b.Close()
	err := s.scan(nil, func(key []byte, _ bool) error {
		return b.Delete(key, nil)
	})
	if err != nil {
		return err
	}
	return s.db.CommitBatch(b)
}

func (s *Storage) PurgeExpired(_ context.Context) (int, error) {
	b := s.db.NewBatch()
	defer b.Close()

	purged := 0
	err := s.scan(nil, func(key []byte, expired bool) error {
		if !expired {
			return nil
		}
		purged++
		return b.Delete(key, nil)
	})
	if err != nil {
		return 0, err
	}
	if purged == 0 {
		return 0, nil
	}
	if err := s.db.CommitBatch(b); err != nil {
		return 0, err
	}
	return purged, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) read(key string) ([]byte, bool, error) {
	raw, ok, err := s.readRaw(key)
	if err != nil || !ok {
		return nil, false, err
	}
	return raw[headerSize:], true, nil
}

// readRaw returns a live entry with its expiry header still attached.
func (s *Storage) readRaw(key string) ([]byte, bool, error) {
	raw, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(raw) < headerSize {
		return nil, false, ErrCorruptEntry
	}
	if s.expired(raw) {
		return nil, false, nil
	}
	return raw, true, nil
}

// scan visits every key under prefix. The key slice is only valid during fn.
func (s *Storage) scan(prefix []byte, fn func(key []byte, expired bool) error) error {
	iter, err := s.db.NewPrefixIter(prefix)
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		value := iter.Value()
		expired := len(value) >= headerSize && s.expired(value)
		if err := fn(append([]byte(nil), iter.Key()...), expired); err != nil {
			_ = iter.Close()
			return err
		}
	}
	return iter.Close()
}

func (s *Storage) encode(value []byte, ttl time.Duration) []byte {
	buf := make([]byte, headerSize+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf, uint64(s.now().Add(ttl).UnixNano()))
	}
	copy(buf[headerSize:], value)
	return buf
}

func (s *Storage) expired(raw []byte) bool {
	deadline := int64(binary.BigEndian.Uint64(raw[:headerSize]))
	return deadline != 0 && s.now().UnixNano() >= deadline
}
