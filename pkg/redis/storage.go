package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage is a byte-oriented key/value backend on top of a Redis client.
// Expiry is delegated to Redis, so there is nothing to purge.
type Storage struct {
	db            redis.UniversalClient
	scanBatchSize int64
}

// NewStorage wraps a Redis client. SCAN walks 1000 keys per round trip.
func NewStorage(client redis.UniversalClient) *Storage {
	return &Storage{db: client, scanBatchSize: 1000}
}

// NewStorageWithConfig wraps a Redis client using the scan batch size from cfg.
func NewStorageWithConfig(client redis.UniversalClient, cfg Config) *Storage {
	s := NewStorage(client)
	if cfg.ScanBatchSize > 0 {
		s.scanBatchSize = int64(cfg.ScanBatchSize)
	}
	return s
}

func (s *Storage) Name() string { return "redis" }

func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// GetMulti reads all keys with a single MGET.
func (s *Storage) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := s.db.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[keys[i]] = []byte(str)
		}
	}
	return out, nil
}

// Set stores key with ttl. A non-positive ttl keeps the key forever.
func (s *Storage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.Set(ctx, key, value, max(ttl, 0)).Err()
}

// SetNX stores key only when it does not exist yet.
func (s *Storage) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.db.SetNX(ctx, key, value, max(ttl, 0)).Result()
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.db.Del(ctx, key).Err()
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.db.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TTL reads the remaining lifetime with PTTL, which answers -2 for a missing
// key and -1 for a key without expiry.
func (s *Storage) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := s.db.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	switch d {
	case -2:
		return 0, false, nil
	case -1:
		return 0, true, nil
	}
	return d, true, nil
}

// Keys walks the keyspace with SCAN MATCH so Redis is never blocked.
func (s *Storage) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.db.Scan(ctx, cursor, pattern, s.scanBatchSize).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}
	return keys, nil
}

// Flush clears the whole logical database with FLUSHDB.
func (s *Storage) Flush(ctx context.Context) error {
	return s.db.FlushDB(ctx).Err()
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Conn returns the underlying client.
func (s *Storage) Conn() redis.UniversalClient {
	return s.db
}
