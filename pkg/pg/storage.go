package pg

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/taskengine/pkg/cache"
)

const (
	queryGet = `SELECT value FROM cache_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`

	queryGetMulti = `SELECT key, value FROM cache_entries
		WHERE key = ANY($1) AND (expires_at IS NULL OR expires_at > $2)`

	queryUpsert = `INSERT INTO cache_entries (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`

	// Inserts, or takes over a row whose ttl has run out.
	queryInsertIfAbsent = `INSERT INTO cache_entries (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
		WHERE cache_entries.expires_at IS NOT NULL AND cache_entries.expires_at <= $4`

	queryTTL = `SELECT expires_at FROM cache_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`

	queryDelete = `DELETE FROM cache_entries WHERE key = $1`

	queryExists = `SELECT EXISTS (SELECT 1 FROM cache_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2))`

	queryKeys = `SELECT key FROM cache_entries
		WHERE key LIKE $1 AND (expires_at IS NULL OR expires_at > $2)`

	queryFlush = `DELETE FROM cache_entries`

	queryPurge = `DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`
)

// Storage is a durable cache backend over the cache_entries table.
// Expired rows are hidden from reads and removed by PurgeExpired.
type Storage struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStorage wraps a connection pool. The schema must be migrated with Migrate.
func NewStorage(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool, now: time.Now}
}

func (s *Storage) Name() string { return "postgres" }

func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, queryGet, key, s.now()).Scan(&value)
	if IsNotFoundError(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Storage) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, queryGetMulti, keys, s.now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}

func (s *Storage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.pool.Exec(ctx, queryUpsert, key, value, s.expiresAt(ttl))
	return err
}

func (s *Storage) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := s.now()
	tag, err := s.pool.Exec(ctx, queryInsertIfAbsent, key, value, s.expiresAt(ttl), now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// TTL reports the remaining lifetime of a live row. A NULL expiry means the
// row never expires.
func (s *Storage) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	now := s.now()
	var exp *time.Time
	err := s.pool.QueryRow(ctx, queryTTL, key, now).Scan(&exp)
	if IsNotFoundError(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if exp == nil {
		return 0, true, nil
	}
	return exp.Sub(now), true, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, queryDelete, key)
	return err
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, queryExists, key, s.now()).Scan(&ok)
	return ok, err
}

// Keys narrows rows by the literal prefix of pattern with LIKE and applies
// the full glob in Go.
func (s *Storage) Keys(ctx context.Context, pattern string) ([]string, error) {
	rows, err := s.pool.Query(ctx, queryKeys, likePrefix(cache.PatternPrefix(pattern)), s.now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if cache.MatchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	return keys, rows.Err()
}

func (s *Storage) Flush(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, queryFlush)
	return err
}

func (s *Storage) PurgeExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, queryPurge, s.now())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Close closes the underlying pool.
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) expiresAt(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := s.now().Add(ttl)
	return &t
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePrefix builds a LIKE pattern matching every string starting with prefix.
func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
