package cache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"

	"github.com/maplecourt/legalai/internal/logging"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

// SQLStore is the durable cache tier, backed by SQLite or Postgres. It keeps
// last-accessed timestamps and access counts for observability, and upserts
// by key so concurrent writers for the same prompt do not need transactions
// (last write wins).
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
	ttl     time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewSQLiteStore creates a SQLite-backed response cache.
// dsn can be a file path (e.g. /var/lib/legalai/cache.db) or a SQLite DSN.
func NewSQLiteStore(dsn string, ttl time.Duration) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "legalai-cache.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	store := &SQLStore{db: db, dialect: dialectSQLite, ttl: ttl}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore creates a Postgres-backed response cache.
func NewPostgresStore(dsn string, ttl time.Duration) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres cache: %w", err)
	}
	store := &SQLStore{db: db, dialect: dialectPostgres, ttl: ttl}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) init() error {
	if s.ttl <= 0 {
		s.ttl = DefaultPersistentTTL
	}
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s cache: %w", s.dialect, err)
	}

	var ddl string
	switch s.dialect {
	case dialectPostgres:
		ddl = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	prompt TEXT NOT NULL,
	response TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	last_accessed TIMESTAMPTZ NOT NULL,
	access_count INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_created_at ON cache_entries(created_at);`
	default:
		ddl = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	prompt TEXT NOT NULL,
	response TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	last_accessed DATETIME NOT NULL,
	access_count INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_created_at ON cache_entries(created_at);`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize %s cache schema: %w", s.dialect, err)
	}
	return nil
}

// Get returns the cached response for key. Expired entries are treated as
// absent and left in place for the sweep (or the next Set) to remove. A hit
// refreshes last_accessed and increments access_count.
func (s *SQLStore) Get(ctx context.Context, key string) (string, bool) {
	q := s.bind(`SELECT response, created_at, ttl_seconds FROM cache_entries WHERE cache_key = ?`)

	var response string
	var createdAt time.Time
	var ttlSeconds int64
	err := s.db.QueryRowContext(ctx, q, key).Scan(&response, &createdAt, &ttlSeconds)
	if err != nil {
		s.misses.Add(1)
		return "", false
	}

	if time.Since(createdAt) > time.Duration(ttlSeconds)*time.Second {
		s.misses.Add(1)
		return "", false
	}

	touch := s.bind(`UPDATE cache_entries SET last_accessed = ?, access_count = access_count + 1 WHERE cache_key = ?`)
	if _, err := s.db.ExecContext(ctx, touch, time.Now().UTC(), key); err != nil {
		logging.Logger.Warn("cache access bookkeeping failed", "error", err.Error())
	}

	s.hits.Add(1)
	return response, true
}

// Set upserts an entry with the store's default TTL.
func (s *SQLStore) Set(ctx context.Context, key, model, prompt, response string) error {
	return s.SetWithTTL(ctx, key, model, prompt, response, s.ttl)
}

// SetWithTTL upserts an entry with an explicit TTL. A replaced entry has its
// response, timestamps, and access count reset, matching a fresh write.
func (s *SQLStore) SetWithTTL(ctx context.Context, key, model, prompt, response string, ttl time.Duration) error {
	now := time.Now().UTC()
	q := s.bind(`
INSERT INTO cache_entries(cache_key, model, prompt, response, created_at, last_accessed, access_count, ttl_seconds)
VALUES(?, ?, ?, ?, ?, ?, 1, ?)
ON CONFLICT(cache_key) DO UPDATE SET
	model = excluded.model,
	prompt = excluded.prompt,
	response = excluded.response,
	created_at = excluded.created_at,
	last_accessed = excluded.last_accessed,
	access_count = 1,
	ttl_seconds = excluded.ttl_seconds`)

	if _, err := s.db.ExecContext(ctx, q, key, model, prompt, response, now, now, int64(ttl.Seconds())); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// CleanExpired deletes all entries past their TTL.
func (s *SQLStore) CleanExpired(ctx context.Context) (int, error) {
	var q string
	switch s.dialect {
	case dialectPostgres:
		q = `DELETE FROM cache_entries WHERE created_at + make_interval(secs => ttl_seconds) < now()`
	default:
		q = `DELETE FROM cache_entries WHERE (julianday('now') - julianday(created_at)) * 86400 > ttl_seconds`
	}
	res, err := s.db.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("cache clean: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Clear removes all entries.
func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Stats reports entry count and hit/miss counters.
func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return Stats{
		Entries: count,
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}, nil
}

// StartSweep runs CleanExpired on the given interval until ctx is cancelled.
func (s *SQLStore) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.CleanExpired(ctx)
				if err != nil {
					logging.Logger.Error("cache sweep failed", "error", err.Error())
					continue
				}
				if n > 0 {
					logging.Logger.Info("cache sweep completed", "removed", n)
				}
			}
		}
	}()
}

// Close releases the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// bind rewrites ? placeholders to $N for Postgres.
func (s *SQLStore) bind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var (
		b      strings.Builder
		argNum = 1
	)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", argNum)
			argNum++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
