// Package requestlog persists per-attempt request log entries so operators
// can audit provider behaviour after the fact. Entries are written
// best-effort; a log failure never fails the request that produced it.
package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

// Entry records one provider attempt or request outcome.
type Entry struct {
	RequestID  string    `json:"request_id"`
	Feature    string    `json:"feature"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Outcome    string    `json:"outcome"` // "success", "error", "cached", "degraded"
	ErrorCode  string    `json:"error_code,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Writer persists request log entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// Reader lists recent request log entries.
type Reader interface {
	List(ctx context.Context, limit int) ([]Entry, error)
}

// NoopWriter ignores all log writes.
type NoopWriter struct{}

// Write implements Writer by doing nothing.
func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// SQLStore persists entries to SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLiteStore creates a SQLite-backed request log.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "legalai-requests.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite request log: %w", err)
	}
	s := &SQLStore{db: db, dialect: "sqlite"}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore creates a Postgres-backed request log.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres request log: %w", err)
	}
	s := &SQLStore{db: db, dialect: "postgres"}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s request log: %w", s.dialect, err)
	}

	timestampType := "DATETIME"
	idColumn := "id INTEGER PRIMARY KEY"
	if s.dialect == "postgres" {
		timestampType = "TIMESTAMPTZ"
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS request_logs (
	%s,
	request_id TEXT,
	feature TEXT NOT NULL,
	provider TEXT,
	model TEXT,
	outcome TEXT NOT NULL,
	error_code TEXT,
	duration_ms INTEGER NOT NULL,
	created_at %s NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_request_logs_created_at ON request_logs(created_at);`, idColumn, timestampType)

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize %s request log schema: %w", s.dialect, err)
	}
	return nil
}

// Write appends an entry to the log.
func (s *SQLStore) Write(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	q := s.bind(`
INSERT INTO request_logs(request_id, feature, provider, model, outcome, error_code, duration_ms, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, e.RequestID, e.Feature, e.Provider, e.Model, e.Outcome, e.ErrorCode, e.DurationMs, e.CreatedAt); err != nil {
		return fmt.Errorf("write request log: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (s *SQLStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := s.bind(`
SELECT request_id, feature, provider, model, outcome, error_code, duration_ms, created_at
FROM request_logs ORDER BY created_at DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list request log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RequestID, &e.Feature, &e.Provider, &e.Model, &e.Outcome, &e.ErrorCode, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan request log row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) bind(query string) string {
	if s.dialect != "postgres" {
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
