package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, ttl time.Duration) *SQLStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "cache.db")
	store, err := NewSQLiteStore(dsn, ttl)
	if err != nil {
		t.Fatalf("NewSQLiteStore() returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLStore_ImplementsStore(_ *testing.T) {
	var _ Store = (*SQLStore)(nil)
}

func TestSQLStore_SetAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, time.Hour)

	if err := store.Set(ctx, "k1", "gpt-4o", "what is a tort", "a civil wrong"); err != nil {
		t.Fatalf("Set() returned error: %v", err)
	}
	got, ok := store.Get(ctx, "k1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != "a civil wrong" {
		t.Errorf("Get() = %q", got)
	}
}

func TestSQLStore_Miss(t *testing.T) {
	store := newTestStore(t, time.Hour)
	if _, ok := store.Get(context.Background(), "absent"); ok {
		t.Error("expected cache miss")
	}
}

func TestSQLStore_TTLExpiration(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, time.Hour)

	_ = store.SetWithTTL(ctx, "fast", "m", "p", "r", time.Second)

	// Backdate the entry instead of sleeping.
	if _, err := store.db.ExecContext(ctx,
		`UPDATE cache_entries SET created_at = ? WHERE cache_key = ?`,
		time.Now().UTC().Add(-time.Minute), "fast"); err != nil {
		t.Fatalf("backdating entry: %v", err)
	}

	if _, ok := store.Get(ctx, "fast"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestSQLStore_Upsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, time.Hour)

	_ = store.Set(ctx, "k", "m", "p", "first")
	_ = store.Set(ctx, "k", "m", "p", "second")

	got, ok := store.Get(ctx, "k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != "second" {
		t.Errorf("Get() = %q, want %q", got, "second")
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() returned error: %v", err)
	}
	if stats.Entries != 1 {
		t.Errorf("Entries = %d, want 1 after upsert", stats.Entries)
	}
}

func TestSQLStore_AccessCount(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, time.Hour)

	_ = store.Set(ctx, "k", "m", "p", "r")
	store.Get(ctx, "k")
	store.Get(ctx, "k")

	var count int64
	if err := store.db.QueryRowContext(ctx,
		`SELECT access_count FROM cache_entries WHERE cache_key = ?`, "k").Scan(&count); err != nil {
		t.Fatalf("reading access_count: %v", err)
	}
	// 1 from the insert plus one per hit.
	if count != 3 {
		t.Errorf("access_count = %d, want 3", count)
	}
}

func TestSQLStore_CleanExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, time.Hour)

	_ = store.Set(ctx, "fresh", "m", "p", "r")
	_ = store.SetWithTTL(ctx, "stale", "m", "p", "r", time.Second)
	if _, err := store.db.ExecContext(ctx,
		`UPDATE cache_entries SET created_at = ? WHERE cache_key = ?`,
		time.Now().UTC().Add(-time.Minute), "stale"); err != nil {
		t.Fatalf("backdating entry: %v", err)
	}

	removed, err := store.CleanExpired(ctx)
	if err != nil {
		t.Fatalf("CleanExpired() returned error: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := store.Get(ctx, "fresh"); !ok {
		t.Error("expected fresh entry to survive the sweep")
	}
}

func TestSQLStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, time.Hour)

	_ = store.Set(ctx, "a", "m", "p", "r")
	_ = store.Set(ctx, "b", "m", "p", "r")
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() returned error: %v", err)
	}

	stats, _ := store.Stats(ctx)
	if stats.Entries != 0 {
		t.Errorf("Entries = %d after Clear, want 0", stats.Entries)
	}
}

func TestSQLStore_Stats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, time.Hour)

	_ = store.Set(ctx, "a", "m", "p", "r")
	store.Get(ctx, "a")
	store.Get(ctx, "missing")

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() returned error: %v", err)
	}
	if stats.Entries != 1 || stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestSQLStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "cache.db")

	store, err := NewSQLiteStore(dsn, time.Hour)
	if err != nil {
		t.Fatalf("NewSQLiteStore() returned error: %v", err)
	}
	_ = store.Set(ctx, "k", "m", "p", "kept")
	_ = store.Close()

	reopened, err := NewSQLiteStore(dsn, time.Hour)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, ok := reopened.Get(ctx, "k")
	if !ok || got != "kept" {
		t.Errorf("Get() after reopen = %q, %v", got, ok)
	}
}

func TestBind(t *testing.T) {
	pg := &SQLStore{dialect: dialectPostgres}
	got := pg.bind(`SELECT a FROM t WHERE x = ? AND y = ?`)
	want := `SELECT a FROM t WHERE x = $1 AND y = $2`
	if got != want {
		t.Errorf("bind() = %q, want %q", got, want)
	}

	lite := &SQLStore{dialect: dialectSQLite}
	q := `SELECT a FROM t WHERE x = ?`
	if lite.bind(q) != q {
		t.Error("sqlite bind should leave placeholders untouched")
	}
}
