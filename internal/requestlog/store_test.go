package requestlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "requests.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLStore_WriteAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.Write(ctx, Entry{
		RequestID:  "req-1",
		Feature:    "chat",
		Provider:   "openai",
		Model:      "gpt-4o",
		Outcome:    "success",
		DurationMs: 812,
	})
	if err != nil {
		t.Fatalf("Write() returned error: %v", err)
	}

	entries, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.RequestID != "req-1" || e.Feature != "chat" || e.Provider != "openai" || e.Outcome != "success" {
		t.Errorf("entry = %+v", e)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt was not defaulted on write")
	}
}

func TestSQLStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		_ = store.Write(ctx, Entry{
			Feature:   "chat",
			Outcome:   "success",
			RequestID: string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	entries, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() returned error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].RequestID != "c" || entries[2].RequestID != "a" {
		t.Errorf("entries not newest-first: %v, %v, %v",
			entries[0].RequestID, entries[1].RequestID, entries[2].RequestID)
	}
}

func TestSQLStore_ListLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		_ = store.Write(ctx, Entry{Feature: "chat", Outcome: "error", ErrorCode: "rate_limit"})
	}
	entries, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2", len(entries))
	}
}

func TestNoopWriter(t *testing.T) {
	var w Writer = NoopWriter{}
	if err := w.Write(context.Background(), Entry{Feature: "chat"}); err != nil {
		t.Errorf("NoopWriter.Write() returned error: %v", err)
	}
}
