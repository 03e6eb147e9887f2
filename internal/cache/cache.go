// Package cache provides the two response-cache tiers used by the
// orchestrator: a process-local LRU (Memory) and a durable SQL-backed store
// (SQLStore), plus the shared cache-key derivation both tiers use.
package cache

import (
	"context"
	"time"
)

// Default TTLs for the two tiers.
const (
	DefaultMemoryTTL     = time.Hour
	DefaultPersistentTTL = 24 * time.Hour
)

// Store is the interface shared by both cache tiers.
type Store interface {
	// Get returns the cached response for key. Expired entries are treated
	// as absent.
	Get(ctx context.Context, key string) (string, bool)
	// Set upserts an entry under key with the store's default TTL. The model
	// and prompt are kept for observability; an existing live entry is
	// replaced in place.
	Set(ctx context.Context, key, model, prompt, response string) error
	// SetWithTTL is Set with an explicit TTL, used for short-lived degraded
	// responses.
	SetWithTTL(ctx context.Context, key, model, prompt, response string, ttl time.Duration) error
	// CleanExpired removes entries past their TTL, returning how many were
	// deleted.
	CleanExpired(ctx context.Context) (int, error)
	// Clear removes all entries.
	Clear(ctx context.Context) error
	// Stats reports entry count and hit/miss counters.
	Stats(ctx context.Context) (Stats, error)
}

// Stats reports cache performance counters for the admin status endpoint.
type Stats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
