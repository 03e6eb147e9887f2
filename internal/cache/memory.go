package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type memoryEntry struct {
	key       string
	response  string
	errorType string // non-empty marks a degraded entry
	expiresAt time.Time
}

// Memory is a thread-safe in-memory LRU cache with TTL expiration. It is the
// fast tier consulted after the persistent store; the LRU cap bounds memory
// growth under sustained unique-prompt traffic.
type Memory struct {
	mu        sync.Mutex
	capacity  int
	ttl       time.Duration
	items     map[string]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemory creates a new in-memory LRU cache. capacity must be positive.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = DefaultMemoryTTL
	}
	return &Memory{
		capacity:  capacity,
		ttl:       ttl,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached response for key, or false if missing or expired.
func (m *Memory) Get(ctx context.Context, key string) (string, bool) {
	response, _, ok := m.GetEntry(ctx, key)
	return response, ok
}

// GetEntry returns the cached response for key along with the error type
// recorded at write time. errorType is empty for healthy entries; a non-empty
// value means the entry was stored via SetDegraded and the caller must treat
// the response as a degraded answer.
func (m *Memory) GetEntry(_ context.Context, key string) (response, errorType string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, found := m.items[key]
	if !found {
		m.misses.Add(1)
		return "", "", false
	}

	entry := elem.Value.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		m.removeElement(elem)
		m.misses.Add(1)
		return "", "", false
	}

	m.evictList.MoveToFront(elem)
	m.hits.Add(1)
	return entry.response, entry.errorType, true
}

// Set stores a response in the cache with the configured default TTL.
func (m *Memory) Set(ctx context.Context, key, model, prompt, response string) error {
	return m.SetWithTTL(ctx, key, model, prompt, response, m.ttl)
}

// SetWithTTL stores a response with an explicit TTL. The model and prompt
// are not retained by the memory tier. Overwriting an entry clears any
// degraded marker.
func (m *Memory) SetWithTTL(_ context.Context, key, _, _, response string, ttl time.Duration) error {
	m.set(key, response, "", ttl)
	return nil
}

// SetDegraded stores a degraded response together with its error type so a
// later read can restore the degraded identity of the answer.
func (m *Memory) SetDegraded(_ context.Context, key, errorType, response string, ttl time.Duration) error {
	m.set(key, response, errorType, ttl)
	return nil
}

func (m *Memory) set(key, response, errorType string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.evictList.MoveToFront(elem)
		entry := elem.Value.(*memoryEntry)
		entry.response = response
		entry.errorType = errorType
		entry.expiresAt = time.Now().Add(ttl)
		return
	}

	if m.evictList.Len() >= m.capacity {
		m.removeOldest()
	}

	entry := &memoryEntry{
		key:       key,
		response:  response,
		errorType: errorType,
		expiresAt: time.Now().Add(ttl),
	}
	elem := m.evictList.PushFront(entry)
	m.items[key] = elem
}

// CleanExpired removes all expired entries.
func (m *Memory) CleanExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for elem := m.evictList.Back(); elem != nil; {
		prev := elem.Prev()
		if now.After(elem.Value.(*memoryEntry).expiresAt) {
			m.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed, nil
}

// Clear removes all entries from the cache.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.evictList.Init()
	return nil
}

// Len returns the number of entries currently in the cache.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictList.Len()
}

// Stats reports entry count and hit/miss counters.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	return Stats{
		Entries: int64(m.Len()),
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}, nil
}

func (m *Memory) removeOldest() {
	elem := m.evictList.Back()
	if elem != nil {
		m.removeElement(elem)
	}
}

func (m *Memory) removeElement(elem *list.Element) {
	m.evictList.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(m.items, entry.key)
}
