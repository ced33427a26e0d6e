package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tbourn/redditify-proxy/internal/domain"
)

type memoryItem struct {
	entry   *domain.CacheEntry
	expires time.Time
}

// MemoryStore is an in-process Store bounded to maxEntries. Expired items are
// invisible to Get and reclaimed when capacity is needed.
type MemoryStore struct {
	mu         sync.RWMutex
	data       map[string]memoryItem
	maxEntries int
	now        func() time.Time
}

// NewMemoryStore constructs a MemoryStore; maxEntries < 1 is coerced to 1.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &MemoryStore{
		data:       make(map[string]memoryItem),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a copy of the entry if present and not expired.
func (m *MemoryStore) Get(_ context.Context, key string) (*domain.CacheEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.data[key]
	if !ok || !m.now().Before(it.expires) {
		return nil, false, nil
	}
	return it.entry.Clone(), true, nil
}

// Set stores a copy of entry, evicting expired items first and then the
// oldest item when the store is full.
func (m *MemoryStore) Set(_ context.Context, entry *domain.CacheEntry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.data[entry.Key]; !exists && len(m.data) >= m.maxEntries {
		m.evictLocked(now)
	}
	m.data[entry.Key] = memoryItem{entry: entry.Clone(), expires: now.Add(ttl)}
	return nil
}

func (m *MemoryStore) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, it := range m.data {
		if !now.Before(it.expires) {
			delete(m.data, k)
			continue
		}
		if oldestKey == "" || it.expires.Before(oldest) {
			oldestKey, oldest = k, it.expires
		}
	}
	if len(m.data) >= m.maxEntries && oldestKey != "" {
		delete(m.data, oldestKey)
	}
}

// Len reports the number of stored items, including expired ones not yet reclaimed.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close drops all items.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.data = make(map[string]memoryItem)
	m.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
