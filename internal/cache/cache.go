// Package cache defines the response cache substrate used by the proxy and
// its implementations (in-process memory, Redis, Valkey, Badger, SQLite).
//
// The proxy only reads and writes whole entries. Expiry is delegated to the
// substrate: each Set carries a TTL and the substrate stops returning the
// entry once it elapses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tbourn/redditify-proxy/internal/domain"
)

// Key kinds. Thread and search entries never share a key space.
const (
	KindThread = "thread"
	KindSearch = "search"
)

// Store is a key-value substrate with per-entry TTL. Implementations must be
// safe for concurrent Get/Set from independent requests.
type Store interface {
	// Get returns the entry for key. found is false on a miss or expiry.
	Get(ctx context.Context, key string) (entry *domain.CacheEntry, found bool, err error)
	// Set writes entry under entry.Key, replacing any previous value.
	Set(ctx context.Context, entry *domain.CacheEntry, ttl time.Duration) error
	// Ping checks that the substrate is reachable.
	Ping(ctx context.Context) error
	// Close releases substrate resources.
	Close() error
}

// Key derives a cache key from the normalized upstream URL. Every input that
// changes the upstream content (path, subreddit, search term, sort) is part of
// that URL, so distinct content never collides and identical content reuses
// one entry.
func Key(namespace, kind, upstreamURL string) string {
	sum := sha256.Sum256([]byte(upstreamURL))
	if namespace == "" {
		return fmt.Sprintf("%s:%s", kind, hex.EncodeToString(sum[:]))
	}
	return fmt.Sprintf("%s:%s:%s", namespace, kind, hex.EncodeToString(sum[:]))
}

// ThreadKey is Key for a normalized thread URL.
func ThreadKey(namespace, upstreamURL string) string {
	return Key(namespace, KindThread, upstreamURL)
}

// SearchKey is Key for a built search URL.
func SearchKey(namespace, upstreamURL string) string {
	return Key(namespace, KindSearch, upstreamURL)
}

// encode serializes an entry for byte-oriented substrates.
func encode(e *domain.CacheEntry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return data, nil
}

// decode is the inverse of encode.
func decode(data []byte) (*domain.CacheEntry, error) {
	var e domain.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, nil
}
