// Package domain defines the transient entities of the proxy. Nothing here is
// persisted beyond a cache entry's lifetime; the types are shared by the cache
// substrates, the service layer, and the HTTP handlers.
package domain

import (
	"time"
)

// Sort orders accepted by the upstream search endpoint.
const (
	SortRelevance = "relevance"
	SortTop       = "top"
	SortNew       = "new"
	SortComments  = "comments"

	// DefaultSort is applied when the caller omits sort.
	DefaultSort = SortTop
)

// Sorts lists the allowed search orders in display order.
var Sorts = []string{SortRelevance, SortTop, SortNew, SortComments}

// SearchQuery is a validated search request for links to URL inside a subreddit.
type SearchQuery struct {
	Subreddit string
	URL       string
	Sort      string
}

// CacheEntry is one stored upstream response. Entries are written whole and
// never merged; the substrate owns their lifetime.
//
// ExpiresAt is only consulted by substrates without native TTL support (SQL).
type CacheEntry struct {
	Key       string            `gorm:"type:TEXT NOT NULL;primaryKey" json:"key"`
	Status    int               `gorm:"type:INTEGER NOT NULL" json:"status"`
	Header    map[string]string `gorm:"type:TEXT;serializer:json" json:"header,omitempty"`
	Body      []byte            `gorm:"type:BLOB NOT NULL" json:"body"`
	StoredAt  time.Time         `gorm:"type:DATETIME NOT NULL" json:"stored_at"`
	ExpiresAt time.Time         `gorm:"type:DATETIME NOT NULL;index" json:"-"`
}

// TableName implements the GORM tabler interface.
func (CacheEntry) TableName() string { return "cache_entries" }

// Age reports how long ago the entry was stored, floored at zero.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	if e == nil || e.StoredAt.IsZero() || now.Before(e.StoredAt) {
		return 0
	}
	return now.Sub(e.StoredAt)
}

// Clone returns a deep copy so callers can hand entries across goroutines.
func (e *CacheEntry) Clone() *CacheEntry {
	if e == nil {
		return nil
	}
	out := *e
	if e.Header != nil {
		out.Header = make(map[string]string, len(e.Header))
		for k, v := range e.Header {
			out.Header[k] = v
		}
	}
	if e.Body != nil {
		out.Body = append([]byte(nil), e.Body...)
	}
	return &out
}
