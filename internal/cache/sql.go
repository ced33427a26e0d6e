package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/redditify-proxy/internal/domain"
	"github.com/tbourn/redditify-proxy/internal/repo"
)

// purgeEvery is how many Sets pass between bulk deletes of expired rows.
const purgeEvery = 500

// SQLStore keeps entries in a SQL table. TTL is enforced by the expires_at
// predicate on reads; expired rows are purged opportunistically on writes.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time

	mu     sync.Mutex
	writes int
}

// NewSQLStore wraps an already-migrated database.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// OpenSQLite opens the database at path and migrates the cache table.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := repo.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return NewSQLStore(db), nil
}

// Get returns the live row for key.
func (s *SQLStore) Get(ctx context.Context, key string) (*domain.CacheEntry, bool, error) {
	e, err := repo.GetCacheEntry(ctx, s.db, key, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sql get: %w", err)
	}
	return e, true, nil
}

// Set upserts the row with expires_at = now + ttl.
func (s *SQLStore) Set(ctx context.Context, entry *domain.CacheEntry, ttl time.Duration) error {
	now := s.now()
	row := entry.Clone()
	row.ExpiresAt = now.Add(ttl)
	if err := repo.PutCacheEntry(ctx, s.db, row); err != nil {
		return fmt.Errorf("sql set: %w", err)
	}

	s.mu.Lock()
	s.writes++
	purge := s.writes >= purgeEvery
	if purge {
		s.writes = 0
	}
	s.mu.Unlock()
	if purge {
		if _, err := repo.PurgeExpired(ctx, s.db, now); err != nil {
			return fmt.Errorf("sql purge: %w", err)
		}
	}
	return nil
}

// Ping pings the underlying connection pool.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*SQLStore)(nil)
