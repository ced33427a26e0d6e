// Package repo implements SQL persistence for cache entries, backed by GORM.
// This file provides the read/write helpers. Expiry is a column predicate:
// rows past expires_at are never returned and are purged in bulk.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/redditify-proxy/internal/domain"
)

// ErrNotFound indicates that no live entry exists for the key.
var ErrNotFound = errors.New("not found")

// GetCacheEntry returns a non-expired entry or ErrNotFound.
func GetCacheEntry(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.CacheEntry, error) {
	var e domain.CacheEntry
	err := db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, now).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PutCacheEntry inserts or fully replaces the row for e.Key.
func PutCacheEntry(ctx context.Context, db *gorm.DB, e *domain.CacheEntry) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(e).Error
}

// PurgeExpired deletes rows whose expires_at is at or before now and returns
// how many were removed.
func PurgeExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.CacheEntry{})
	return res.RowsAffected, res.Error
}
