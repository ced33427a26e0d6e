package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tbourn/redditify-proxy/internal/domain"
)

// BadgerStore keeps entries in an embedded Badger database using per-entry
// TTLs; Badger hides expired keys and reclaims them during compaction.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens a database at path, or an in-memory one when path is "".
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Get reads and decodes key; ErrKeyNotFound (including expired keys) is a miss.
func (s *BadgerStore) Get(_ context.Context, key string) (*domain.CacheEntry, bool, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger get: %w", err)
	}
	e, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// Set writes the entry with a TTL.
func (s *BadgerStore) Set(_ context.Context, entry *domain.CacheEntry, ttl time.Duration) error {
	data, err := encode(entry)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(entry.Key), data).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// Ping reports an error once the database is closed.
func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error { return s.db.Close() }

var _ Store = (*BadgerStore)(nil)
