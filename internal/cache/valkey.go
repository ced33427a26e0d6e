package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/tbourn/redditify-proxy/internal/domain"
)

// ValkeyStore keeps entries in Valkey with SET EX.
type ValkeyStore struct {
	client valkey.Client
}

// NewValkeyStore wraps an existing client.
func NewValkeyStore(client valkey.Client) *ValkeyStore {
	return &ValkeyStore{client: client}
}

// OpenValkey connects using opts and verifies the connection.
func OpenValkey(opts valkey.ClientOption) (*ValkeyStore, error) {
	if len(opts.InitAddress) == 0 {
		return nil, errors.New("valkey address is required")
	}
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}
	return NewValkeyStore(client), nil
}

// Get reads and decodes key; a Valkey nil reply is a miss.
func (s *ValkeyStore) Get(ctx context.Context, key string) (*domain.CacheEntry, bool, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("valkey get: %w", err)
	}
	e, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// Set writes the entry with an expiry of ttl.
func (s *ValkeyStore) Set(ctx context.Context, entry *domain.CacheEntry, ttl time.Duration) error {
	data, err := encode(entry)
	if err != nil {
		return err
	}
	cmd := s.client.B().Set().Key(entry.Key).Value(valkey.BinaryString(data)).Ex(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

// Ping issues PING.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

// Close closes the client.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}

var _ Store = (*ValkeyStore)(nil)
