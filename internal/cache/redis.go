package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/redditify-proxy/internal/domain"
)

// connectionTimeout bounds the initial PING to a networked substrate.
const connectionTimeout = 5 * time.Second

// RedisStore keeps entries in Redis with SET EX, so Redis enforces the TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(addr, password string, db int) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStore(client), nil
}

// Get reads and decodes key; redis.Nil is a miss.
func (s *RedisStore) Get(ctx context.Context, key string) (*domain.CacheEntry, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	e, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// Set writes the entry with an expiry of ttl.
func (s *RedisStore) Set(ctx context.Context, entry *domain.CacheEntry, ttl time.Duration) error {
	data, err := encode(entry)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, entry.Key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping issues PING.
func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

// Close closes the client.
func (s *RedisStore) Close() error { return s.client.Close() }

var _ Store = (*RedisStore)(nil)
