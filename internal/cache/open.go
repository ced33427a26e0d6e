package cache

import (
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/tbourn/redditify-proxy/internal/config"
)

// Open builds the Store selected by cfg.Backend.
func Open(cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case config.CacheMemory, "":
		return NewMemoryStore(cfg.MaxEntries), nil
	case config.CacheRedis:
		return OpenRedis(cfg.Addr, cfg.Password, cfg.DB)
	case config.CacheValkey:
		return OpenValkey(valkey.ClientOption{
			InitAddress: []string{cfg.Addr},
			Password:    cfg.Password,
			SelectDB:    cfg.DB,
		})
	case config.CacheBadger:
		return OpenBadger(cfg.BadgerPath)
	case config.CacheSQLite:
		return OpenSQLite(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
