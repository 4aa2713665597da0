package statestore

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/AltairaLabs/barre/pkg/config"
)

// DefaultSQLitePath is used when a sqlite store is configured without a path.
const DefaultSQLitePath = ".barre/drafts.db"

// Open builds the store selected by cfg. An empty type selects the memory store.
func Open(cfg config.StateStoreConfig) (Store, error) {
	switch cfg.Type {
	case "", config.StateStoreMemory:
		return NewMemoryStore(), nil
	case config.StateStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		opts := []RedisOption{WithPrefix(cfg.Prefix)}
		if cfg.TTL > 0 {
			opts = append(opts, WithTTL(cfg.TTL))
		}
		return NewRedisStore(client, opts...), nil
	case config.StateStoreSQLite:
		path := cfg.Path
		if path == "" {
			path = DefaultSQLitePath
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown statestore type %q", cfg.Type)
	}
}
