package store

import (
	"fmt"

	"sentinel/internal/config"
)

// Build constructs the configured Store backend. "memory" (the default)
// needs no further setup; "redis" dials out and pings eagerly so a
// misconfigured backend fails at startup rather than on first write.
func Build(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
