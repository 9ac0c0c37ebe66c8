package store

import (
	"context"
	"fmt"

	"github.com/csheth/lecturepad/internal/config"
)

// Open builds the Store selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return NewMemory(), nil
	case config.StoreFile:
		return NewFile(cfg.StorePath)
	case config.StoreSQLite:
		return NewSQLite(cfg.StorePath)
	case config.StoreRedis:
		return NewRedis(ctx, cfg.RedisAddr, "lecturepad")
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
