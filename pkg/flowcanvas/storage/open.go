package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// Open creates the Store named by backend ("memory", "sqlite", "redis" or
// "badger"). dsn is the sqlite path, redis address or badger directory.
func Open(ctx context.Context, backend, dsn string, logger *slog.Logger) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if dsn == "" {
			dsn = ":memory:"
		}
		return NewSQLiteStore(dsn)
	case "redis":
		return NewRedisStore(ctx, dsn)
	case "badger":
		return NewBadgerStore(dsn, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
