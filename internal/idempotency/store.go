// Package idempotency remembers which upload batches were already delivered
// so a rerun with the same seed skips them instead of duplicating rows.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/seeder/internal/config"
)

// Store records delivered batch keys.
type Store interface {
	// MarkProcessed marks a key as delivered with a TTL.
	// Returns true if the key was newly marked, false if it was already there.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether the key was delivered.
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close releases resources.
	Close() error
}

// New builds the store selected by cfg.Backend. "none" returns nil.
func New(ctx context.Context, cfg config.IdempotencyConfig) (Store, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("idempotency: unknown backend %q", cfg.Backend)
	}
}
