package midtranswebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketplace-core/pkg/redis"
)

const committedMarker = "committed"

// IdempotencyGuard records notifications whose reconciliation has committed.
// A key is written only after the transaction succeeds, so a crash or a
// rollback leaves the redelivery free to be processed.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl <= 0:
		return nil, errors.New("ttl must be positive")
	case scope == "":
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Committed reports whether key was recorded by an earlier committed
// reconciliation.
func (g *IdempotencyGuard) Committed(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("dedupe key is required")
	}
	value, err := g.store.Get(ctx, g.store.IdempotencyKey(g.scope, key))
	switch {
	case errors.Is(err, goredis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("read idempotency key: %w", err)
	}
	return value == committedMarker, nil
}

// MarkCommitted records key after its reconciliation committed. Duplicate
// deliveries racing the first one still reach the database, where the order
// row lock serializes them.
func (g *IdempotencyGuard) MarkCommitted(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("dedupe key is required")
	}
	if err := g.store.Set(ctx, g.store.IdempotencyKey(g.scope, key), committedMarker, g.ttl); err != nil {
		return fmt.Errorf("write idempotency key: %w", err)
	}
	return nil
}
