package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/groupcart-backend/pkg/redis"
)

// RedisLedger keeps ledger entries as `gc:ledger:<handler>:<event_id>` keys.
// A zero TTL keeps entries forever.
type RedisLedger struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewRedisLedger(store redis.IdempotencyStore, ttl time.Duration) (*RedisLedger, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &RedisLedger{store: store, ttl: ttl}, nil
}

func (l *RedisLedger) HasProcessed(ctx context.Context, eventID uuid.UUID, handler string) (bool, error) {
	if err := validateKey(eventID, handler); err != nil {
		return false, err
	}
	return l.store.Exists(ctx, l.store.LedgerKey(handler, eventID.String()))
}

func (l *RedisLedger) MarkProcessed(ctx context.Context, eventID uuid.UUID, handler string) error {
	if err := validateKey(eventID, handler); err != nil {
		return err
	}
	set, err := l.store.SetNX(ctx, l.store.LedgerKey(handler, eventID.String()), time.Now().UTC().Format(time.RFC3339Nano), l.ttl)
	if err != nil {
		return err
	}
	if !set {
		return ErrAlreadyProcessed
	}
	return nil
}

// Forget removes an entry so the event can be replayed on purpose.
func (l *RedisLedger) Forget(ctx context.Context, eventID uuid.UUID, handler string) error {
	if err := validateKey(eventID, handler); err != nil {
		return err
	}
	return l.store.Del(ctx, l.store.LedgerKey(handler, eventID.String()))
}
