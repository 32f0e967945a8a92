package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgredis "github.com/angelmondragon/groupcart-backend/pkg/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock keeps two housekeeper replicas from running the same cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Optimistic(ctx context.Context, maxRetries int, fn func(*redis.Tx) error, keys ...string) error
}

// RedisLock is a SETNX lock with an owner token. The TTL bounds how long a
// crashed holder can block other replicas.
type RedisLock struct {
	client lockStore
	key    string
	ttl    time.Duration
	owner  string
}

func NewRedisLock(client lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release deletes the key only while it still holds our owner token, checked
// and deleted under WATCH so an expired-then-reacquired lock is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	err := l.client.Optimistic(ctx, 3, func(tx *redis.Tx) error {
		value, err := tx.Get(ctx, l.key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if value != owner {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, l.key)
			return nil
		})
		return err
	}, l.key)
	if err != nil && !errors.Is(err, pkgredis.ErrTxConflict) {
		return fmt.Errorf("release lock: %w", err)
	}
	l.owner = ""
	return nil
}
