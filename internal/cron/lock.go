package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/epiguard-backend/pkg/instance"
)

const defaultLockTTL = 30 * time.Minute

// ErrLockLost is returned when a cycle finds its lock taken over or expired.
var ErrLockLost = errors.New("cron lock lost")

// Lock keeps cron cycles exclusive across worker replicas. Extend is called
// between jobs so a slow cycle keeps its claim.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock stores "<instance>:<nonce>" under key. Only the holder that wrote
// the value may extend or release it.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	owner string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := instance.GetID() + ":" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Extend pushes the expiry out by another TTL while this instance still holds
// the lock. False means the claim is gone.
func (l *RedisLock) Extend(ctx context.Context) (bool, error) {
	held, err := l.holds(ctx)
	if err != nil {
		return false, err
	}
	if !held {
		l.owner = ""
		return false, nil
	}
	ok, err := l.store.Expire(ctx, l.key, l.ttl)
	if err != nil {
		return false, fmt.Errorf("extend %s: %w", l.key, err)
	}
	return ok, nil
}

// Release deletes the key only when this instance still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	held, err := l.holds(ctx)
	if err != nil {
		return err
	}
	if held {
		if err := l.store.Del(ctx, l.key); err != nil {
			return fmt.Errorf("release %s: %w", l.key, err)
		}
	}
	l.owner = ""
	return nil
}

func (l *RedisLock) holds(ctx context.Context) (bool, error) {
	if l.owner == "" {
		return false, nil
	}
	value, err := l.store.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s owner: %w", l.key, err)
	}
	return value == l.owner, nil
}
