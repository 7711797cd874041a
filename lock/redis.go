// Package lock serializes accrual recalculations per person.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrLockNotAcquired is returned when a lock cannot be acquired
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when trying to release a lock not held
	ErrLockNotHeld = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Lock represents a held distributed lock
type Lock struct {
	rdb   *redis.Client
	key   string
	value string
}

// RedisLocker provides distributed locking across consumer replicas
type RedisLocker struct {
	rdb       *redis.Client
	keyPrefix string
	logger    logrus.FieldLogger

	// TTL bounds how long a crashed holder blocks others.
	TTL time.Duration
	// Wait bounds how long WithLock retries before giving up.
	Wait time.Duration

	newToken func() string
}

// NewRedisLocker creates a new RedisLocker
func NewRedisLocker(rdb *redis.Client, keyPrefix string, logger logrus.FieldLogger) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisLocker{
		rdb:       rdb,
		keyPrefix: keyPrefix,
		logger:    logger,
		TTL:       30 * time.Second,
		Wait:      10 * time.Second,
		newToken:  func() string { return uuid.New().String() },
	}
}

// Acquire attempts to acquire a lock once
func (l *RedisLocker) Acquire(ctx context.Context, key string) (*Lock, error) {
	lockKey := l.keyPrefix + key
	lockValue := l.newToken()

	ok, err := l.rdb.SetNX(ctx, lockKey, lockValue, l.TTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.logger.WithField("key", key).Debug("Acquired lock")
	return &Lock{rdb: l.rdb, key: lockKey, value: lockValue}, nil
}

// TryAcquire retries Acquire with capped exponential backoff until Wait elapses
func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (*Lock, error) {
	deadline := time.Now().Add(l.Wait)
	backoff := 10 * time.Millisecond

	for {
		lock, err := l.Acquire(ctx, key)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		if !time.Now().Add(backoff).Before(deadline) {
			return nil, ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
		}
	}
}

// Release deletes the lock only if this holder still owns it
func (lock *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// WithLock executes fn while holding the lock for key
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	lock, err := l.TryAcquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			l.logger.WithField("key", key).WithError(err).Warn("Failed to release lock")
		}
	}()

	return fn()
}
