// Package lock provides the cycle lock that keeps at most one replica writing to the CRM.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/straye-as/order-sync/internal/config"
	"go.uber.org/zap"
)

// ErrNotObtained is returned when another holder owns the lock
var ErrNotObtained = errors.New("cycle lock held by another instance")

// Locker obtains the cycle lock
type Locker interface {
	Obtain(ctx context.Context) (Lease, error)
}

// Lease is a held lock
type Lease interface {
	Release(ctx context.Context) error
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// RedisLocker holds a single redislock key. A held lease is refreshed at half
// its TTL until released, so cycles longer than the TTL keep the lock.
type RedisLocker struct {
	client *redislock.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker creates a RedisLocker on the given key
func NewRedisLocker(rdb redislock.RedisClient, key string, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLocker{
		client: redislock.New(rdb),
		key:    key,
		ttl:    ttl,
		logger: logger.With(zap.String("lock_key", key)),
	}
}

// Obtain tries once to take the lock. ErrNotObtained means another replica is running a cycle.
func (l *RedisLocker) Obtain(ctx context.Context) (Lease, error) {
	lk, err := l.client.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", l.key, err)
	}

	lease := &redisLease{
		lock:   lk,
		ttl:    l.ttl,
		logger: l.logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.keepAlive()
	return lease, nil
}

type redisLease struct {
	lock   *redislock.Lock
	ttl    time.Duration
	logger *zap.Logger

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (r *redisLease) keepAlive() {
	defer close(r.done)
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.lock.Refresh(context.Background(), r.ttl, nil); err != nil {
				r.logger.Warn("Failed to refresh cycle lock", zap.Error(err))
				if errors.Is(err, redislock.ErrNotObtained) {
					return
				}
			}
		}
	}
}

// Release stops the refresh loop and frees the key. Releasing a lease that
// already expired is not an error.
func (r *redisLease) Release(ctx context.Context) error {
	var err error
	r.once.Do(func() {
		close(r.stop)
		<-r.done
		err = r.lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			r.logger.Warn("Cycle lock expired before release")
			err = nil
		}
	})
	return err
}

// NoopLocker always obtains the lock. It is used when Redis is disabled.
type NoopLocker struct{}

// Obtain returns a lease that does nothing on release
func (NoopLocker) Obtain(ctx context.Context) (Lease, error) {
	return noopLease{}, nil
}

type noopLease struct{}

func (noopLease) Release(ctx context.Context) error { return nil }
