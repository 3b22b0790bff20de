// Package lock serializes record transitions. Local guards a single
// process; Redis extends the guard across API instances sharing a store.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"churchledger/internal/core"
	applog "churchledger/internal/log"
)

// ErrBusy is returned when a lock could not be obtained before giving up.
var ErrBusy = fmt.Errorf("record is busy: %w", core.ErrConcurrentUpdate)

// Local is an in-process keyed mutex. The zero value is ready to use.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal() *Local { return &Local{} }

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots == nil {
		l.slots = make(map[string]chan struct{})
	}
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire blocks until key is free or ctx is done.
func (l *Local) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire %s: %w", key, ErrBusy)
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}

// Redis obtains locks with bsm/redislock.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	logger *applog.Logger
}

type RedisOptions struct {
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// Wait is how long Acquire retries before returning ErrBusy.
	Wait time.Duration
}

func NewRedis(rdb redis.UniversalClient, opts RedisOptions, logger *applog.Logger) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Wait <= 0 {
		opts.Wait = 5 * time.Second
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Redis{
		client: redislock.New(rdb),
		ttl:    opts.TTL,
		wait:   opts.Wait,
		logger: logger.WithComponent(applog.ComponentLock),
	}
}

// Connect dials addr and verifies it answers a ping.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, core.Unavailable("redis ping", err)
	}
	return rdb, nil
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	lk, err := r.client.Obtain(waitCtx, "churchledger:"+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.ExponentialBackoff(16*time.Millisecond, 256*time.Millisecond),
	})
	switch {
	case errors.Is(err, redislock.ErrNotObtained), errors.Is(err, context.DeadlineExceeded):
		r.logger.WarnContext(ctx, "Could not obtain lock", "key", key)
		return nil, fmt.Errorf("acquire %s: %w", key, ErrBusy)
	case err != nil:
		return nil, core.Unavailable("acquire lock", err)
	}

	return func(ctx context.Context) error {
		if err := lk.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}, nil
}
