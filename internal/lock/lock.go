package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/note_wallet/internal/ledger"
)

var (
	// ErrEmptyKey is returned for a blank lock key.
	ErrEmptyKey = errors.New("lock key is empty")
	// ErrNilFn is returned when no function is supplied.
	ErrNilFn = errors.New("lock function is nil")
)

// Locker runs fn while holding the lock named key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// AccountKey names the lock guarding an account's execute-and-submit section.
func AccountKey(id ledger.AccountID) string {
	return "lock:account:" + id.String()
}

func validate(key string, fn func(context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if fn == nil {
		return ErrNilFn
	}
	return nil
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// Keyed is an in-process lock per key. Entries are dropped once unused.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

// NewKeyed constructs an in-process keyed lock.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*keyedEntry)}
}

// WithLock waits for key, honouring ctx, then runs fn. The lock is released on
// every exit path, panics included.
func (k *Keyed) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if err := validate(key, fn); err != nil {
		return err
	}

	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e, false)
		return fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
	}
	defer k.release(key, e, true)

	return fn(ctx)
}

func (k *Keyed) release(key string, e *keyedEntry, held bool) {
	if held {
		<-e.sem
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// RedisOptions tunes the distributed lock.
type RedisOptions struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultRedisOptions holds a lock for a minute and retries for roughly as long.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{Expiry: time.Minute, Tries: 120, RetryDelay: 500 * time.Millisecond}
}

// Redis is a RedLock mutex shared by every service instance using the same Redis.
type Redis struct {
	rs     *redsync.Redsync
	opts   RedisOptions
	logger *slog.Logger
}

// NewRedis builds a distributed lock on client.
func NewRedis(client *redis.Client, opts RedisOptions, logger *slog.Logger) *Redis {
	def := DefaultRedisOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.Tries <= 0 {
		opts.Tries = def.Tries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger.With("component", "lock"),
	}
}

// WithLock acquires the distributed mutex for key and runs fn.
func (r *Redis) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if err := validate(key, fn); err != nil {
		return err
	}
	mutex := r.rs.NewMutex(key,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.opts.Tries),
		redsync.WithRetryDelay(r.opts.RetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			r.logger.Warn("release lock", slog.String("key", key), slog.Bool("ok", ok), slog.Any("error", err))
		}
	}()

	// Keep the mutex alive for as long as fn runs; stopped before unlock.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.keepAlive(ctx, mutex, key, done)
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	return fn(ctx)
}

func (r *Redis) keepAlive(ctx context.Context, mutex *redsync.Mutex, key string, done <-chan struct{}) {
	ticker := time.NewTicker(r.opts.Expiry / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			extendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.Expiry/2)
			ok, err := mutex.ExtendContext(extendCtx)
			cancel()
			if !ok || err != nil {
				r.logger.Warn("extend lock", slog.String("key", key), slog.Bool("ok", ok), slog.Any("error", err))
			}
		}
	}
}

// Chain acquires each locker in order, outermost first.
type Chain []Locker

// WithLock nests fn inside every locker of the chain.
func (c Chain) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if err := validate(key, fn); err != nil {
		return err
	}
	if len(c) == 0 {
		return fn(ctx)
	}
	return c[0].WithLock(ctx, key, func(ctx context.Context) error {
		return c[1:].WithLock(ctx, key, fn)
	})
}
