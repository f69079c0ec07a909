package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/note_wallet/internal/ledger"
	"github.com/congo-pay/note_wallet/internal/logging"
)

func TestAccountKey(t *testing.T) {
	id := ledger.MustParseAccountID("0x29b86f9443ad907a")
	require.Equal(t, "lock:account:0x29b86f9443ad907a", AccountKey(id))
}

func TestKeyedSerializesSameKey(t *testing.T) {
	k := NewKeyed()
	var (
		active  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := k.WithLock(context.Background(), "lock:account:a", func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxSeen)
					if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxSeen)
	require.Equal(t, 0, k.Len())
}

func TestKeyedDifferentKeysDoNotBlock(t *testing.T) {
	k := NewKeyed()
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = k.WithLock(context.Background(), "a", func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, k.WithLock(ctx, "b", func(context.Context) error { return nil }))
	close(release)
}

func TestKeyedHonoursContextWhileWaiting(t *testing.T) {
	k := NewKeyed()
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = k.WithLock(context.Background(), "a", func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := k.WithLock(ctx, "a", func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
	require.Equal(t, 0, k.Len())
}

func TestKeyedReleasesOnPanic(t *testing.T) {
	k := NewKeyed()
	func() {
		defer func() { _ = recover() }()
		_ = k.WithLock(context.Background(), "a", func(context.Context) error { panic("boom") })
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, k.WithLock(ctx, "a", func(context.Context) error { return nil }))
}

func TestKeyedValidatesInput(t *testing.T) {
	k := NewKeyed()
	require.ErrorIs(t, k.WithLock(context.Background(), " ", func(context.Context) error { return nil }), ErrEmptyKey)
	require.ErrorIs(t, k.WithLock(context.Background(), "a", nil), ErrNilFn)
}

func TestRedisLockWithMiniredis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedis(client, RedisOptions{Expiry: 5 * time.Second, Tries: 1, RetryDelay: 10 * time.Millisecond}, logging.Discard())

	sentinel := errors.New("inner")
	err = l.WithLock(context.Background(), "lock:account:x", func(ctx context.Context) error {
		require.True(t, mr.Exists("lock:account:x"))

		// A second holder cannot enter while the first one runs.
		innerErr := l.WithLock(ctx, "lock:account:x", func(context.Context) error { return nil })
		require.Error(t, innerErr)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.False(t, mr.Exists("lock:account:x"))
}

func TestRedisLockOutlivesExpiryWhileHeld(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedis(client, RedisOptions{Expiry: 400 * time.Millisecond, Tries: 1, RetryDelay: 10 * time.Millisecond}, logging.Discard())

	err = l.WithLock(context.Background(), "lock:account:slow", func(context.Context) error {
		mr.FastForward(300 * time.Millisecond)
		// The first extension fires at half the expiry and resets the TTL.
		time.Sleep(350 * time.Millisecond)
		mr.FastForward(300 * time.Millisecond)
		require.True(t, mr.Exists("lock:account:slow"))
		return nil
	})
	require.NoError(t, err)
	require.False(t, mr.Exists("lock:account:slow"))
}

func TestChainNestsLockers(t *testing.T) {
	var order []string
	rec := func(name string) Locker {
		return lockerFunc(func(ctx context.Context, key string, fn func(context.Context) error) error {
			order = append(order, name+":in")
			err := fn(ctx)
			order = append(order, name+":out")
			return err
		})
	}
	c := Chain{rec("local"), rec("redis")}
	require.NoError(t, c.WithLock(context.Background(), "k", func(context.Context) error {
		order = append(order, "fn")
		return nil
	}))
	require.Equal(t, []string{"local:in", "redis:in", "fn", "redis:out", "local:out"}, order)
}

type lockerFunc func(ctx context.Context, key string, fn func(context.Context) error) error

func (f lockerFunc) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	return f(ctx, key, fn)
}
