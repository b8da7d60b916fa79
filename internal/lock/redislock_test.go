package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payu-bridge/internal/lock"
)

func newLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}, mr
}

func TestOrderKey(t *testing.T) {
	require.Equal(t, "payu:order:ord-42", lock.OrderKey(" ord-42 "))
}

func TestWithLockSerialisesCallers(t *testing.T) {
	locker, _ := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})

	go func() {
		err := locker.WithLock(ctx, lock.OrderKey("ord-1"), 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
		require.NoError(t, err)
	}()

	<-firstDone

	go func() {
		err := locker.WithLock(ctx, lock.OrderKey("ord-1"), 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}()

	close(releaseFirst)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestWithLockReleasesOnCallbackError(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := locker.WithLock(ctx, lock.OrderKey("ord-2"), time.Second, func(context.Context) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	// The key must be released so a subsequent caller acquires immediately.
	require.False(t, mr.Exists(lock.OrderKey("ord-2")))
	err = locker.WithLock(ctx, lock.OrderKey("ord-2"), time.Second, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
}

func TestWithLockHonoursContextCancellation(t *testing.T) {
	locker, mr := newLocker(t)
	require.NoError(t, mr.Set(lock.OrderKey("ord-3"), "held-elsewhere"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, lock.OrderKey("ord-3"), time.Second, func(context.Context) error {
		t.Fatal("callback must not run while the lock is held")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithLockValidatesArguments(t *testing.T) {
	locker, _ := newLocker(t)
	require.Error(t, locker.WithLock(context.Background(), "k", time.Second, nil))
	require.Error(t, lock.Locker{}.WithLock(context.Background(), "k", time.Second, func(context.Context) error { return nil }))
}
