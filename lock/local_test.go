package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/accrual-engine/lock"
)

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	// GIVEN many goroutines contending for one key
	l := lock.NewLocalLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), "k", func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// THEN at most one ran at a time
	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLocker_DifferentKeysRunConcurrently(t *testing.T) {
	l := lock.NewLocalLocker()
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = l.WithLock(context.Background(), "a", func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	done := make(chan error, 1)
	go func() {
		done <- l.WithLock(context.Background(), "b", func() error { return nil })
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("key b blocked behind key a")
	}
	close(release)
}

func TestLocalLocker_ContextCancelledWhileWaiting(t *testing.T) {
	// GIVEN the key is held
	l := lock.NewLocalLocker()
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "k", func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	// WHEN a waiter's context expires
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := l.WithLock(ctx, "k", func() error { ran = true; return nil })

	// THEN it gives up without running
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}
