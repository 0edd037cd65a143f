package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoReturnsResultAndError(t *testing.T) {
	p := New(2)
	defer p.Close()

	got, err := Do(context.Background(), p, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	boom := errors.New("boom")
	_, err = Do(context.Background(), p, func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestDoRunsOffCallerGoroutineConcurrently(t *testing.T) {
	const workers = 4
	p := New(workers)
	defer p.Close()

	var (
		running atomic.Int32
		peak    atomic.Int32
		release = make(chan struct{})
		wg      sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Do(context.Background(), p, func(context.Context) (struct{}, error) {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				<-release
				running.Add(-1)
				return struct{}{}, nil
			})
		}()
	}

	require.Eventually(t, func() bool { return peak.Load() == workers }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(workers), p.InFlight())
	close(release)
	wg.Wait()
	assert.Equal(t, int64(0), p.InFlight())
}

func TestDoDoesNotCancelStartedWork(t *testing.T) {
	p := New(1)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	var finished atomic.Bool
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, func(taskCtx context.Context) (int, error) {
			close(started)
			time.Sleep(50 * time.Millisecond)
			finished.Store(taskCtx.Err() == nil)
			return 1, nil
		})
		done <- err
	}()

	<-started
	cancel()
	require.NoError(t, <-done)
	assert.True(t, finished.Load())
}

func TestDoAfterCloseFails(t *testing.T) {
	p := New(1)
	p.Close()
	p.Close()

	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestInFlightHook(t *testing.T) {
	var (
		mu     sync.Mutex
		values []int64
	)
	p := New(1, WithInFlightHook(func(n int64) {
		mu.Lock()
		values = append(values, n)
		mu.Unlock()
	}))
	defer p.Close()

	_, err := Do(context.Background(), p, func(context.Context) (int, error) { return 0, nil })
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 0}, values)
}
