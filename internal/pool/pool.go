// Package pool runs CPU-bound work on a fixed set of goroutines so the
// goroutine serving a caller only waits for the result.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var ErrClosed = errors.New("worker pool is closed")

type task struct {
	run  func()
	done chan struct{}
}

type Pool struct {
	tasks    chan task
	quit     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	inFlight atomic.Int64
	onChange func(inFlight int64)
}

type Option func(*Pool)

// WithInFlightHook is called whenever the number of running tasks changes.
func WithInFlightHook(hook func(inFlight int64)) Option {
	return func(p *Pool) {
		p.onChange = hook
	}
}

func New(workers int, opts ...Option) *Pool {
	p := &Pool{
		tasks: make(chan task),
		quit:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(max(1, workers))
	for i := 0; i < max(1, workers); i++ {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case t := <-p.tasks:
			p.track(1)
			t.run()
			p.track(-1)
			close(t.done)
		}
	}
}

func (p *Pool) track(delta int64) {
	n := p.inFlight.Add(delta)
	if p.onChange != nil {
		p.onChange(n)
	}
}

// InFlight returns the number of tasks currently executing.
func (p *Pool) InFlight() int64 {
	return p.inFlight.Load()
}

// Close stops accepting work and waits for running tasks to finish.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}

// Do runs fn on a pool worker and blocks until it returns. Once a worker has
// picked the task up it always runs to completion; ctx is handed to fn and
// only aborts the wait for a free worker.
func Do[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	t := task{
		run: func() {
			out, err = fn(context.WithoutCancel(ctx))
		},
		done: make(chan struct{}),
	}

	select {
	case <-p.quit:
		var zero T
		return zero, ErrClosed
	default:
	}

	select {
	case p.tasks <- t:
	case <-p.quit:
		var zero T
		return zero, ErrClosed
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	<-t.done
	return out, err
}
