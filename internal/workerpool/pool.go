// Package workerpool bounds the number of blocking store and AI calls in flight.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("worker pool closed")

// Pool runs jobs on their own goroutines, at most size at a time.
type Pool struct {
	sem  *semaphore.Weighted
	size int64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a pool with size slots.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return int(p.size)
}

type result[T any] struct {
	value T
	err   error
}

// Submit waits for a free slot, runs fn on a pool goroutine and waits for it to finish.
// Both waits end when ctx is done; fn receives ctx and keeps its slot until it returns.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return zero, ErrClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.wg.Done()
		return zero, fmt.Errorf("acquire worker: %w", err)
	}

	done := make(chan result[T], 1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: fmt.Errorf("job panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- result[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Run is Submit for jobs without a result.
func Run(ctx context.Context, p *Pool, fn func(context.Context) error) error {
	_, err := Submit(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Close rejects new jobs and waits until running ones return or ctx is done.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain worker pool: %w", ctx.Err())
	}
}
