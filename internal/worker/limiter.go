package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	ErrLimiterConcurrency = errors.New("error running func, reached concurrency limit")
	ErrLimiterDrain       = errors.New("draining funcs")
)

// Limiter runs funcs in goroutines, limiting them by the defined concurrency.
type Limiter struct {
	// waitgroup for running routines.
	wg sync.WaitGroup
	// slots holds a token for each running routine, its capacity is the concurrency.
	slots chan struct{}
	// mu is the guard for drain.
	mu sync.RWMutex
	// drain is the flag set when StopWait() invoked, with drain=true, no further funcs are accepted.
	drain bool
	// active is the number of running routines.
	active atomic.Int32
}

// NewLimiter returns a new limiting go routine runner.
// To wait for the routines spawned by Limiter, the StopWait() method should be invoked.
//
// concurrency is the limit on the number of running go routines, it is at least one.
func NewLimiter(concurrency int) *Limiter {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Limiter{slots: make(chan struct{}, concurrency)}
}

// Dispatch runs the given func when the concurrency limit allows,
// ErrLimiterConcurrency is returned otherwise.
//
// All error handling must be wrapped in the closure by the caller.
func (l *Limiter) Dispatch(f func()) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.drain {
		return ErrLimiterDrain
	}

	select {
	case l.slots <- struct{}{}:
	default:
		return ErrLimiterConcurrency
	}

	l.run(f)

	return nil
}

// DispatchWait runs the given func, blocking until the concurrency limit allows or the context is done.
func (l *Limiter) DispatchWait(ctx context.Context, f func()) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.drain {
		return ErrLimiterDrain
	}

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.run(f)

	return nil
}

func (l *Limiter) run(f func()) {
	l.wg.Add(1)
	l.active.Add(1)

	go func() {
		defer func() {
			l.active.Add(-1)
			<-l.slots
			l.wg.Done()
		}()

		f()
	}()
}

// ActiveCount returns the count of running routines
func (l *Limiter) ActiveCount() int {
	return int(l.active.Load())
}

// StopWait prevents any further routines from being added
// and waits until all the routines complete.
func (l *Limiter) StopWait() {
	l.mu.Lock()
	l.drain = true
	l.mu.Unlock()

	l.wg.Wait()
}

// Draining returns true once StopWait was invoked.
func (l *Limiter) Draining() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.drain
}
