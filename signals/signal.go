// Package signals provides counting signals and a router multiplexing a closed set of
// named signals behind a single handle.
package signals

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/ygrebnov/errorc"
	"golang.org/x/sync/semaphore"

	"github.com/ygrebnov/threading/future"
)

// Signal is a counting signal: Release adds units, Wait takes one unit and blocks while
// none is available. Waiters are served in FIFO order.
//
// A zero max count means the signal is unbounded. Signal is safe for concurrent use.
type Signal struct {
	mu    sync.Mutex
	sem   *semaphore.Weighted
	count int64 // units currently available
	max   int64 // 0 = unbounded

	// ctx is canceled by Close; every wait is bound to it.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewSignal creates a signal holding initial units. max == 0 means unbounded.
func NewSignal(initial, max int) (*Signal, error) {
	if initial < 0 || max < 0 || (max > 0 && initial > max) {
		return nil, errorc.With(
			ErrInvalidCount,
			errorc.String("initial", strconv.Itoa(initial)),
			errorc.String("max", strconv.Itoa(max)),
		)
	}

	size := int64(max)
	if max == 0 {
		size = math.MaxInt64
	}
	sem := semaphore.NewWeighted(size)
	// Units not yet released are held by the signal itself; a fresh semaphore always grants this.
	sem.TryAcquire(size - int64(initial))

	ctx, cancel := context.WithCancel(context.Background())
	return &Signal{
		sem:    sem,
		count:  int64(initial),
		max:    int64(max),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Wait blocks until a unit is acquired, ctx is done or the signal is closed.
func (s *Signal) Wait(ctx context.Context) error {
	if s.Closed() {
		return ErrClosed
	}

	wctx, stop := s.bind(ctx)
	defer stop()

	if err := s.sem.Acquire(wctx, 1); err != nil {
		return s.waitErr(ctx)
	}

	s.mu.Lock()
	s.count--
	s.mu.Unlock()
	return nil
}

// WaitTimeout waits at most d for a unit.
//
// Semantics:
//   - d > 0: returns (true, nil) on acquisition, (false, nil) on timeout.
//   - d == 0: a single non-blocking attempt.
//   - d < 0: waits without a time limit.
//   - A done ctx or a closed signal returns false and the corresponding error.
func (s *Signal) WaitTimeout(ctx context.Context, d time.Duration) (bool, error) {
	switch {
	case d < 0:
		if err := s.Wait(ctx); err != nil {
			return false, err
		}
		return true, nil
	case d == 0:
		if s.Closed() {
			return false, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return s.TryWait(), nil
	}

	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := s.Wait(tctx)
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, ErrClosed):
		return false, err
	default:
		return false, nil
	}
}

// TryWait takes a unit if one is available right now.
func (s *Signal) TryWait() bool {
	if s.Closed() {
		return false
	}
	if !s.sem.TryAcquire(1) {
		return false
	}
	s.mu.Lock()
	s.count--
	s.mu.Unlock()
	return true
}

// WaitAsync is the non-blocking form of Wait.
func (s *Signal) WaitAsync(ctx context.Context) *future.Future[struct{}] {
	return future.Go(func() (struct{}, error) {
		return struct{}{}, s.Wait(ctx)
	})
}

// WaitTimeoutAsync is the non-blocking form of WaitTimeout.
func (s *Signal) WaitTimeoutAsync(ctx context.Context, d time.Duration) *future.Future[bool] {
	return future.Go(func() (bool, error) {
		return s.WaitTimeout(ctx, d)
	})
}

// Release adds n units, waking up to n waiters.
// Nothing is released when the result would exceed the maximum count.
func (s *Signal) Release(n int) error {
	if n < 1 {
		return errorc.With(ErrInvalidCount, errorc.String("release", strconv.Itoa(n)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return ErrClosed
	}
	limit := s.max
	if limit == 0 {
		limit = math.MaxInt64
	}
	if s.count > limit-int64(n) {
		return ErrSignalFull
	}

	s.count += int64(n)
	s.sem.Release(int64(n))
	return nil
}

// Count returns the number of units currently available.
func (s *Signal) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.count)
}

// MaxCount returns the configured maximum; 0 means unbounded.
func (s *Signal) MaxCount() int { return int(s.max) }

// Closed reports whether Close has been called.
func (s *Signal) Closed() bool { return s.ctx.Err() != nil }

// Close wakes every blocked waiter with ErrClosed. Later waits and releases fail.
// Close is idempotent.
func (s *Signal) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.cancel()
		s.mu.Unlock()
	})
}

// bind derives a context canceled when either ctx ends or the signal is closed.
func (s *Signal) bind(ctx context.Context) (context.Context, func()) {
	wctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return wctx, func() {
		stop()
		cancel()
	}
}

func (s *Signal) waitErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Closed() {
		return ErrClosed
	}
	return context.Canceled
}
