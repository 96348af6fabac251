// Package future provides a one-shot, generic future/promise used by the
// asynchronous operations of the threading packages.
//
// A Future is resolved exactly once, either through the resolve function returned by
// NewPromise or by the goroutine started by Go. Any number of goroutines may wait on it.
package future

import (
	"context"
	"errors"
	"sync"
	"time"
)

const Namespace = "future"

var (
	ErrTimeout   = errors.New(Namespace + ": timed out waiting for completion")
	ErrNoFutures = errors.New(Namespace + ": no futures provided")
)

// Future represents the result of an asynchronous computation.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewPromise returns an unresolved Future and the function resolving it.
// Only the first call to resolve has an effect; later calls are ignored.
func NewPromise[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.resolve
}

// Resolved returns a Future that is already complete.
func Resolved[T any](v T, err error) *Future[T] {
	f, resolve := NewPromise[T]()
	resolve(v, err)
	return f
}

// Go runs fn in a new goroutine and returns a Future resolved with its outcome.
func Go[T any](fn func() (T, error)) *Future[T] {
	f, resolve := NewPromise[T]()
	go func() {
		v, err := fn()
		resolve(v, err)
	}()
	return f
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done returns a channel closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the future is resolved and returns its value and error.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.val, f.err
}

// AwaitContext waits for the future or for ctx, whichever comes first.
// When ctx ends first, the zero value and ctx.Err() are returned; the future itself
// keeps running.
func (f *Future[T]) AwaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AwaitTimeout waits at most d for the future. ErrTimeout is returned on expiry.
func (f *Future[T]) AwaitTimeout(d time.Duration) (T, error) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-f.done:
		return f.val, f.err
	case <-t.C:
		var zero T
		return zero, ErrTimeout
	}
}

// IsComplete reports whether the future is resolved, without blocking.
func (f *Future[T]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// WhenAll returns a future resolved once every given future is resolved.
// Its error joins the errors of all futures.
func WhenAll[T any](futures ...*Future[T]) *Future[[]T] {
	return Go(func() ([]T, error) {
		vals := make([]T, len(futures))
		errs := make([]error, 0)
		for i, f := range futures {
			v, err := f.Await()
			vals[i] = v
			if err != nil {
				errs = append(errs, err)
			}
		}
		return vals, errors.Join(errs...)
	})
}

// WhenAny returns a future resolved with the index of the first resolved future.
// The error is that future's error. ErrNoFutures is returned for an empty list.
func WhenAny[T any](futures ...*Future[T]) *Future[int] {
	if len(futures) == 0 {
		return Resolved(-1, ErrNoFutures)
	}
	out, resolve := NewPromise[int]()
	for i, f := range futures {
		go func(index int, f *Future[T]) {
			_, err := f.Await()
			resolve(index, err)
		}(i, f)
	}
	return out
}
