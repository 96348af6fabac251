package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ygrebnov/threading/future"
)

// Observer receives the values of an Observable.
type Observer[T any] interface {
	// Next is called with every value passed to Update or UpdateWait.
	Next(ctx context.Context, v T) error
	// Complete is called once, at Bind, with the future resolved when the observable completes.
	Complete(done *future.Future[struct{}])
}

// ObserverFunc adapts a function to an Observer that ignores completion.
type ObserverFunc[T any] func(ctx context.Context, v T) error

func (f ObserverFunc[T]) Next(ctx context.Context, v T) error { return f(ctx, v) }

func (ObserverFunc[T]) Complete(*future.Future[struct{}]) {}

// Observable fans values out to bound observers.
//
// Semantics:
//   - Update does not wait for observers; UpdateWait does and returns the first failure.
//   - Complete stops accepting bindings and updates. Done resolves once every Update
//     started before Complete has returned; its error joins the failures of those updates.
type Observable[T any] struct {
	mu        sync.RWMutex
	observers []Observer[T]
	completed bool
	wg        sync.WaitGroup

	faultsMu sync.Mutex
	faults   []error

	done    *future.Future[struct{}]
	resolve func(struct{}, error)
}

func NewObservable[T any]() *Observable[T] {
	o := &Observable[T]{}
	o.done, o.resolve = future.NewPromise[struct{}]()
	return o
}

// Bind adds obs and hands it the completion future.
func (o *Observable[T]) Bind(obs Observer[T]) error {
	if obs == nil {
		return ErrNilSubscriber
	}
	o.mu.Lock()
	if o.completed {
		o.mu.Unlock()
		return ErrCompleted
	}
	o.observers = append(o.observers, obs)
	o.mu.Unlock()

	obs.Complete(o.done)
	return nil
}

func (o *Observable[T]) snapshot() ([]Observer[T], bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.completed {
		return nil, false
	}
	// Registered under the read lock so Complete cannot miss it.
	o.wg.Add(1)
	return o.observers[:len(o.observers):len(o.observers)], true
}

// Update passes v to every observer concurrently and returns immediately.
func (o *Observable[T]) Update(ctx context.Context, v T) error {
	observers, ok := o.snapshot()
	if !ok {
		return ErrCompleted
	}
	go func() {
		defer o.wg.Done()
		if err := o.fanOut(ctx, observers, v); err != nil {
			o.faultsMu.Lock()
			o.faults = append(o.faults, err)
			o.faultsMu.Unlock()
		}
	}()
	return nil
}

// UpdateWait passes v to every observer concurrently and waits for all of them.
func (o *Observable[T]) UpdateWait(ctx context.Context, v T) error {
	observers, ok := o.snapshot()
	if !ok {
		return ErrCompleted
	}
	defer o.wg.Done()
	return o.fanOut(ctx, observers, v)
}

func (o *Observable[T]) fanOut(ctx context.Context, observers []Observer[T], v T) error {
	var g errgroup.Group
	for _, obs := range observers {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrSubscriberPanicked, r)
				}
			}()
			return obs.Next(ctx, v)
		})
	}
	return g.Wait()
}

// Complete marks the observable complete. It is idempotent.
func (o *Observable[T]) Complete() {
	o.mu.Lock()
	if o.completed {
		o.mu.Unlock()
		return
	}
	o.completed = true
	o.mu.Unlock()

	go func() {
		o.wg.Wait()
		o.faultsMu.Lock()
		err := errors.Join(o.faults...)
		o.faultsMu.Unlock()
		o.resolve(struct{}{}, err)
	}()
}

// Done returns the completion future.
func (o *Observable[T]) Done() *future.Future[struct{}] { return o.done }
