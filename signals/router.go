package signals

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ygrebnov/errorc"
	"golang.org/x/sync/errgroup"

	"github.com/ygrebnov/threading/future"
)

// raceWait bounds the acquisition attempt of ContinueOrRedirect after it observed an
// available unit. Losing that race sends the caller back to the decision.
const raceWait = time.Millisecond

// Enum is the constraint for router names: a closed enumeration whose Values method,
// called on any value, lists every member exactly once.
//
// Example:
//
//	type Stage int
//
//	const (
//		Parsed Stage = iota
//		Built
//	)
//
//	func (Stage) Values() []Stage { return []Stage{Parsed, Built} }
type Enum[N any] interface {
	comparable
	Values() []N
}

// Router holds one counting signal per member of the enumeration N.
// The set of routes is fixed at construction. Router is safe for concurrent use.
type Router[N Enum[N]] struct {
	names     []N
	routes    map[N]*Signal
	closeOnce sync.Once
}

type routerConfig struct {
	initial int
	max     int
}

// RouterOption configures a Router.
type RouterOption func(*routerConfig) error

// WithInitialCount sets the number of units every route starts with (default 0).
func WithInitialCount(n int) RouterOption {
	return func(cfg *routerConfig) error {
		if n < 0 {
			return errorc.With(ErrInvalidCount, errorc.String("initial", strconv.Itoa(n)))
		}
		cfg.initial = n
		return nil
	}
}

// WithMaxCount sets the maximum number of units of every route (default 0, unbounded).
func WithMaxCount(n int) RouterOption {
	return func(cfg *routerConfig) error {
		if n < 0 {
			return errorc.With(ErrInvalidCount, errorc.String("max", strconv.Itoa(n)))
		}
		cfg.max = n
		return nil
	}
}

// NewRouter creates a router with one signal for each member of N.
// It fails with ErrInvalidEnum when N lists no members or lists a member twice.
func NewRouter[N Enum[N]](opts ...RouterOption) (*Router[N], error) {
	var cfg routerConfig
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	var zero N
	names := zero.Values()
	if len(names) == 0 {
		return nil, errorc.With(
			ErrInvalidEnum,
			errorc.String("type", fmt.Sprintf("%T", zero)),
			errorc.String("reason", "no members"),
		)
	}

	r := &Router[N]{
		names:  make([]N, 0, len(names)),
		routes: make(map[N]*Signal, len(names)),
	}
	for _, name := range names {
		if _, dup := r.routes[name]; dup {
			r.Close()
			return nil, errorc.With(
				ErrInvalidEnum,
				errorc.String("type", fmt.Sprintf("%T", zero)),
				errorc.String("duplicate", fmt.Sprint(name)),
			)
		}
		s, err := NewSignal(cfg.initial, cfg.max)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.routes[name] = s
		r.names = append(r.names, name)
	}
	return r, nil
}

func (r *Router[N]) route(name N) (*Signal, error) {
	s, ok := r.routes[name]
	if !ok {
		return nil, errorc.With(ErrUnknownRoute, errorc.String("route", fmt.Sprint(name)))
	}
	return s, nil
}

// Names returns the members of the enumeration in declaration order.
func (r *Router[N]) Names() []N {
	out := make([]N, len(r.names))
	copy(out, r.names)
	return out
}

// Signal returns the signal behind a route.
func (r *Router[N]) Signal(name N) (*Signal, error) { return r.route(name) }

// Count returns the units currently available on a route.
func (r *Router[N]) Count(name N) (int, error) {
	s, err := r.route(name)
	if err != nil {
		return 0, err
	}
	return s.Count(), nil
}

// Wait blocks until the route is signaled, ctx is done or the router is closed.
func (r *Router[N]) Wait(ctx context.Context, name N) error {
	s, err := r.route(name)
	if err != nil {
		return err
	}
	return s.Wait(ctx)
}

// WaitTimeout waits at most d for the route; see Signal.WaitTimeout.
func (r *Router[N]) WaitTimeout(ctx context.Context, name N, d time.Duration) (bool, error) {
	s, err := r.route(name)
	if err != nil {
		return false, err
	}
	return s.WaitTimeout(ctx, d)
}

// WaitAsync is the non-blocking form of Wait.
func (r *Router[N]) WaitAsync(ctx context.Context, name N) *future.Future[struct{}] {
	s, err := r.route(name)
	if err != nil {
		return future.Resolved(struct{}{}, err)
	}
	return s.WaitAsync(ctx)
}

// WaitTimeoutAsync is the non-blocking form of WaitTimeout.
func (r *Router[N]) WaitTimeoutAsync(ctx context.Context, name N, d time.Duration) *future.Future[bool] {
	s, err := r.route(name)
	if err != nil {
		return future.Resolved(false, err)
	}
	return s.WaitTimeoutAsync(ctx, d)
}

// Release adds one unit to each given route.
// Unknown routes are reported before anything is released.
func (r *Router[N]) Release(names ...N) error {
	sigs, err := r.resolve(names)
	if err != nil {
		return err
	}
	var errs []error
	for _, s := range sigs {
		if err := s.Release(1); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReleaseN adds count units to a route.
func (r *Router[N]) ReleaseN(name N, count int) error {
	s, err := r.route(name)
	if err != nil {
		return err
	}
	return s.Release(count)
}

// WaitForAllAsync resolves once every listed route has been acquired once.
func (r *Router[N]) WaitForAllAsync(ctx context.Context, names ...N) *future.Future[struct{}] {
	sigs, err := r.resolve(names)
	if err != nil {
		return future.Resolved(struct{}{}, err)
	}
	return future.Go(func() (struct{}, error) {
		var g errgroup.Group
		for _, s := range sigs {
			g.Go(func() error { return s.Wait(ctx) })
		}
		return struct{}{}, g.Wait()
	})
}

// WaitForAnyAsync resolves with the first listed route that is acquired.
//
// Semantics:
//   - The waits on the other routes stay outstanding until ctx is done; a unit they
//     acquire in the meantime is consumed, not released back.
//   - If every wait fails (ctx done, router closed), the future carries the last error.
func (r *Router[N]) WaitForAnyAsync(ctx context.Context, names ...N) *future.Future[N] {
	var zero N
	if len(names) == 0 {
		return future.Resolved(zero, ErrNoRoutes)
	}
	sigs, err := r.resolve(names)
	if err != nil {
		return future.Resolved(zero, err)
	}

	out, resolve := future.NewPromise[N]()
	var failed atomic.Int32
	for i, s := range sigs {
		go func(name N, s *Signal) {
			if err := s.Wait(ctx); err != nil {
				if int(failed.Add(1)) == len(sigs) {
					resolve(zero, err)
				}
				return
			}
			resolve(name, nil)
		}(names[i], s)
	}
	return out
}

// ContinueOrRedirect is a polling circuit for callers that prefer running fallback work
// over blocking while a route has no unit available.
//
// Semantics, repeated until a unit is acquired:
//   - If the route has a unit available, try to take it with a short bounded wait;
//     losing that race to another waiter restarts the decision.
//   - Otherwise invoke fallback once. Then, if loop is true and the route still has no
//     unit, restart the decision; else wait for the route without a time limit.
//
// With loop set, fallback must return in finite time; the number of iterations is not
// bounded. ctx ends the circuit between steps and aborts the waits.
func (r *Router[N]) ContinueOrRedirect(ctx context.Context, name N, loop bool, fallback func()) error {
	if fallback == nil {
		return ErrNilCallback
	}
	s, err := r.route(name)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Closed() {
			return ErrClosed
		}

		if s.Count() >= 1 {
			ok, err := s.WaitTimeout(ctx, raceWait)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
			continue
		}

		fallback()

		if loop && s.Count() < 1 {
			continue
		}
		return s.Wait(ctx)
	}
}

// ContinueOrRedirectAsync runs ContinueOrRedirect in its own goroutine.
func (r *Router[N]) ContinueOrRedirectAsync(
	ctx context.Context, name N, loop bool, fallback func(),
) *future.Future[struct{}] {
	return future.Go(func() (struct{}, error) {
		return struct{}{}, r.ContinueOrRedirect(ctx, name, loop, fallback)
	})
}

// WaitOrRedirect waits up to timeout for the route; on each timeout it invokes fallback
// and waits again, until a unit is acquired or ctx ends.
func (r *Router[N]) WaitOrRedirect(ctx context.Context, name N, timeout time.Duration, fallback func()) error {
	if fallback == nil {
		return ErrNilCallback
	}
	s, err := r.route(name)
	if err != nil {
		return err
	}

	for {
		ok, err := s.WaitTimeout(ctx, timeout)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		fallback()
	}
}

// Close closes every route signal exactly once; blocked waiters return ErrClosed.
func (r *Router[N]) Close() {
	r.closeOnce.Do(func() {
		for _, s := range r.routes {
			s.Close()
		}
	})
}

func (r *Router[N]) resolve(names []N) ([]*Signal, error) {
	sigs := make([]*Signal, 0, len(names))
	for _, name := range names {
		s, err := r.route(name)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, s)
	}
	return sigs, nil
}
