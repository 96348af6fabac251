// Package interval runs functions repeatedly: a fixed number of times, until a context
// ends, or on a cron schedule. Every runner works in its own goroutine and reports
// through a future resolved with the number of completed runs.
package interval

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ygrebnov/errorc"

	"github.com/ygrebnov/threading/future"
)

const Namespace = "interval"

var (
	ErrInvalidIterations = errors.New(Namespace + ": iterations must be at least 1")
	ErrInvalidPeriod     = errors.New(Namespace + ": period must be positive")
	ErrInvalidSchedule   = errors.New(Namespace + ": invalid schedule")
	ErrNilFunc           = errors.New(Namespace + ": function must not be nil")
)

// parser accepts standard five-field specs, an optional leading seconds field and
// descriptors such as "@hourly" or "@every 5m".
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Repeat calls fn iterations times, waiting period before each call.
//
// Semantics:
//   - The future resolves with iterations once the last call returns.
//   - If ctx ends first, no further calls are made and the future resolves with the
//     number of completed calls and ctx.Err().
//   - Calls never overlap; a call running longer than period delays the next tick.
func Repeat(ctx context.Context, period time.Duration, iterations int, fn func()) *future.Future[int] {
	if iterations < 1 {
		return future.Resolved(0, errorc.With(ErrInvalidIterations, errorc.String("iterations", strconv.Itoa(iterations))))
	}
	if err := validate(period, fn); err != nil {
		return future.Resolved(0, err)
	}
	return future.Go(func() (int, error) {
		return tick(ctx, period, iterations, fn)
	})
}

// Every calls fn every period until ctx ends. The future resolves with the number of
// calls made; ending ctx is the normal way to stop, so it carries no error.
func Every(ctx context.Context, period time.Duration, fn func()) *future.Future[int] {
	if err := validate(period, fn); err != nil {
		return future.Resolved(0, err)
	}
	return future.Go(func() (int, error) {
		n, _ := tick(ctx, period, -1, fn)
		return n, nil
	})
}

func validate(period time.Duration, fn func()) error {
	if period <= 0 {
		return errorc.With(ErrInvalidPeriod, errorc.String("period", period.String()))
	}
	if fn == nil {
		return ErrNilFunc
	}
	return nil
}

// tick runs fn on a ticker; limit < 0 means no limit.
func tick(ctx context.Context, period time.Duration, limit int, fn func()) (int, error) {
	t := time.NewTicker(period)
	defer t.Stop()

	n := 0
	for limit < 0 || n < limit {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-t.C:
		}
		fn()
		n++
	}
	return n, nil
}

// Cron calls fn at the times described by spec until ctx ends.
// The future resolves with the number of calls; a spec that does not parse resolves it
// at once with ErrInvalidSchedule.
//
// Example:
//
//	runs := interval.Cron(ctx, "*/5 * * * *", rotateLogs)
//	...
//	cancel()
//	n, _ := runs.Await()
func Cron(ctx context.Context, spec string, fn func()) *future.Future[int] {
	sched, err := parser.Parse(spec)
	if err != nil {
		return future.Resolved(0, errorc.With(ErrInvalidSchedule,
			errorc.String("spec", spec),
			errorc.String("reason", err.Error())))
	}
	return Schedule(ctx, sched, fn)
}

// Schedule calls fn at the activation times of sched until ctx ends, or until sched
// reports no further activation (a zero time).
func Schedule(ctx context.Context, sched cron.Schedule, fn func()) *future.Future[int] {
	if sched == nil {
		return future.Resolved(0, errorc.With(ErrInvalidSchedule, errorc.String("reason", "nil schedule")))
	}
	if fn == nil {
		return future.Resolved(0, ErrNilFunc)
	}
	return future.Go(func() (int, error) {
		n := 0
		for {
			next := sched.Next(time.Now())
			if next.IsZero() {
				return n, nil
			}
			t := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				t.Stop()
				return n, nil
			case <-t.C:
			}
			fn()
			n++
		}
	})
}
