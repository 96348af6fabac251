package threading

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ForEach applies fn to every item on a temporary WorkerPool built from opts and waits
// for all of them.
//
// Semantics:
//   - MaxQueued is raised to len(items) so every item is admitted; the fault handler is
//     replaced by one collecting the failures.
//   - The result joins one *ItemError per failed item, ordered by item index.
//   - Canceling ctx stops the pool: items not yet started are skipped and ctx.Err() is
//     part of the result.
func ForEach[T any](ctx context.Context, items []T, fn func(context.Context, T) error, opts ...Option) error {
	if len(items) == 0 {
		return nil
	}
	if fn == nil {
		return ErrNilWorkItem
	}

	var mu sync.Mutex
	var faults []*ItemError
	collect := func(err error) {
		var ie *ItemError
		if !errors.As(err, &ie) {
			ie = &ItemError{Index: -1, Err: err}
		}
		mu.Lock()
		faults = append(faults, ie)
		mu.Unlock()
	}

	all := make([]Option, 0, len(opts)+2)
	all = append(all, opts...)
	all = append(all, WithMaxQueued(uint(len(items))), WithFaultHandler(collect))

	p, err := New(ctx, all...)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := p.EnqueueErr(func() error { return fn(ctx, item) }); err != nil {
			// Only a stopped pool rejects here; the queue holds every item.
			break
		}
	}
	p.WaitUntilIdle()
	p.Close()

	mu.Lock()
	defer mu.Unlock()
	slices.SortFunc(faults, func(a, b *ItemError) int { return a.Index - b.Index })

	errs := make([]error, 0, len(faults)+1)
	for _, f := range faults {
		errs = append(errs, f)
	}
	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}
