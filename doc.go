// Package threading provides a small concurrency runtime built around WorkerPool: a
// bounded, lazily grown set of workers draining a shared queue of work items.
//
// Constructors
//   - New(ctx, opts ...Option): options-based constructor. Canceling ctx stops the pool.
//   - OptionsFromEnv(prefix): options read from environment variables.
//   - ForEach(ctx, items, fn, opts...): runs fn over a slice on a temporary pool and
//     returns the joined item failures.
//
// Defaults
// Unless overridden, the following defaults apply to a newly created pool:
//   - Threads: runtime.NumCPU()
//   - MaxQueued: equal to Threads
//   - Rate: 0 (one item per wake)
//   - Priority: PriorityNormal
//   - IdleTimeout: 0 (workers live until the pool stops)
//   - Metrics: no-op provider
//   - Logger: zerolog.Nop()
//
// Admission
// Enqueue never blocks: it fails with ErrQueueFull when MaxQueued items are waiting,
// and the rejected item is not queued. Callers needing backpressure check HasCapacity
// or wait with WaitUntilIdle.
//
// Faults
// A panicking work item, or an EnqueueErr item returning an error, never kills its
// worker. The failure is wrapped in an *ItemError carrying the item index and handed to
// the handler set with WithFaultHandler; without a handler it is logged. Failed items
// are not retried.
//
// Related packages
//   - signals: counting signals and the named signal Router.
//   - broadcast: channel-addressed fan-out Engine.
//   - dispatch: event listeners running on a WorkerPool.
//   - interval: repeating timers.
//   - future: the Future type returned by asynchronous operations.
package threading
