package threading

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ygrebnov/threading/future"
	"github.com/ygrebnov/threading/internal/mailbox"
	"github.com/ygrebnov/threading/metrics"
	"github.com/ygrebnov/threading/pool"
)

// WorkItem is a unit of work executed by a WorkerPool.
type WorkItem func()

type queuedItem struct {
	run   func() error
	index int
}

// WorkerPool executes queued work items on a bounded, lazily grown set of workers.
// WorkerPool is a concrete struct; methods are safe for concurrent use.
type WorkerPool struct {
	// noCopy prevents accidental copying of the controller.
	//go:nocopy
	nc noCopy

	cfg config
	log zerolog.Logger

	// ctx is canceled by StopQueue and aborts blocked workers.
	ctx          context.Context
	cancel       context.CancelFunc
	stopOnParent func() bool
	stopOnce     sync.Once

	// mu serializes admission, worker spawn and idle retirement.
	mu      sync.Mutex
	queue   *mailbox.Mailbox[queuedItem]
	slots   *pool.Slots
	workers sync.WaitGroup

	pending   atomic.Int64
	cancelled atomic.Bool
	seq       atomic.Int64

	idle idleTracker
	m    poolInstruments
}

type poolInstruments struct {
	completed metrics.Counter
	faults    metrics.Counter
	rejected  metrics.Counter
	duration  metrics.Histogram
	pending   metrics.UpDownCounter
	workers   metrics.UpDownCounter
}

func newPoolInstruments(p metrics.Provider) poolInstruments {
	return poolInstruments{
		completed: p.Counter("threading_items_completed_total",
			metrics.WithDescription("Work items completed without a fault.")),
		faults: p.Counter("threading_items_faults_total",
			metrics.WithDescription("Work items that panicked or returned an error.")),
		rejected: p.Counter("threading_items_rejected_total",
			metrics.WithDescription("Enqueue calls rejected because the queue was full.")),
		duration: p.Histogram("threading_item_duration_seconds",
			metrics.WithDescription("Work item execution time."), metrics.WithUnit("seconds")),
		pending: p.UpDownCounter("threading_pending_items",
			metrics.WithDescription("Work items enqueued but not finished.")),
		workers: p.UpDownCounter("threading_workers_alive",
			metrics.WithDescription("Live worker threads.")),
	}
}

// noCopy is a vet-recognized marker to discourage copying types with this field embedded.
// It works with the "-copylocks" analyzer via the presence of Lock/Unlock methods.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// New creates a WorkerPool using functional options.
// Canceling ctx has the same effect as StopQueue.
func New(ctx context.Context, opts ...Option) (*WorkerPool, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}

	p := &WorkerPool{
		cfg:   cfg,
		log:   cfg.Logger.With().Str("component", "threading.pool").Logger(),
		queue: mailbox.New[queuedItem](int(cfg.MaxQueued)),
		slots: pool.NewSlots(cfg.Threads),
		m:     newPoolInstruments(cfg.Metrics),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Lock()
	p.stopOnParent = context.AfterFunc(ctx, p.StopQueue)
	p.mu.Unlock()

	p.log.Debug().
		Uint("threads", cfg.Threads).
		Uint("max_queued", cfg.MaxQueued).
		Uint("rate", cfg.Rate).
		Stringer("priority", cfg.Priority).
		Dur("idle_timeout", cfg.IdleTimeout).
		Msg("pool created")
	return p, nil
}

// Enqueue schedules work for execution.
//
// Semantics:
//   - Never blocks. Fails with ErrNilWorkItem for a nil item, with ErrPoolStopped after
//     StopQueue and with ErrQueueFull when MaxQueued items are already waiting.
//   - A rejected item is never queued; an accepted one counts as pending until it has run.
//   - Starts a new worker when fewer than Threads workers are alive.
//   - A panic inside work is recovered and reported as an *ItemError.
func (p *WorkerPool) Enqueue(work WorkItem) error {
	if work == nil {
		return ErrNilWorkItem
	}
	return p.admit(func() error { work(); return nil })
}

// EnqueueErr is Enqueue for work returning an error. A non-nil error is a fault,
// reported like a panic.
func (p *WorkerPool) EnqueueErr(work func() error) error {
	if work == nil {
		return ErrNilWorkItem
	}
	return p.admit(work)
}

func (p *WorkerPool) admit(run func() error) error {
	p.mu.Lock()
	if p.cancelled.Load() {
		p.mu.Unlock()
		return ErrPoolStopped
	}

	// pending grows before the item becomes visible to workers.
	p.pending.Add(1)
	p.m.pending.Add(1)
	err := p.queue.TryPush(queuedItem{run: run, index: int(p.seq.Load())})
	if err == nil {
		p.seq.Add(1)
		p.spawnLocked()
	}
	p.mu.Unlock()

	if err == nil {
		return nil
	}
	// The item never became visible; finish it outside the lock in case it was the last one.
	p.finish(1)
	if errors.Is(err, mailbox.ErrFull) {
		p.m.rejected.Add(1)
		return ErrQueueFull
	}
	return ErrPoolStopped
}

// spawnLocked starts a worker if a slot is free. p.mu must be held.
func (p *WorkerPool) spawnLocked() {
	slot, ok := p.slots.Acquire()
	if !ok {
		return
	}
	p.workers.Add(1)
	p.m.workers.Add(1)
	go p.runWorker(slot)
}

// finish accounts n items as done and fires the idle callbacks on the transition to zero.
func (p *WorkerPool) finish(n int) {
	p.m.pending.Add(-int64(n))
	if p.pending.Add(-int64(n)) == 0 {
		p.idle.fire()
	}
}

// StopQueue stops the pool permanently.
//
// Semantics:
//   - Idempotent and safe for concurrent use.
//   - Later Enqueue calls fail with ErrPoolStopped.
//   - Queued items are discarded without running; items already running complete.
//   - Workers exit at their next iteration; pending idle callbacks and waits are released.
func (p *WorkerPool) StopQueue() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.cancelled.Store(true)
		dropped := p.queue.Discard()
		stopOnParent := p.stopOnParent
		p.mu.Unlock()

		p.cancel()
		stopOnParent()
		if len(dropped) > 0 {
			p.finish(len(dropped))
		}
		p.idle.stop()

		p.log.Info().Int("dropped", len(dropped)).Msg("pool stopped")
	})
}

// Close stops the pool like StopQueue and waits until every worker has exited,
// so no work item runs after Close returns.
func (p *WorkerPool) Close() {
	p.StopQueue()
	p.workers.Wait()
}

// WaitUntilIdleAsync returns a future resolved once no item is pending or the pool is stopped.
// The future is resolved by the worker finishing the last pending item; nothing polls.
func (p *WorkerPool) WaitUntilIdleAsync() *future.Future[struct{}] {
	f, resolve := future.NewPromise[struct{}]()
	p.idle.register(
		func() { resolve(struct{}{}, nil) },
		func() bool { return p.pending.Load() == 0 || p.cancelled.Load() },
	)
	return f
}

// WaitUntilIdle blocks until no item is pending or the pool is stopped.
func (p *WorkerPool) WaitUntilIdle() {
	_, _ = p.WaitUntilIdleAsync().Await()
}

// OnIdle registers fn to run once, the next time the pending count drops to zero,
// or when the pool stops. fn runs on the goroutine finishing the last item.
func (p *WorkerPool) OnIdle(fn func()) error {
	if fn == nil {
		return ErrNilCallback
	}
	if p.cancelled.Load() {
		return ErrPoolStopped
	}
	p.idle.register(fn, nil)
	return nil
}

// HasCapacity reports whether an Enqueue right now would not fail with ErrQueueFull.
func (p *WorkerPool) HasCapacity() bool {
	return !p.cancelled.Load() && p.queue.Len() < p.queue.Cap()
}

// IsIdle reports whether no item is pending.
func (p *WorkerPool) IsIdle() bool { return p.pending.Load() == 0 }

// IsStopped reports whether StopQueue has been called.
func (p *WorkerPool) IsStopped() bool { return p.cancelled.Load() }

// PendingCount returns the number of items enqueued and not yet finished.
func (p *WorkerPool) PendingCount() int { return int(p.pending.Load()) }

// ThreadsUsed returns the number of live workers.
func (p *WorkerPool) ThreadsUsed() int { return p.slots.Alive() }

// MaxCapacity returns the maximum number of workers.
func (p *WorkerPool) MaxCapacity() int { return p.slots.Capacity() }

// MaxQueued returns the queue bound.
func (p *WorkerPool) MaxQueued() int { return p.queue.Cap() }
