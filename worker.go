package threading

import (
	"errors"
	"runtime"
	"time"

	"github.com/ygrebnov/threading/internal/mailbox"
)

// batchSize is the number of items a worker drains per wake.
func (p *WorkerPool) batchSize() int { return int(max(p.cfg.Rate, 1)) }

// runWorker is the drain loop of the worker owning slot.
// It exits when the pool stops or, with an idle timeout, when no work arrived in time.
func (p *WorkerPool) runWorker(slot int) {
	defer func() {
		p.m.workers.Add(-1)
		p.workers.Done()
	}()

	log := p.log.With().Int("slot", slot).Logger()
	log.Debug().Msg("worker started")

	if p.cfg.Priority != PriorityNormal {
		// The thread stays locked so it terminates with the worker instead of returning
		// to the scheduler with a changed nice value.
		runtime.LockOSThread()
		if err := setThreadPriority(p.cfg.Priority); err != nil {
			log.Warn().Err(err).Stringer("priority", p.cfg.Priority).Msg("cannot apply thread priority")
		}
	}

	size := p.batchSize()
	buf := make([]queuedItem, 0, size)
	for {
		if p.cancelled.Load() {
			break
		}

		batch, err := p.queue.PopBatch(p.ctx, p.cfg.IdleTimeout, buf, size)
		if err != nil {
			if errors.Is(err, mailbox.ErrIdle) {
				if p.retireIdle(slot) {
					log.Debug().Msg("worker retired after idle timeout")
					return
				}
				continue
			}
			break
		}

		ok := p.runBatch(batch)
		clear(batch)
		buf = batch[:0]
		if !ok {
			break
		}
	}

	p.slots.Release(slot)
	log.Debug().Msg("worker stopped")
}

// retireIdle frees slot if the queue is empty. It shares p.mu with admission, so an item
// enqueued concurrently either keeps this worker alive or finds the slot free and spawns.
// A worker spawned into the freed slot may start before this goroutine has returned; the
// retiring one runs no further item, so at most Threads workers execute items at once.
func (p *WorkerPool) retireIdle(slot int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue.Len() > 0 {
		return false
	}
	p.slots.Release(slot)
	return true
}

// runBatch executes the batch in order. An item reached after cancellation is not run;
// it and the rest of the batch are accounted as finished. It reports false in that case.
func (p *WorkerPool) runBatch(batch []queuedItem) bool {
	for i, it := range batch {
		if p.cancelled.Load() {
			p.finish(len(batch) - i)
			return false
		}
		p.execute(it)
		p.finish(1)
	}
	return true
}

func (p *WorkerPool) execute(it queuedItem) {
	start := time.Now()
	err := runItem(it.run)
	p.m.duration.Record(time.Since(start).Seconds())

	if err == nil {
		p.m.completed.Add(1)
		return
	}
	p.m.faults.Add(1)
	p.fault(newItemError(err, it.index))
}

// fault reports a work item failure to the fault handler, or logs it.
func (p *WorkerPool) fault(err error) {
	if h := p.cfg.FaultHandler; h != nil {
		if herr := runItem(func() error { h(err); return nil }); herr != nil {
			p.log.Error().Err(herr).Msg("fault handler panicked")
		}
		return
	}
	idx, _ := ExtractItemIndex(err)
	p.log.Warn().Err(err).Int("index", idx).Msg("work item failed")
}
