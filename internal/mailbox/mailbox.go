// Package mailbox implements the bounded multi-producer/multi-consumer queue shared by the
// worker pool and the broadcast engine: a ring buffer guarded by a mutex, paired with a
// counting signal that wakes one consumer per pushed item.
package mailbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/ygrebnov/threading/signals"
)

const Namespace = "mailbox"

var (
	ErrFull   = errors.New(Namespace + ": mailbox is full")
	ErrClosed = errors.New(Namespace + ": mailbox is closed")
	ErrIdle   = errors.New(Namespace + ": no item arrived within the idle timeout")
)

// Mailbox is a bounded FIFO of T values.
//
// Semantics:
//   - TryPush never blocks; it fails with ErrFull at capacity and ErrClosed after Close.
//   - Every accepted push releases one unit on the gate. A consumer takes one unit per
//     wake and may remove more items than that; the surplus units it cannot take back
//     only cause empty wakes, so no item is ever left without a unit.
//   - After Close, consumers drain what is queued and then receive ErrClosed.
type Mailbox[T any] struct {
	mu       sync.Mutex
	items    *queue.Queue
	capacity int // 0 = unbounded
	closed   bool
	gate     *signals.Signal
}

// New creates a mailbox holding at most capacity items; 0 means unbounded.
func New[T any](capacity int) *Mailbox[T] {
	if capacity < 0 {
		capacity = 0
	}
	// An unbounded gate cannot fail on initial = 0.
	gate, _ := signals.NewSignal(0, 0)
	return &Mailbox[T]{
		items:    queue.New(),
		capacity: capacity,
		gate:     gate,
	}
}

// TryPush appends v if the mailbox is open and below capacity.
func (m *Mailbox[T]) TryPush(v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.capacity > 0 && m.items.Length() >= m.capacity {
		return ErrFull
	}
	m.items.Add(v)
	// The gate is unbounded and only closed together with the mailbox.
	_ = m.gate.Release(1)
	return nil
}

// Pop blocks for one item. See PopBatch for the error semantics.
func (m *Mailbox[T]) Pop(ctx context.Context, idle time.Duration) (T, error) {
	var zero T
	for {
		batch, err := m.PopBatch(ctx, idle, nil, 1)
		if err != nil {
			return zero, err
		}
		if len(batch) == 1 {
			return batch[0], nil
		}
	}
}

// PopBatch waits for one gate unit and then moves up to max queued items into buf[:0].
//
// Semantics:
//   - idle <= 0 waits without a time limit; otherwise ErrIdle is returned when no unit
//     arrives within idle.
//   - The returned batch may be empty after a surplus wake; callers simply retry.
//   - ctx errors are returned as is; ErrClosed once the mailbox is closed and drained.
func (m *Mailbox[T]) PopBatch(ctx context.Context, idle time.Duration, buf []T, max int) ([]T, error) {
	if max < 1 {
		max = 1
	}

	ok, err := m.gate.WaitTimeout(ctx, waitLimit(idle))
	if err != nil {
		if errors.Is(err, signals.ErrClosed) {
			return buf[:0], ErrClosed
		}
		return buf[:0], err
	}
	if !ok {
		return buf[:0], ErrIdle
	}

	m.mu.Lock()
	batch := buf[:0]
	for len(batch) < max && m.items.Length() > 0 {
		v, _ := m.items.Remove().(T)
		batch = append(batch, v)
	}
	drained := m.closed && m.items.Length() == 0
	m.mu.Unlock()

	// One unit was taken by the wait; take back one per extra item if still there.
	for i := 1; i < len(batch); i++ {
		if !m.gate.TryWait() {
			break
		}
	}
	if drained {
		m.gate.Close()
	}
	return batch, nil
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items.Length()
}

// Cap returns the capacity; 0 means unbounded.
func (m *Mailbox[T]) Cap() int { return m.capacity }

// Close stops accepting items. Queued items remain available to consumers.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	empty := m.items.Length() == 0
	m.mu.Unlock()

	if empty {
		m.gate.Close()
	}
}

// Discard closes the mailbox, removes every queued item and returns them.
// Blocked consumers are woken with ErrClosed.
func (m *Mailbox[T]) Discard() []T {
	m.mu.Lock()
	m.closed = true
	out := make([]T, 0, m.items.Length())
	for m.items.Length() > 0 {
		v, _ := m.items.Remove().(T)
		out = append(out, v)
	}
	m.mu.Unlock()

	m.gate.Close()
	return out
}

func waitLimit(idle time.Duration) time.Duration {
	if idle <= 0 {
		return -1
	}
	return idle
}
