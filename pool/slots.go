// Package pool holds the worker slot table of the worker pool.
package pool

import "sync"

// Slots is the worker slot table of a pool with a fixed maximum number of workers.
//
// Semantics:
//   - A slot is acquired before a worker starts and released when it terminates.
//   - Acquire reuses the lowest terminated slot first; it opens a new slot only while
//     fewer than capacity slots have ever been opened.
//   - At most capacity slots are alive at any time. A slot counts as free from Release
//     on, even if the goroutine that held it is still returning.
type Slots struct {
	mu       sync.Mutex
	alive    []bool // one entry per opened slot
	live     int
	capacity int
}

// NewSlots returns a slot table allowing at most capacity live workers.
func NewSlots(capacity uint) *Slots {
	return &Slots{
		alive:    make([]bool, 0, capacity),
		capacity: int(capacity),
	}
}

// Acquire marks a slot as alive and returns its index.
// ok is false when every slot is alive.
func (s *Slots) Acquire() (idx int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live == s.capacity {
		return -1, false
	}
	for i, alive := range s.alive {
		if !alive {
			s.alive[i] = true
			s.live++
			return i, true
		}
	}
	// live < capacity and no terminated slot: a new one fits.
	s.alive = append(s.alive, true)
	s.live++
	return len(s.alive) - 1, true
}

// Release marks the slot as terminated. Releasing an unknown or free slot is a no-op.
func (s *Slots) Release(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.alive) || !s.alive[idx] {
		return
	}
	s.alive[idx] = false
	s.live--
}

// Alive returns the number of live slots.
func (s *Slots) Alive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Spawned returns the number of slots ever opened.
func (s *Slots) Spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alive)
}

// Capacity returns the maximum number of live slots.
func (s *Slots) Capacity() int { return s.capacity }
