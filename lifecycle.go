package threading

import (
	"sync"
)

// idleTracker holds the callbacks waiting for the pool to become idle.
//
// Semantics:
//   - Registered callbacks run exactly once, at the next transition of the pending
//     count to zero, or when the pool stops, whichever comes first.
//   - Callbacks run outside the tracker lock, on the goroutine causing the transition.
//   - After stop, registration runs the callback at once.
type idleTracker struct {
	mu         sync.Mutex
	finalizers []func()
	stopped    bool
}

// register adds fn. If ready reports true under the tracker lock, fn runs immediately.
// Checking ready under the lock closes the gap between a caller's check and a concurrent
// transition firing the tracker.
func (t *idleTracker) register(fn func(), ready func() bool) {
	t.mu.Lock()
	if t.stopped || (ready != nil && ready()) {
		t.mu.Unlock()
		fn()
		return
	}
	t.finalizers = append(t.finalizers, fn)
	t.mu.Unlock()
}

// fire runs and clears the registered callbacks.
func (t *idleTracker) fire() {
	t.mu.Lock()
	fns := t.finalizers
	t.finalizers = nil
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// stop runs the registered callbacks and makes later registrations run immediately.
func (t *idleTracker) stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.fire()
}
