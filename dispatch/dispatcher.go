// Package dispatch runs event listeners on a worker pool.
//
// Listeners are registered per event name. Dispatching an event enqueues one work item
// per listener; the pool decides when and where they run, so listeners of one event run
// concurrently and Dispatch returns without waiting for them.
package dispatch

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/ygrebnov/errorc"
)

const Namespace = "dispatch"

var (
	ErrNilPool       = errors.New(Namespace + ": pool must not be nil")
	ErrNilListener   = errors.New(Namespace + ": listener must not be nil")
	ErrEventNotFound = errors.New(Namespace + ": no listeners for event")
	ErrPayloadType   = errors.New(Namespace + ": payload type does not match listener")
)

// Pool runs work items. *threading.WorkerPool satisfies it.
type Pool interface {
	EnqueueErr(work func() error) error
}

// Listener handles the payload of an event.
type Listener func(payload any)

// Dispatcher maps event names to listeners.
type Dispatcher struct {
	pool Pool

	mu        sync.RWMutex
	listeners map[string][]func(any) error
}

// New returns a Dispatcher running listeners on pool.
func New(pool Pool) (*Dispatcher, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	return &Dispatcher{pool: pool, listeners: make(map[string][]func(any) error)}, nil
}

// Listen adds fn to the listeners of event.
func (d *Dispatcher) Listen(event string, fn Listener) error {
	if fn == nil {
		return ErrNilListener
	}
	d.add(event, func(payload any) error {
		fn(payload)
		return nil
	})
	return nil
}

func (d *Dispatcher) add(event string, fn func(any) error) {
	d.mu.Lock()
	d.listeners[event] = append(d.listeners[event], fn)
	d.mu.Unlock()
}

// ListenFor adds fn to the listeners of the event named after T.
// A payload of another type dispatched under that name is reported to the pool as an
// ErrPayloadType fault instead of reaching fn.
func ListenFor[T any](d *Dispatcher, fn func(payload T)) error {
	if fn == nil {
		return ErrNilListener
	}
	event := EventName[T]()
	d.add(event, func(payload any) error {
		v, ok := payload.(T)
		if !ok {
			return errorc.With(ErrPayloadType,
				errorc.String("event", event),
				errorc.String("payload", fmt.Sprintf("%T", payload)))
		}
		fn(v)
		return nil
	})
	return nil
}

// Dispatch enqueues one work item per listener of event.
//
// Semantics:
//   - ErrEventNotFound when event has no listeners.
//   - Listeners registered while Dispatch runs may or may not receive this payload.
//   - If the pool rejects an item (queue full, stopped) the remaining listeners are still
//     tried; the rejections are returned joined.
func (d *Dispatcher) Dispatch(event string, payload any) error {
	d.mu.RLock()
	listeners := d.listeners[event]
	d.mu.RUnlock()

	if len(listeners) == 0 {
		return errorc.With(ErrEventNotFound, errorc.String("event", event))
	}

	var errs []error
	for _, l := range listeners {
		if err := d.pool.EnqueueErr(func() error { return l(payload) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DispatchFor dispatches payload under the event named after T.
func DispatchFor[T any](d *Dispatcher, payload T) error {
	return d.Dispatch(EventName[T](), payload)
}

// EventName returns the event name used by ListenFor and DispatchFor for T: the type's
// import path qualified name, or its string form for unnamed types.
func EventName[T any]() string {
	t := reflect.TypeFor[T]()
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// Events returns the number of events with at least one listener.
func (d *Dispatcher) Events() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners)
}
