package threading

import (
	"errors"
	"fmt"
)

// ItemError tags a work item failure with the item's enqueue index.
// Indexes start at 0 and follow the order in which Enqueue/EnqueueErr accepted the items.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string { return e.Err.Error() }
func (e *ItemError) Unwrap() error { return e.Err }

func (e *ItemError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "item(index=%d): %+v", e.Index, e.Err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

func newItemError(err error, index int) error {
	if err == nil {
		return nil
	}
	return &ItemError{Index: index, Err: err}
}

// ExtractItemIndex returns the work item index from err if present.
func ExtractItemIndex(err error) (int, bool) {
	var ie *ItemError
	if errors.As(err, &ie) {
		return ie.Index, true
	}
	return 0, false
}

// runItem calls fn, converting a panic into an ErrItemPanicked error.
func runItem(fn func() error) (err error) {
	defer func() {
		if ePanic := recover(); ePanic != nil {
			err = fmt.Errorf("%w: %v", ErrItemPanicked, ePanic)
		}
	}()
	return fn()
}
