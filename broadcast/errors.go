package broadcast

import "errors"

const Namespace = "broadcast"

var (
	ErrNilSubscriber        = errors.New(Namespace + ": subscriber must not be nil")
	ErrInvalidConfig        = errors.New(Namespace + ": invalid configuration")
	ErrSubscriberPanicked   = errors.New(Namespace + ": subscriber panicked")
	ErrFaultHandlerPanicked = errors.New(Namespace + ": fault handler panicked")
	ErrCompleted            = errors.New(Namespace + ": observable is completed")
)
