package threading

import "errors"

const Namespace = "threading"

var (
	ErrNilWorkItem   = errors.New(Namespace + ": work item must not be nil")
	ErrNilCallback   = errors.New(Namespace + ": callback must not be nil")
	ErrQueueFull     = errors.New(Namespace + ": work queue is full")
	ErrPoolStopped   = errors.New(Namespace + ": pool is stopped")
	ErrItemPanicked  = errors.New(Namespace + ": work item panicked")
	ErrInvalidConfig = errors.New(Namespace + ": invalid configuration")
)
