package signals

import "errors"

const Namespace = "signals"

var (
	ErrInvalidCount = errors.New(Namespace + ": invalid signal count")
	ErrSignalFull   = errors.New(Namespace + ": release would exceed the signal maximum count")
	ErrClosed       = errors.New(Namespace + ": signal is closed")
	ErrInvalidEnum  = errors.New(Namespace + ": route type is not a closed enumeration")
	ErrUnknownRoute = errors.New(Namespace + ": route is not a member of the enumeration")
	ErrNoRoutes     = errors.New(Namespace + ": no routes provided")
	ErrNilCallback  = errors.New(Namespace + ": callback must not be nil")
)
