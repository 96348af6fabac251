package broadcast

import (
	"strconv"

	"github.com/rs/zerolog"
	"github.com/ygrebnov/errorc"
	"golang.org/x/time/rate"

	"github.com/ygrebnov/threading/metrics"
)

// config holds Engine configuration.
type config struct {
	// MaxParallelism bounds how many messages are dispatched at once.
	// Default: 1
	MaxParallelism int

	// MaxMailbox bounds how many accepted messages may be outstanding, queued or in
	// dispatch. Posts beyond it are dropped.
	// Default: 0 (unbounded)
	MaxMailbox int

	// DispatchRate limits how many messages per second start their fan-out.
	// Default: rate.Inf (no limit)
	DispatchRate  rate.Limit
	DispatchBurst int

	// SubscriberLimit bounds how many subscribers of one message run at once.
	// Default: 0 (all of them)
	SubscriberLimit int

	// FaultHandler receives every subscriber failure as a *SubscriberError.
	// Default: nil (faults are logged and joined into the Completion error)
	FaultHandler func(error)

	// Metrics provider for engine instruments.
	// Default: metrics.NoopProvider
	Metrics metrics.Provider

	// Logger for lifecycle events, drops and unhandled faults.
	// Default: zerolog.Nop()
	Logger zerolog.Logger
}

func defaultConfig() config {
	return config{
		MaxParallelism: 1,
		MaxMailbox:     0,
		DispatchRate:   rate.Inf,
		Metrics:        metrics.NewNoopProvider(),
		Logger:         zerolog.Nop(),
	}
}

func validateConfig(cfg *config) error {
	if cfg.MaxParallelism < 1 {
		return errorc.With(ErrInvalidConfig, errorc.String("max_parallelism", strconv.Itoa(cfg.MaxParallelism)))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopProvider()
	}
	return nil
}

// Option configures an Engine.
type Option func(*config) error

// WithMaxParallelism sets how many messages are dispatched concurrently (must be > 0).
func WithMaxParallelism(n int) Option {
	return func(cfg *config) error {
		if n < 1 {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithMaxParallelism requires n > 0"))
		}
		cfg.MaxParallelism = n
		return nil
	}
}

// WithMaxMailbox bounds the outstanding messages, queued or in dispatch; 0 means unbounded.
func WithMaxMailbox(n int) Option {
	return func(cfg *config) error {
		if n < 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithMaxMailbox requires n >= 0"))
		}
		cfg.MaxMailbox = n
		return nil
	}
}

// WithDispatchRate limits message dispatch to limit messages per second with the given burst.
// Messages wait for their turn in the drain loop; posting is never slowed down.
func WithDispatchRate(limit rate.Limit, burst int) Option {
	return func(cfg *config) error {
		if limit <= 0 || burst < 1 {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithDispatchRate requires limit > 0 and burst > 0"))
		}
		cfg.DispatchRate = limit
		cfg.DispatchBurst = burst
		return nil
	}
}

// WithSubscriberLimit bounds how many subscribers of one message run at once; 0 means no bound.
func WithSubscriberLimit(n int) Option {
	return func(cfg *config) error {
		if n < 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithSubscriberLimit requires n >= 0"))
		}
		cfg.SubscriberLimit = n
		return nil
	}
}

// WithFaultHandler routes subscriber failures to fn instead of the Completion error.
func WithFaultHandler(fn func(error)) Option {
	return func(cfg *config) error {
		if fn == nil {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithFaultHandler requires a non-nil handler"))
		}
		cfg.FaultHandler = fn
		return nil
	}
}

// WithMetrics sets the metrics provider. A nil provider disables metrics.
func WithMetrics(p metrics.Provider) Option {
	return func(cfg *config) error { cfg.Metrics = p; return nil }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(cfg *config) error { cfg.Logger = l; return nil }
}
