package threading

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/ygrebnov/errorc"

	"github.com/ygrebnov/threading/metrics"
)

// config holds WorkerPool configuration.
type config struct {
	// Threads defines the maximum number of worker threads.
	// Default: runtime.NumCPU()
	Threads uint

	// MaxQueued defines how many items may wait in the queue at once.
	// Enqueue beyond it fails with ErrQueueFull.
	// Default: 0, meaning the value of Threads.
	MaxQueued uint

	// Rate defines how many items a worker drains per wake.
	// Default: 0 (one item per wake)
	Rate uint

	// Priority of the worker threads. Only applied on Linux.
	// Default: PriorityNormal
	Priority Priority

	// IdleTimeout retires a worker after waiting that long without work.
	// The slot is reused by the next spawn.
	// Default: 0 (workers live until the pool stops)
	IdleTimeout time.Duration

	// FaultHandler receives every work item failure as an *ItemError.
	// Default: nil (faults are logged and dropped)
	FaultHandler func(error)

	// Metrics provider for pool instruments.
	// Default: metrics.NoopProvider
	Metrics metrics.Provider

	// Logger for lifecycle events and unhandled faults.
	// Default: zerolog.Nop()
	Logger zerolog.Logger
}

// defaultConfig centralizes default values for config.
func defaultConfig() config {
	return config{
		Threads:     uint(runtime.NumCPU()),
		MaxQueued:   0,
		Rate:        0,
		Priority:    PriorityNormal,
		IdleTimeout: 0,
		Metrics:     metrics.NewNoopProvider(),
		Logger:      zerolog.Nop(),
	}
}

// validateConfig checks invariants and resolves derived defaults.
func validateConfig(cfg *config) error {
	if cfg.Threads == 0 {
		return errorc.With(ErrInvalidConfig, errorc.String("threads", "must be > 0"))
	}
	if cfg.MaxQueued == 0 {
		cfg.MaxQueued = cfg.Threads
	}
	if !cfg.Priority.valid() {
		return errorc.With(ErrInvalidConfig, errorc.String("priority", cfg.Priority.String()))
	}
	if cfg.IdleTimeout < 0 {
		return errorc.With(ErrInvalidConfig, errorc.String("idle_timeout", cfg.IdleTimeout.String()))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopProvider()
	}
	return nil
}

// Option configures a WorkerPool. Use New(ctx, opts...) to construct a pool via options.
type Option func(*config) error

// WithThreads sets the maximum number of worker threads (must be > 0).
func WithThreads(n uint) Option {
	return func(cfg *config) error {
		if n == 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithThreads requires n > 0"))
		}
		cfg.Threads = n
		return nil
	}
}

// WithMaxQueued sets the queue bound (must be > 0; defaults to the thread count).
func WithMaxQueued(n uint) Option {
	return func(cfg *config) error {
		if n == 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithMaxQueued requires n > 0"))
		}
		cfg.MaxQueued = n
		return nil
	}
}

// WithRate makes each worker drain up to n items per wake. 0 and 1 both mean one item.
func WithRate(n uint) Option {
	return func(cfg *config) error { cfg.Rate = n; return nil }
}

// WithPriority sets the worker thread priority.
func WithPriority(p Priority) Option {
	return func(cfg *config) error {
		if !p.valid() {
			return errorc.With(ErrInvalidConfig, errorc.String("priority", p.String()))
		}
		cfg.Priority = p
		return nil
	}
}

// WithIdleTimeout retires workers idle for longer than d. Zero disables retirement.
func WithIdleTimeout(d time.Duration) Option {
	return func(cfg *config) error {
		if d < 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("idle_timeout", d.String()))
		}
		cfg.IdleTimeout = d
		return nil
	}
}

// WithFaultHandler routes work item failures to fn instead of the logger.
// fn runs on the worker that executed the item and must not block for long.
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
