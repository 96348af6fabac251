package threading

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig lists the pool settings read from the environment.
type envConfig struct {
	Threads     uint          `env:"THREADS"`
	MaxQueued   uint          `env:"MAX_QUEUED"`
	Rate        uint          `env:"RATE"`
	Priority    Priority      `env:"PRIORITY" envDefault:"normal"`
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT"`
}

// OptionsFromEnv builds pool options from environment variables named
// <prefix>THREADS, <prefix>MAX_QUEUED, <prefix>RATE, <prefix>PRIORITY and <prefix>IDLE_TIMEOUT.
// Unset or zero variables keep the defaults.
//
// Example:
//
//	// POOL_THREADS=8 POOL_RATE=4 POOL_PRIORITY=below_normal
//	opts, err := threading.OptionsFromEnv("POOL_")
//	if err != nil { ... }
//	p, err := threading.New(ctx, opts...)
func OptionsFromEnv(prefix string) ([]Option, error) {
	return optionsFromEnv(env.Options{Prefix: prefix})
}

func optionsFromEnv(opts env.Options) ([]Option, error) {
	var ec envConfig
	if err := env.ParseWithOptions(&ec, opts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	out := make([]Option, 0, 5)
	if ec.Threads > 0 {
		out = append(out, WithThreads(ec.Threads))
	}
	if ec.MaxQueued > 0 {
		out = append(out, WithMaxQueued(ec.MaxQueued))
	}
	if ec.Rate > 0 {
		out = append(out, WithRate(ec.Rate))
	}
	if ec.IdleTimeout != 0 {
		out = append(out, WithIdleTimeout(ec.IdleTimeout))
	}
	out = append(out, WithPriority(ec.Priority))
	return out, nil
}
