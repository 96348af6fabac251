// Package metrics defines the instruments the worker pool and the broadcast engine
// record into, and three providers for them: BasicProvider (in-memory, for tests and
// snapshots), NoopProvider (the default) and PrometheusProvider.
package metrics

// Provider constructs named instruments. Asking twice for the same name returns the
// same instrument. Implementations must be safe for concurrent use.
type Provider interface {
	Counter(name string, opts ...InstrumentOption) Counter
	UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter
	Histogram(name string, opts ...InstrumentOption) Histogram
}

// Counter records monotonic counts, such as completed work items or dropped messages.
type Counter interface {
	Add(n int64)
}

// UpDownCounter records a level, such as pending items or live workers.
type UpDownCounter interface {
	Add(n int64)
}

// Histogram records measurements, such as item durations in seconds.
type Histogram interface {
	Record(v float64)
}

// InstrumentConfig is the optional metadata of an instrument.
type InstrumentConfig struct {
	Description string
	Unit        string
	// Attributes are static labels of the instrument. Keep cardinality bounded.
	Attributes map[string]string
}

// InstrumentOption sets InstrumentConfig fields.
type InstrumentOption func(*InstrumentConfig)

func WithDescription(desc string) InstrumentOption {
	return func(c *InstrumentConfig) { c.Description = desc }
}

// WithUnit sets the unit, e.g. "seconds".
func WithUnit(unit string) InstrumentOption {
	return func(c *InstrumentConfig) { c.Unit = unit }
}

// WithAttributes adds static labels. attrs is copied.
func WithAttributes(attrs map[string]string) InstrumentOption {
	return func(c *InstrumentConfig) {
		if len(attrs) == 0 {
			return
		}
		if c.Attributes == nil {
			c.Attributes = make(map[string]string, len(attrs))
		}
		for k, v := range attrs {
			c.Attributes[k] = v
		}
	}
}

func applyOptions(opts []InstrumentOption) InstrumentConfig {
	var cfg InstrumentConfig
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	return cfg
}
