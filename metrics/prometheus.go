package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider adapts Provider to a Prometheus registry.
// Counters map to prometheus.Counter, up/down counters to prometheus.Gauge and histograms
// to prometheus.Histogram with the default buckets. Instrument attributes become constant labels.
//
// Instruments are registered on first use and reused for the same name. A collector already
// registered under the same descriptor by someone else is reused as well.
type PrometheusProvider struct {
	reg       prometheus.Registerer
	namespace string

	mu         sync.Mutex
	counters   map[string]Counter
	updowns    map[string]UpDownCounter
	histograms map[string]Histogram
}

// NewPrometheusProvider returns a provider registering its collectors on reg
// (prometheus.DefaultRegisterer when nil). namespace is prepended to every metric name.
func NewPrometheusProvider(reg prometheus.Registerer, namespace string) *PrometheusProvider {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusProvider{
		reg:        reg,
		namespace:  namespace,
		counters:   make(map[string]Counter),
		updowns:    make(map[string]UpDownCounter),
		histograms: make(map[string]Histogram),
	}
}

// Counter returns a monotonic counter instrument for the given name (created once).
func (p *PrometheusProvider) Counter(name string, opts ...InstrumentOption) Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[name]; ok {
		return c
	}
	cfg := applyOptions(opts)
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   p.namespace,
		Name:        name,
		Help:        help(name, cfg),
		ConstLabels: cfg.Attributes,
	})
	out := promCounter{register(p.reg, c)}
	p.counters[name] = out
	return out
}

// UpDownCounter returns a gauge-backed instrument for the given name (created once).
func (p *PrometheusProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if u, ok := p.updowns[name]; ok {
		return u
	}
	cfg := applyOptions(opts)
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   p.namespace,
		Name:        name,
		Help:        help(name, cfg),
		ConstLabels: cfg.Attributes,
	})
	out := promGauge{register(p.reg, g)}
	p.updowns[name] = out
	return out
}

// Histogram returns a histogram instrument for the given name (created once).
func (p *PrometheusProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[name]; ok {
		return h
	}
	cfg := applyOptions(opts)
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   p.namespace,
		Name:        name,
		Help:        help(name, cfg),
		ConstLabels: cfg.Attributes,
		Buckets:     prometheus.DefBuckets,
	})
	out := promHistogram{register(p.reg, h)}
	p.histograms[name] = out
	return out
}

// register registers c, falling back to an equal collector that is already registered.
// Any other registration error leaves c unregistered but usable.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func help(name string, cfg InstrumentConfig) string {
	if cfg.Description != "" {
		return cfg.Description
	}
	return name
}

type promCounter struct{ c prometheus.Counter }

// Add ignores negative values; Prometheus counters cannot decrease.
func (c promCounter) Add(n int64) {
	if n > 0 {
		c.c.Add(float64(n))
	}
}

type promGauge struct{ g prometheus.Gauge }

func (g promGauge) Add(n int64) { g.g.Add(float64(n)) }

type promHistogram struct{ h prometheus.Histogram }

func (h promHistogram) Record(v float64) { h.h.Observe(v) }
