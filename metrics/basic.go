package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

// BasicProvider keeps instruments in memory so their values can be read back with
// Snapshot. It is safe for concurrent use.
type BasicProvider struct {
	counters   registry[*BasicCounter]
	updowns    registry[*BasicUpDownCounter]
	histograms registry[*BasicHistogram]

	metaMu sync.RWMutex
	meta   map[string]InstrumentConfig
}

func NewBasicProvider() *BasicProvider {
	return &BasicProvider{meta: make(map[string]InstrumentConfig)}
}

// registry maps names to instruments of one kind, creating each at most once.
type registry[I any] struct {
	mu    sync.RWMutex
	items map[string]I
}

func (r *registry[I]) get(name string, create func() I) (I, bool) {
	r.mu.RLock()
	v, ok := r.items[name]
	r.mu.RUnlock()
	if ok {
		return v, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok = r.items[name]; ok {
		return v, false
	}
	if r.items == nil {
		r.items = make(map[string]I)
	}
	v = create()
	r.items[name] = v
	return v, true
}

func (r *registry[I]) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.items))
	for n := range r.items {
		out = append(out, n)
	}
	return out
}

func (p *BasicProvider) remember(name string, created bool, opts []InstrumentOption) {
	if !created {
		return
	}
	cfg := applyOptions(opts)
	p.metaMu.Lock()
	p.meta[name] = cfg
	p.metaMu.Unlock()
}

func (p *BasicProvider) Counter(name string, opts ...InstrumentOption) Counter {
	c, created := p.counters.get(name, func() *BasicCounter { return &BasicCounter{} })
	p.remember(name, created, opts)
	return c
}

func (p *BasicProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	u, created := p.updowns.get(name, func() *BasicUpDownCounter { return &BasicUpDownCounter{} })
	p.remember(name, created, opts)
	return u
}

func (p *BasicProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	h, created := p.histograms.get(name, func() *BasicHistogram { return &BasicHistogram{} })
	p.remember(name, created, opts)
	return h
}

// Meta returns the metadata the named instrument was created with.
func (p *BasicProvider) Meta(name string) (InstrumentConfig, bool) {
	p.metaMu.RLock()
	defer p.metaMu.RUnlock()
	cfg, ok := p.meta[name]
	return cfg, ok
}

// Names returns the sorted names of every instrument created so far.
func (p *BasicProvider) Names() []string {
	out := p.counters.names()
	out = append(out, p.updowns.names()...)
	out = append(out, p.histograms.names()...)
	sort.Strings(out)
	return out
}

// BasicCounter is a monotonic counter. Non-positive increments are ignored.
type BasicCounter struct {
	val atomic.Int64
}

func (c *BasicCounter) Add(n int64) {
	if n > 0 {
		c.val.Add(n)
	}
}

func (c *BasicCounter) Snapshot() int64 { return c.val.Load() }

// BasicUpDownCounter holds a level that moves both ways.
type BasicUpDownCounter struct {
	val atomic.Int64
}

func (u *BasicUpDownCounter) Add(n int64) { u.val.Add(n) }

func (u *BasicUpDownCounter) Snapshot() int64 { return u.val.Load() }

// BasicHistogram aggregates count, sum, min and max. It keeps no buckets.
type BasicHistogram struct {
	mu    sync.Mutex
	count int64
	sum   float64
	min   float64
	max   float64
}

func (h *BasicHistogram) Record(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 || v < h.min {
		h.min = v
	}
	if h.count == 0 || v > h.max {
		h.max = v
	}
	h.count++
	h.sum += v
}

// HistSnapshot is a copy of a BasicHistogram's state. Min and Max are zero when
// nothing was recorded.
type HistSnapshot struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Mean  float64
}

func (h *BasicHistogram) Snapshot() HistSnapshot {
	h.mu.Lock()
	s := HistSnapshot{Count: h.count, Sum: h.sum, Min: h.min, Max: h.max}
	h.mu.Unlock()
	if s.Count > 0 {
		s.Mean = s.Sum / float64(s.Count)
	}
	return s
}
