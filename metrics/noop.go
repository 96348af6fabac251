package metrics

// NoopProvider hands out instruments that record nothing. It is the default provider of
// the pool and the engine.
type NoopProvider struct{}

func NewNoopProvider() NoopProvider { return NoopProvider{} }

func (NoopProvider) Counter(string, ...InstrumentOption) Counter             { return discard{} }
func (NoopProvider) UpDownCounter(string, ...InstrumentOption) UpDownCounter { return discard{} }
func (NoopProvider) Histogram(string, ...InstrumentOption) Histogram         { return discard{} }

// discard implements every instrument interface.
type discard struct{}

func (discard) Add(int64)      {}
func (discard) Record(float64) {}
