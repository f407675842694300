package metrics

import (
	"fmt"
	"strings"
	"sync"
)

// Gauge is a point-in-time value with per-label-set storage. Unlike the
// accumulator, a gauge performs no aggregation: it holds the latest value set
// for each label combination. Gauges back the in-flight task counters and the
// executor-pool bindings.
type Gauge struct {
	name      string
	labelKeys []string

	mu     sync.RWMutex
	values map[string]*gaugeEntry
}

type gaugeEntry struct {
	labelValues []string
	value       float64
}

// NewGauge creates a gauge with the given name and ordered label keys.
func NewGauge(name string, labelKeys ...string) (*Gauge, error) {
	if name == "" {
		return nil, fmt.Errorf("gauge requires a name")
	}
	return &Gauge{
		name:      name,
		labelKeys: append([]string(nil), labelKeys...),
		values:    make(map[string]*gaugeEntry),
	}, nil
}

// Name returns the gauge name.
func (g *Gauge) Name() string { return g.name }

// Set stores the value for the given label combination.
func (g *Gauge) Set(v float64, labelValues ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := strings.Join(labelValues, "\x00")
	if e, ok := g.values[key]; ok {
		e.value = v
		return
	}
	g.values[key] = &gaugeEntry{labelValues: append([]string(nil), labelValues...), value: v}
}

// Add adds delta to the value for the given label combination.
func (g *Gauge) Add(delta float64, labelValues ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := strings.Join(labelValues, "\x00")
	if e, ok := g.values[key]; ok {
		e.value += delta
		return
	}
	g.values[key] = &gaugeEntry{labelValues: append([]string(nil), labelValues...), value: delta}
}

// Inc increments the value for the given label combination by 1.
func (g *Gauge) Inc(labelValues ...string) { g.Add(1, labelValues...) }

// Dec decrements the value for the given label combination by 1.
func (g *Gauge) Dec(labelValues ...string) { g.Add(-1, labelValues...) }

// Get returns the current value for the given label combination, or 0 when it
// was never set.
func (g *Gauge) Get(labelValues ...string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if e, ok := g.values[strings.Join(labelValues, "\x00")]; ok {
		return e.value
	}
	return 0
}

// Collect returns one sample per label combination that has a value.
func (g *Gauge) Collect() []Sample {
	g.mu.RLock()
	defer g.mu.RUnlock()
	samples := make([]Sample, 0, len(g.values))
	for _, e := range g.values {
		samples = append(samples, Sample{
			Name:        g.name,
			LabelKeys:   g.labelKeys,
			LabelValues: e.labelValues,
			Value:       e.value,
		})
	}
	return samples
}

// GaugeFunc is a gauge whose value is read from a caller-supplied function at
// collection time. Used for point-in-time reads of external state, such as
// runtime statistics, where storing a value would only go stale.
type GaugeFunc struct {
	name        string
	labelKeys   []string
	labelValues []string
	fn          func() float64
}

// NewGaugeFunc creates a function-backed gauge. The label keys and values are
// fixed at construction and must have equal arity.
func NewGaugeFunc(name string, labelKeys, labelValues []string, fn func() float64) (*GaugeFunc, error) {
	if name == "" {
		return nil, fmt.Errorf("gauge requires a name")
	}
	if fn == nil {
		return nil, fmt.Errorf("gauge %s requires a read function", name)
	}
	if len(labelKeys) != len(labelValues) {
		return nil, fmt.Errorf("gauge %s expects %d label values, got %d", name, len(labelKeys), len(labelValues))
	}
	return &GaugeFunc{
		name:        name,
		labelKeys:   append([]string(nil), labelKeys...),
		labelValues: append([]string(nil), labelValues...),
		fn:          fn,
	}, nil
}

// Name returns the gauge name.
func (g *GaugeFunc) Name() string { return g.name }

// Collect evaluates the read function and returns its sample.
func (g *GaugeFunc) Collect() []Sample {
	return []Sample{{
		Name:        g.name,
		LabelKeys:   g.labelKeys,
		LabelValues: g.labelValues,
		Value:       g.fn(),
	}}
}
