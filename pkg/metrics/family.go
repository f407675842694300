package metrics

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// FamilyType classifies a family for the exposition layer.
type FamilyType string

const (
	TypeSummary   FamilyType = "summary"
	TypeHistogram FamilyType = "histogram"
	TypeGauge     FamilyType = "gauge"
	TypeCounter   FamilyType = "counter"
)

// Family owns a metric name, its ordered label keys, and the set of
// accumulators (children), one per distinct label-value combination. Children
// are registered concurrently and iterated concurrently by Collect without
// writers blocking readers: the child list is copy-on-write behind an atomic
// pointer, so a child registered during an in-flight Collect may or may not
// appear in that collection.
type Family struct {
	name      string
	countName string
	sumName   string
	labelKeys []string

	mu       sync.Mutex // guards child registration only
	children atomic.Pointer[[]*Child]
}

// NewFamily creates a metric family with the given name and ordered label
// keys. The key order is significant: every child's label values correspond
// positionally to these keys.
func NewFamily(name string, labelKeys ...string) (*Family, error) {
	if name == "" {
		return nil, fmt.Errorf("metric family requires a name")
	}
	for _, k := range labelKeys {
		if k == "" {
			return nil, fmt.Errorf("metric family %s has an empty label key", name)
		}
	}

	f := &Family{
		name:      name,
		countName: name + countSuffix,
		sumName:   name + sumSuffix,
		labelKeys: append([]string(nil), labelKeys...),
	}
	empty := make([]*Child, 0)
	f.children.Store(&empty)
	return f, nil
}

// Name returns the family name.
func (f *Family) Name() string { return f.name }

// LabelKeys returns the ordered label keys.
func (f *Family) LabelKeys() []string { return f.labelKeys }

// Type reports how the family renders in the exposition format: histogram
// when any child carries histogram state, summary otherwise.
func (f *Family) Type() FamilyType {
	for _, c := range *f.children.Load() {
		if c.histogram != nil {
			return TypeHistogram
		}
	}
	return TypeSummary
}

// Collect snapshots every child and concatenates their samples. Order across
// children follows registration order; order within a child is fixed by
// Child.Collect. Collect never mutates state and never blocks a concurrent
// Observe or NewChild.
func (f *Family) Collect() []Sample {
	children := *f.children.Load()
	samples := make([]Sample, 0, len(children)*4)
	for _, c := range children {
		samples = append(samples, c.Collect()...)
	}
	return samples
}

// childOptions accumulates the optional quantile and histogram configuration
// for a new child.
type childOptions struct {
	estimator     Quantiles
	quantiles     []float64
	windowSize    int
	histogram     HistogramConfig
	wantHistogram bool
}

// ChildOption configures an accumulator at construction.
type ChildOption func(*childOptions)

// WithQuantiles attaches a window sketch estimator monitoring the given
// quantiles.
func WithQuantiles(monitored ...float64) ChildOption {
	return func(o *childOptions) { o.quantiles = monitored }
}

// WithQuantileWindow bounds the sketch window used by WithQuantiles.
func WithQuantileWindow(size int) ChildOption {
	return func(o *childOptions) { o.windowSize = size }
}

// WithEstimator attaches a caller-supplied quantile estimator, overriding
// WithQuantiles.
func WithEstimator(q Quantiles) ChildOption {
	return func(o *childOptions) { o.estimator = q }
}

// WithHistogram attaches a histogram built from cfg. When cfg.SourceUnit is
// set, the boundary labels are rescaled to seconds exactly once, here.
func WithHistogram(cfg HistogramConfig) ChildOption {
	return func(o *childOptions) {
		o.histogram = cfg
		o.wantHistogram = true
	}
}

// NewChild constructs an accumulator for the given label-value combination,
// registers it, and returns it for the caller to retain across observations.
// All validation happens here: once a child exists, Observe and Collect never
// fail. Children are never removed; they live for the family's lifetime.
func (f *Family) NewChild(labelValues []string, opts ...ChildOption) (*Child, error) {
	if len(labelValues) != len(f.labelKeys) {
		return nil, fmt.Errorf("metric %s expects %d label values, got %d", f.name, len(f.labelKeys), len(labelValues))
	}

	var o childOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &Child{
		family:      f,
		labelValues: append([]string(nil), labelValues...),
	}

	if o.estimator != nil {
		c.quantiles = o.estimator
	} else if len(o.quantiles) > 0 {
		ws, err := NewWindowSketch(o.quantiles, o.windowSize)
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", f.name, err)
		}
		c.quantiles = ws
	}
	if c.quantiles != nil {
		c.quantileKeys = append(append([]string(nil), f.labelKeys...), QuantileLabel)
	}

	if o.wantHistogram {
		h, err := NewHistogram(o.histogram)
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", f.name, err)
		}
		if o.histogram.SourceUnit != 0 && o.histogram.SourceUnit != Seconds {
			h = h.ShiftScale(float64(o.histogram.SourceUnit))
		}
		c.histogram = h

		boundaryLabel := BucketLabel
		if h.CumulativeBuckets() {
			boundaryLabel = UpperBoundLabel
		}
		c.histogramKeys = append(append([]string(nil), f.labelKeys...), boundaryLabel)
	}

	f.mu.Lock()
	old := *f.children.Load()
	next := make([]*Child, len(old), len(old)+1)
	copy(next, old)
	next = append(next, c)
	f.children.Store(&next)
	f.mu.Unlock()

	return c, nil
}

// Child accumulates observations for exactly one label-value combination: a
// monotonic count, a running sum, and optional quantile and histogram state.
// The three (or four) updates in Observe are independent; a concurrent Collect
// may see some applied and others not yet, which is an accepted tolerance for
// metrics reporting.
type Child struct {
	family        *Family
	labelValues   []string
	quantileKeys  []string
	histogramKeys []string

	quantiles Quantiles
	histogram Histogram

	count   atomic.Uint64
	sumBits atomic.Uint64
}

// Observe records a value: count increments, sum accumulates, and the value is
// forwarded to the quantile estimator and histogram when configured. Observe
// is lock-free at this level and never fails.
func (c *Child) Observe(v float64) {
	c.count.Add(1)
	for {
		old := c.sumBits.Load()
		next := math.Float64bits(math.Float64frombits(old) + v)
		if c.sumBits.CompareAndSwap(old, next) {
			break
		}
	}
	if c.quantiles != nil {
		c.quantiles.Observe(v)
	}
	if c.histogram != nil {
		c.histogram.Observe(v)
	}
}

// Count returns the number of observations.
func (c *Child) Count() uint64 { return c.count.Load() }

// Sum returns the running sum of observed values. Concurrent observations
// accumulate in arbitrary order, so the floating-point result is not
// bit-reproducible across runs.
func (c *Child) Sum() float64 { return math.Float64frombits(c.sumBits.Load()) }

// LabelValues returns the label values this child is bound to, parallel to
// the family's label keys.
func (c *Child) LabelValues() []string { return c.labelValues }

// Collect produces this child's samples, freshly allocated, in fixed order:
// one per monitored quantile, one per histogram bucket, then the _count and
// _sum samples. Absent quantile or histogram state simply contributes no
// samples of that kind.
func (c *Child) Collect() []Sample {
	samples := make([]Sample, 0, 4)

	if c.quantiles != nil {
		for _, q := range c.quantiles.Monitored() {
			values := append(append([]string(nil), c.labelValues...), FormatFloat(q))
			samples = append(samples, Sample{
				Name:        c.family.name,
				LabelKeys:   c.quantileKeys,
				LabelValues: values,
				Value:       c.quantiles.Get(q),
			})
		}
	}

	if c.histogram != nil {
		for _, b := range c.histogram.Buckets() {
			values := append(append([]string(nil), c.labelValues...), b.Tag)
			samples = append(samples, Sample{
				Name:        c.family.name + bucketSuffix,
				LabelKeys:   c.histogramKeys,
				LabelValues: values,
				Value:       float64(b.Count),
			})
		}
	}

	samples = append(samples,
		Sample{Name: c.family.countName, LabelKeys: c.family.labelKeys, LabelValues: c.labelValues, Value: float64(c.Count())},
		Sample{Name: c.family.sumName, LabelKeys: c.family.labelKeys, LabelValues: c.labelValues, Value: c.Sum()},
	)
	return samples
}
