package metrics

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"
)

// TimeUnit expresses the unit a time-denominated histogram's boundaries are
// configured in, as the number of seconds per unit. The zero value means the
// boundaries are not time-denominated and no rescale applies.
type TimeUnit float64

const (
	Nanoseconds  TimeUnit = 1e-9
	Microseconds TimeUnit = 1e-6
	Milliseconds TimeUnit = 1e-3
	Seconds      TimeUnit = 1
)

// HistogramKind selects the bucket accounting variant.
type HistogramKind int

const (
	// Cumulative buckets count observations less than or equal to their
	// boundary, so counts are monotone non-decreasing across boundaries and
	// the +Inf bucket equals the total observation count.
	Cumulative HistogramKind = iota
	// Normal buckets are independent: each observation lands in exactly one
	// bucket, and buckets are presented in configured order, which need not
	// be the boundary order.
	Normal
)

// HistogramConfig describes a histogram to attach to an accumulator. It is a
// closed description of every supported variant; validation happens when the
// histogram is built, never at observe time.
type HistogramConfig struct {
	Kind       HistogramKind
	Boundaries []float64
	// SourceUnit, when set, declares the boundaries to be denominated in the
	// given time unit. The accumulator rescales the boundary labels to
	// seconds exactly once at construction. Observed counts are unaffected.
	SourceUnit TimeUnit
}

// Bucket is one (tag, count) pair from a histogram snapshot. The tag is the
// canonical text of the bucket boundary for cumulative histograms, or an
// arbitrary bucket tag for normal histograms.
type Bucket struct {
	Tag   string
	Count uint64
}

// Histogram maintains per-bucket observation counts. Implementations are safe
// for concurrent Observe calls and never fail after construction.
type Histogram interface {
	// Observe records a value.
	Observe(v float64)
	// Buckets returns a snapshot of (tag, count) pairs.
	Buckets() []Bucket
	// CumulativeBuckets reports whether bucket counts are cumulative, which
	// selects the "le" boundary label over the "bucket" tag label.
	CumulativeBuckets() bool
	// ShiftScale returns a view of this histogram whose boundaries are
	// multiplied by factor. The view shares the underlying count state, so
	// the transform is purely a label concern. Intended to be applied exactly
	// once, at accumulator construction.
	ShiftScale(factor float64) Histogram
}

// NewHistogram builds the histogram described by cfg. NaN or negative
// boundaries, and unsorted boundaries for the cumulative variant, are
// configuration errors.
func NewHistogram(cfg HistogramConfig) (Histogram, error) {
	switch cfg.Kind {
	case Cumulative:
		return NewCumulativeHistogram(cfg.Boundaries)
	case Normal:
		return NewNormalHistogram(cfg.Boundaries)
	default:
		return nil, fmt.Errorf("unknown histogram kind %d", cfg.Kind)
	}
}

func validateBoundaries(bounds []float64) error {
	if len(bounds) == 0 {
		return fmt.Errorf("histogram requires at least one boundary")
	}
	for _, b := range bounds {
		if math.IsNaN(b) {
			return fmt.Errorf("histogram boundary must not be NaN")
		}
		if b < 0 {
			return fmt.Errorf("histogram boundary %v must not be negative", b)
		}
	}
	return nil
}

// bucketCounts is the observation state shared between a histogram and every
// rescaled view of it.
type bucketCounts struct {
	counts []atomic.Uint64
}

// CumulativeHistogram counts observations per boundary with "v <= boundary"
// semantics. Exact per-bucket counts are kept in atomics; the cumulative view
// is derived lazily when Buckets is called. An unbounded +Inf bucket is always
// present as the final bucket.
type CumulativeHistogram struct {
	bounds []float64 // ascending, +Inf last
	state  *bucketCounts
	scale  float64
}

// NewCumulativeHistogram creates a cumulative histogram over the given
// ascending boundaries. A trailing +Inf boundary is appended when absent.
func NewCumulativeHistogram(bounds []float64) (*CumulativeHistogram, error) {
	if err := validateBoundaries(bounds); err != nil {
		return nil, err
	}
	for i := 1; i < len(bounds); i++ {
		if bounds[i] <= bounds[i-1] {
			return nil, fmt.Errorf("cumulative histogram boundaries must be strictly ascending, got %v after %v", bounds[i], bounds[i-1])
		}
	}

	owned := append([]float64(nil), bounds...)
	if !math.IsInf(owned[len(owned)-1], 1) {
		owned = append(owned, math.Inf(1))
	}
	return &CumulativeHistogram{
		bounds: owned,
		state:  &bucketCounts{counts: make([]atomic.Uint64, len(owned))},
		scale:  1,
	}, nil
}

// Observe increments the exact count of the first bucket whose boundary is
// greater than or equal to v. The +Inf bucket catches everything else.
func (h *CumulativeHistogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.bounds, v)
	if i >= len(h.bounds) {
		i = len(h.bounds) - 1
	}
	h.state.counts[i].Add(1)
}

// Buckets returns the cumulative (boundary, count) snapshot in boundary order.
// The final bucket's count equals the total number of observations.
func (h *CumulativeHistogram) Buckets() []Bucket {
	out := make([]Bucket, len(h.bounds))
	var running uint64
	for i, b := range h.bounds {
		running += h.state.counts[i].Load()
		out[i] = Bucket{Tag: FormatFloat(b * h.scale), Count: running}
	}
	return out
}

// CumulativeBuckets reports true.
func (h *CumulativeHistogram) CumulativeBuckets() bool { return true }

// ShiftScale returns a view with boundaries multiplied by factor, sharing
// observation counts with the receiver.
func (h *CumulativeHistogram) ShiftScale(factor float64) Histogram {
	return &CumulativeHistogram{bounds: h.bounds, state: h.state, scale: h.scale * factor}
}

// Count returns the total number of observations recorded.
func (h *CumulativeHistogram) Count() uint64 {
	var total uint64
	for i := range h.state.counts {
		total += h.state.counts[i].Load()
	}
	return total
}

// NormalHistogram counts each observation in exactly one bucket: the bucket
// whose range contains the value, with ranges delimited by the sorted
// boundaries and an unbounded final range. Presentation follows the configured
// boundary order rather than sorted order.
type NormalHistogram struct {
	display []float64 // configured order, +Inf appended
	sorted  []float64 // ascending, used for range selection
	toSlot  []int     // display index -> sorted slot
	state   *bucketCounts
	scale   float64
}

// NewNormalHistogram creates a normal histogram over the given boundaries. The
// boundaries may be supplied in any order; an unbounded +Inf bucket is
// appended when absent.
func NewNormalHistogram(bounds []float64) (*NormalHistogram, error) {
	if err := validateBoundaries(bounds); err != nil {
		return nil, err
	}

	display := append([]float64(nil), bounds...)
	hasInf := false
	for _, b := range display {
		if math.IsInf(b, 1) {
			hasInf = true
		}
	}
	if !hasInf {
		display = append(display, math.Inf(1))
	}

	sorted := append([]float64(nil), display...)
	sort.Float64s(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, fmt.Errorf("normal histogram boundary %v is duplicated", sorted[i])
		}
	}

	toSlot := make([]int, len(display))
	for i, b := range display {
		toSlot[i] = sort.SearchFloat64s(sorted, b)
	}

	return &NormalHistogram{
		display: display,
		sorted:  sorted,
		toSlot:  toSlot,
		state:   &bucketCounts{counts: make([]atomic.Uint64, len(sorted))},
		scale:   1,
	}, nil
}

// Observe increments the single bucket whose range contains v.
func (h *NormalHistogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.sorted, v)
	if i >= len(h.sorted) {
		i = len(h.sorted) - 1
	}
	h.state.counts[i].Add(1)
}

// Buckets returns the per-bucket snapshot in configured order.
func (h *NormalHistogram) Buckets() []Bucket {
	out := make([]Bucket, len(h.display))
	for i, b := range h.display {
		out[i] = Bucket{Tag: FormatFloat(b * h.scale), Count: h.state.counts[h.toSlot[i]].Load()}
	}
	return out
}

// CumulativeBuckets reports false.
func (h *NormalHistogram) CumulativeBuckets() bool { return false }

// ShiftScale returns a view with boundaries multiplied by factor, sharing
// observation counts with the receiver.
func (h *NormalHistogram) ShiftScale(factor float64) Histogram {
	return &NormalHistogram{
		display: h.display,
		sorted:  h.sorted,
		toSlot:  h.toSlot,
		state:   h.state,
		scale:   h.scale * factor,
	}
}
