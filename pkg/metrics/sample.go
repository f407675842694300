package metrics

import (
	"math"
	"strconv"
)

// Reserved label names used by exported samples.
const (
	// QuantileLabel carries the monitored quantile on summary samples.
	QuantileLabel = "quantile"
	// UpperBoundLabel carries the inclusive upper boundary on cumulative
	// histogram bucket samples ("less than or equal").
	UpperBoundLabel = "le"
	// BucketLabel carries the bucket tag on normal histogram bucket samples,
	// whose tags need not have a natural numeric order.
	BucketLabel = "bucket"
)

// Sample suffixes appended to the owning family name.
const (
	countSuffix  = "_count"
	sumSuffix    = "_sum"
	bucketSuffix = "_bucket"
)

// Sample is a single exported measurement: a metric name, parallel label
// key/value sequences, and a value. Samples are immutable and produced fresh
// on every collection; they are never cached or mutated after creation.
type Sample struct {
	Name        string   `json:"name"`
	LabelKeys   []string `json:"label_keys"`
	LabelValues []string `json:"label_values"`
	Value       float64  `json:"value"`
}

// FormatFloat renders a float64 as the canonical shortest decimal text that
// round-trips to the same bit pattern. Infinities render as "+Inf"/"-Inf" and
// NaN as "NaN", matching the exposition format scraped by pull-based
// collectors. The output is identical across runs for the same input, which
// downstream scrapers rely on for series identity.
func FormatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case math.IsNaN(v):
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
