package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCumulativeHistogram_Validation(t *testing.T) {
	_, err := NewCumulativeHistogram(nil)
	assert.Error(t, err)

	_, err = NewCumulativeHistogram([]float64{math.NaN()})
	assert.Error(t, err)

	_, err = NewCumulativeHistogram([]float64{-1, 10})
	assert.Error(t, err)

	_, err = NewCumulativeHistogram([]float64{10, 5})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "strictly ascending")

	_, err = NewCumulativeHistogram([]float64{5, 5})
	assert.Error(t, err)
}

func TestCumulativeHistogram_Buckets(t *testing.T) {
	h, err := NewCumulativeHistogram([]float64{10, 50})
	require.NoError(t, err)

	for _, v := range []float64{5, 20, 100} {
		h.Observe(v)
	}

	buckets := h.Buckets()
	require.Len(t, buckets, 3)
	assert.Equal(t, Bucket{Tag: "10", Count: 1}, buckets[0])
	assert.Equal(t, Bucket{Tag: "50", Count: 2}, buckets[1])
	assert.Equal(t, Bucket{Tag: "+Inf", Count: 3}, buckets[2])

	// Counts are monotone non-decreasing and the final bucket equals the
	// total observation count.
	for i := 1; i < len(buckets); i++ {
		assert.GreaterOrEqual(t, buckets[i].Count, buckets[i-1].Count)
	}
	assert.Equal(t, h.Count(), buckets[len(buckets)-1].Count)
}

func TestCumulativeHistogram_BoundaryIsInclusive(t *testing.T) {
	h, err := NewCumulativeHistogram([]float64{10})
	require.NoError(t, err)

	h.Observe(10) // le semantics: lands in the 10 bucket, not +Inf
	buckets := h.Buckets()
	assert.Equal(t, uint64(1), buckets[0].Count)
}

func TestCumulativeHistogram_ExplicitInfBoundary(t *testing.T) {
	h, err := NewCumulativeHistogram([]float64{10, math.Inf(1)})
	require.NoError(t, err)

	buckets := h.Buckets()
	require.Len(t, buckets, 2)
	assert.Equal(t, "+Inf", buckets[1].Tag)
}

func TestCumulativeHistogram_ShiftScale(t *testing.T) {
	h, err := NewCumulativeHistogram([]float64{1e8, 1e9})
	require.NoError(t, err)
	h.Observe(5e8)

	scaled := h.ShiftScale(1e-9)

	// Boundaries are multiplied by the factor; counts are shared, not copied.
	buckets := scaled.Buckets()
	assert.Equal(t, "0.1", buckets[0].Tag)
	assert.Equal(t, "1", buckets[1].Tag)
	assert.Equal(t, "+Inf", buckets[2].Tag)

	raw := h.Buckets()
	for i := range raw {
		assert.Equal(t, raw[i].Count, buckets[i].Count)
	}

	// Observations through either view land in the same state.
	scaled.Observe(5e7)
	assert.Equal(t, uint64(1), h.Buckets()[0].Count)
	assert.Equal(t, uint64(2), h.Buckets()[1].Count)
}

func TestNormalHistogram_SingleBucketPerObservation(t *testing.T) {
	h, err := NewNormalHistogram([]float64{10, 100})
	require.NoError(t, err)

	h.Observe(5)
	h.Observe(50)
	h.Observe(500)

	buckets := h.Buckets()
	require.Len(t, buckets, 3)
	var total uint64
	for _, b := range buckets {
		assert.Equal(t, uint64(1), b.Count)
		total += b.Count
	}
	assert.Equal(t, uint64(3), total)
}

func TestNormalHistogram_PresentationOrder(t *testing.T) {
	// Boundaries may be configured out of numeric order; presentation keeps
	// the configured order while range selection still works.
	h, err := NewNormalHistogram([]float64{100, 10})
	require.NoError(t, err)

	h.Observe(5) // belongs to the 10 bucket

	buckets := h.Buckets()
	assert.Equal(t, "100", buckets[0].Tag)
	assert.Equal(t, uint64(0), buckets[0].Count)
	assert.Equal(t, "10", buckets[1].Tag)
	assert.Equal(t, uint64(1), buckets[1].Count)
}

func TestNormalHistogram_Validation(t *testing.T) {
	_, err := NewNormalHistogram([]float64{10, 10})
	assert.Error(t, err)

	_, err = NewNormalHistogram([]float64{math.NaN()})
	assert.Error(t, err)
}

func TestNormalHistogram_ShiftScale(t *testing.T) {
	h, err := NewNormalHistogram([]float64{1e9})
	require.NoError(t, err)
	h.Observe(1e8)

	scaled := h.ShiftScale(1e-9)
	buckets := scaled.Buckets()
	assert.Equal(t, "1", buckets[0].Tag)
	assert.Equal(t, uint64(1), buckets[0].Count)
}

func TestNewHistogram_UnknownKind(t *testing.T) {
	_, err := NewHistogram(HistogramConfig{Kind: HistogramKind(42), Boundaries: []float64{1}})
	assert.Error(t, err)
}
