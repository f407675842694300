package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Namespace(t *testing.T) {
	r := NewRegistry("meterhub")
	f, err := r.NewFamily("requests", "Total requests", "method")
	require.NoError(t, err)
	assert.Equal(t, "meterhub_requests", f.Name())

	r2 := NewRegistry("")
	f2, err := r2.NewFamily("requests", "Total requests")
	require.NoError(t, err)
	assert.Equal(t, "requests", f2.Name())
}

func TestRegistry_DuplicateNames(t *testing.T) {
	r := NewRegistry("test")

	_, err := r.NewFamily("m", "help")
	require.NoError(t, err)

	_, err = r.NewFamily("m", "other help")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = r.NewGauge("m", "help")
	assert.Error(t, err)
}

func TestRegistry_GatherSortedByName(t *testing.T) {
	r := NewRegistry("")
	_, err := r.NewFamily("zebra", "")
	require.NoError(t, err)
	_, err = r.NewFamily("alpha", "")
	require.NoError(t, err)
	_, err = r.NewGauge("middle", "")
	require.NoError(t, err)

	out := r.Gather()
	require.Len(t, out, 3)
	assert.Equal(t, "alpha", out[0].Name)
	assert.Equal(t, "middle", out[1].Name)
	assert.Equal(t, "zebra", out[2].Name)
}

func TestRegistry_GatherEmpty(t *testing.T) {
	assert.Empty(t, NewRegistry("x").Gather())
}

func TestRegistry_FamilyTypeInGather(t *testing.T) {
	r := NewRegistry("")
	f, err := r.NewFamily("latency", "")
	require.NoError(t, err)

	out := r.Gather()
	assert.Equal(t, TypeSummary, out[0].Type)

	_, err = f.NewChild(nil, WithHistogram(HistogramConfig{Kind: Cumulative, Boundaries: []float64{1}}))
	require.NoError(t, err)

	out = r.Gather()
	assert.Equal(t, TypeHistogram, out[0].Type)
}

func TestRegistry_Gauge(t *testing.T) {
	r := NewRegistry("")
	g, err := r.NewGauge("pool_size", "Worker pool size", "pool")
	require.NoError(t, err)

	g.Set(4, "default")
	g.Inc("default")
	g.Dec("other")
	assert.Equal(t, float64(5), g.Get("default"))
	assert.Equal(t, float64(-1), g.Get("other"))
	assert.Equal(t, float64(0), g.Get("missing"))

	out := r.Gather()
	require.Len(t, out, 1)
	assert.Equal(t, TypeGauge, out[0].Type)
	assert.Len(t, out[0].Samples, 2)
}

func TestRegistry_RegisterFunc(t *testing.T) {
	r := NewRegistry("")

	value := 3.0
	err := r.RegisterFunc("tasks", "Task counts", TypeCounter,
		[]string{"lifecycle"}, []string{"completed"}, func() float64 { return value })
	require.NoError(t, err)

	// Multiple functions can share a name with matching type.
	err = r.RegisterFunc("tasks", "Task counts", TypeCounter,
		[]string{"lifecycle"}, []string{"active"}, func() float64 { return 1 })
	require.NoError(t, err)

	// Mismatched type is rejected.
	err = r.RegisterFunc("tasks", "Task counts", TypeGauge,
		[]string{"lifecycle"}, []string{"scheduled"}, func() float64 { return 0 })
	assert.Error(t, err)

	// Arity mismatch and nil function fail fast.
	err = r.RegisterFunc("bad", "", TypeGauge, []string{"a"}, nil, func() float64 { return 0 })
	assert.Error(t, err)
	err = r.RegisterFunc("bad", "", TypeGauge, nil, nil, nil)
	assert.Error(t, err)

	out := r.Gather()
	require.Len(t, out, 1)
	require.Len(t, out[0].Samples, 2)
	assert.Equal(t, float64(3), out[0].Samples[0].Value)

	// The function is read at gather time, not registration time.
	value = 9
	out = r.Gather()
	assert.Equal(t, float64(9), out[0].Samples[0].Value)
}

type staticCollector struct{ families []FamilySamples }

func (c *staticCollector) Gather() []FamilySamples { return c.families }

func TestRegistry_Collectors(t *testing.T) {
	r := NewRegistry("")
	r.RegisterCollector(&staticCollector{families: []FamilySamples{{Name: "extra", Type: TypeGauge}}})

	out := r.Gather()
	require.Len(t, out, 1)
	assert.Equal(t, "extra", out[0].Name)
}

func TestRuntimeCollectors(t *testing.T) {
	r := NewRegistry("")
	r.RegisterCollector(NewGoCollector())
	r.RegisterCollector(NewProcessCollector())
	r.RegisterCollector(NewBuildInfoCollector("1.0.0", "abc123", "2026-01-01"))

	out := r.Gather()
	names := make(map[string]bool)
	for _, fs := range out {
		names[fs.Name] = true
	}
	assert.True(t, names["go_goroutines"])
	assert.True(t, names["process_uptime_seconds"])
	assert.True(t, names["build_info"])

	for _, fs := range out {
		if fs.Name == "build_info" {
			require.Len(t, fs.Samples, 1)
			assert.Equal(t, []string{"1.0.0", "abc123", "2026-01-01"}, fs.Samples[0].LabelValues)
		}
	}
}
