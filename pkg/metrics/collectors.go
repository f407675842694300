package metrics

import (
	"os"
	"runtime"
	"time"
)

// GoCollector exposes Go runtime statistics as gauges read at gather time.
// The reads are point-in-time with no aggregation.
type GoCollector struct{}

// NewGoCollector creates a Go runtime collector.
func NewGoCollector() *GoCollector {
	return &GoCollector{}
}

// Gather reads the runtime counters.
func (c *GoCollector) Gather() []FamilySamples {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	gauge := func(name, help string, v float64) FamilySamples {
		return FamilySamples{
			Name:    name,
			Type:    TypeGauge,
			Help:    help,
			Samples: []Sample{{Name: name, Value: v}},
		}
	}

	return []FamilySamples{
		gauge("go_goroutines", "Number of goroutines that currently exist", float64(runtime.NumGoroutine())),
		gauge("go_threads", "Number of OS threads created", float64(runtime.NumCPU())),
		gauge("go_memstats_alloc_bytes", "Number of bytes allocated and still in use", float64(ms.Alloc)),
		gauge("go_memstats_heap_objects", "Number of allocated heap objects", float64(ms.HeapObjects)),
		gauge("go_memstats_sys_bytes", "Number of bytes obtained from the system", float64(ms.Sys)),
		gauge("go_gc_cycles_total", "Number of completed GC cycles", float64(ms.NumGC)),
		gauge("go_gc_pause_total_seconds", "Cumulative GC pause time", time.Duration(ms.PauseTotalNs).Seconds()),
	}
}

// ProcessCollector exposes basic process-level gauges.
type ProcessCollector struct {
	start time.Time
	pid   int
}

// NewProcessCollector creates a process collector anchored at the current
// time.
func NewProcessCollector() *ProcessCollector {
	return &ProcessCollector{start: time.Now(), pid: os.Getpid()}
}

// Gather reads the process state.
func (c *ProcessCollector) Gather() []FamilySamples {
	return []FamilySamples{
		{
			Name:    "process_uptime_seconds",
			Type:    TypeGauge,
			Help:    "Seconds since the process started",
			Samples: []Sample{{Name: "process_uptime_seconds", Value: time.Since(c.start).Seconds()}},
		},
		{
			Name:    "process_pid",
			Type:    TypeGauge,
			Help:    "Process ID",
			Samples: []Sample{{Name: "process_pid", Value: float64(c.pid)}},
		},
	}
}

// BuildInfoCollector exposes a constant gauge carrying build metadata as
// labels.
type BuildInfoCollector struct {
	version string
	commit  string
	date    string
}

// NewBuildInfoCollector creates a build-info collector. The values are set by
// the build system and are constant for the process lifetime.
func NewBuildInfoCollector(version, commit, date string) *BuildInfoCollector {
	return &BuildInfoCollector{version: version, commit: commit, date: date}
}

// Gather returns the constant build-info sample.
func (c *BuildInfoCollector) Gather() []FamilySamples {
	return []FamilySamples{{
		Name: "build_info",
		Type: TypeGauge,
		Help: "Build information",
		Samples: []Sample{{
			Name:        "build_info",
			LabelKeys:   []string{"version", "commit", "build_date"},
			LabelValues: []string{c.version, c.commit, c.date},
			Value:       1,
		}},
	}}
}
