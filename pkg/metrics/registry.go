package metrics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// FamilySamples is one named family's point-in-time output: its exposition
// type, help text, and flat sample sequence.
type FamilySamples struct {
	Name    string     `json:"name"`
	Type    FamilyType `json:"type"`
	Help    string     `json:"help"`
	Samples []Sample   `json:"samples"`
}

// Collector contributes complete families at gather time. Collectors are how
// external state (runtime statistics, build info) joins the registry output
// without being stored in it.
type Collector interface {
	Gather() []FamilySamples
}

type registryEntry struct {
	help   string
	typ    FamilyType
	family *Family
	gauge  *Gauge
	funcs  []*GaugeFunc
}

// Registry holds metric families and gauges under a common namespace and
// produces the combined snapshot the exposition layer renders. Registration
// is validated (duplicate names are configuration errors); gathering never
// fails, even for an empty registry.
type Registry struct {
	namespace string

	mu         sync.RWMutex
	entries    map[string]*registryEntry
	collectors []Collector
}

// NewRegistry creates a registry. The namespace, when non-empty, prefixes
// every registered metric name as "<namespace>_<name>".
func NewRegistry(namespace string) *Registry {
	return &Registry{
		namespace: namespace,
		entries:   make(map[string]*registryEntry),
	}
}

func (r *Registry) buildName(name string) string {
	if r.namespace != "" {
		return r.namespace + "_" + name
	}
	return name
}

// NewFamily creates and registers a metric family. Registering a name twice
// is a configuration error.
func (r *Registry) NewFamily(name, help string, labelKeys ...string) (*Family, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	full := r.buildName(name)
	if _, exists := r.entries[full]; exists {
		return nil, fmt.Errorf("metric %s already exists", full)
	}

	f, err := NewFamily(full, labelKeys...)
	if err != nil {
		return nil, err
	}
	r.entries[full] = &registryEntry{help: help, family: f}
	log.Debug().Str("metric", full).Str("type", "family").Msg("Metric family registered")
	return f, nil
}

// NewGauge creates and registers a gauge.
func (r *Registry) NewGauge(name, help string, labelKeys ...string) (*Gauge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	full := r.buildName(name)
	if _, exists := r.entries[full]; exists {
		return nil, fmt.Errorf("metric %s already exists", full)
	}

	g, err := NewGauge(full, labelKeys...)
	if err != nil {
		return nil, err
	}
	r.entries[full] = &registryEntry{help: help, typ: TypeGauge, gauge: g}
	log.Debug().Str("metric", full).Str("type", "gauge").Msg("Gauge registered")
	return g, nil
}

// RegisterFunc registers a function-backed sample source under the given name
// and exposition type. Multiple functions may share a name as long as their
// declared type and help agree; each contributes one sample per gather. Used
// for point-in-time reads of external counters, such as executor-pool state.
func (r *Registry) RegisterFunc(name, help string, typ FamilyType, labelKeys, labelValues []string, fn func() float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	full := r.buildName(name)
	gf, err := NewGaugeFunc(full, labelKeys, labelValues, fn)
	if err != nil {
		return err
	}

	if e, exists := r.entries[full]; exists {
		if e.family != nil || e.gauge != nil {
			return fmt.Errorf("metric %s already exists", full)
		}
		if e.typ != typ {
			return fmt.Errorf("metric %s already registered with type %s", full, e.typ)
		}
		e.funcs = append(e.funcs, gf)
		return nil
	}

	r.entries[full] = &registryEntry{help: help, typ: typ, funcs: []*GaugeFunc{gf}}
	log.Debug().Str("metric", full).Str("type", string(typ)).Msg("Sample function registered")
	return nil
}

// RegisterCollector adds a collector whose families are appended to every
// gather.
func (r *Registry) RegisterCollector(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors = append(r.collectors, c)
}

// Gather snapshots every registered family, gauge, and collector. Families
// are ordered by name so successive scrapes are diffable; collector output is
// appended in registration order. Each family is internally consistent at the
// instant it is collected, but no consistency is guaranteed across families.
func (r *Registry) Gather() []FamilySamples {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]FamilySamples, 0, len(names))
	for _, name := range names {
		e := r.entries[name]
		fs := FamilySamples{Name: name, Help: e.help, Type: e.typ}
		switch {
		case e.family != nil:
			fs.Type = e.family.Type()
			fs.Samples = e.family.Collect()
		case e.gauge != nil:
			fs.Samples = e.gauge.Collect()
		default:
			for _, gf := range e.funcs {
				fs.Samples = append(fs.Samples, gf.Collect()...)
			}
		}
		out = append(out, fs)
	}

	for _, c := range r.collectors {
		out = append(out, c.Gather()...)
	}
	return out
}
