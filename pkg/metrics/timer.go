package metrics

import (
	"fmt"
	"sync"
	"time"
)

// DurationBuckets builds a cumulative histogram config from duration
// boundaries. Boundaries are recorded in nanoseconds and rescaled to seconds
// in the exported bucket labels.
func DurationBuckets(bounds ...time.Duration) HistogramConfig {
	boundaries := make([]float64, len(bounds))
	for i, d := range bounds {
		boundaries[i] = float64(d.Nanoseconds())
	}
	return HistogramConfig{Kind: Cumulative, Boundaries: boundaries, SourceUnit: Nanoseconds}
}

// Timer records durations into an accumulator. Observations are made in
// nanoseconds; a time-denominated histogram attached to the child rescales
// its boundary labels to seconds at construction.
type Timer struct {
	child *Child
}

// NewTimer creates a child on f for the given label values and wraps it in a
// Timer. The options are passed through to the child unchanged.
func NewTimer(f *Family, labelValues []string, opts ...ChildOption) (*Timer, error) {
	child, err := f.NewChild(labelValues, opts...)
	if err != nil {
		return nil, fmt.Errorf("timer: %w", err)
	}
	return &Timer{child: child}, nil
}

// Record observes a completed duration.
func (t *Timer) Record(d time.Duration) {
	t.child.Observe(float64(d.Nanoseconds()))
}

// Time runs fn and records how long it took.
func (t *Timer) Time(fn func()) {
	start := time.Now()
	fn()
	t.Record(time.Since(start))
}

// Child returns the underlying accumulator.
func (t *Timer) Child() *Child { return t.child }

// TaskID identifies one in-flight task tracked by a LongTaskTimer.
type TaskID uint64

// LongTaskTimer tracks tasks that are still running. Unlike Timer it reports
// while work is in flight: the number of active tasks and the summed elapsed
// time of all active tasks. IDs are assigned monotonically.
type LongTaskTimer struct {
	clock func() time.Time

	mu     sync.Mutex
	active map[TaskID]time.Time
	nextID TaskID
}

// NewLongTaskTimer creates a long-task timer and registers its active-task
// and duration gauges on r under "<name>_active" and "<name>_duration_seconds",
// following the family naming convention.
func (r *Registry) NewLongTaskTimer(name, help string, labelKeys, labelValues []string) (*LongTaskTimer, error) {
	t := &LongTaskTimer{
		clock:  time.Now,
		active: make(map[TaskID]time.Time),
	}
	if err := r.RegisterFunc(name+"_active", help, TypeGauge, labelKeys, labelValues, func() float64 {
		return float64(t.ActiveTasks())
	}); err != nil {
		return nil, err
	}
	if err := r.RegisterFunc(name+"_duration_seconds", help, TypeGauge, labelKeys, labelValues, func() float64 {
		return t.Duration().Seconds()
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// Start begins tracking a task and returns its ID.
func (t *LongTaskTimer) Start() TaskID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.active[id] = t.clock()
	return id
}

// Stop ends tracking for id and returns how long the task ran. Stopping an
// unknown or already-stopped ID returns false.
func (t *LongTaskTimer) Stop(id TaskID) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start, ok := t.active[id]
	if !ok {
		return 0, false
	}
	delete(t.active, id)
	return t.clock().Sub(start), true
}

// ActiveTasks returns the number of tasks currently in flight.
func (t *LongTaskTimer) ActiveTasks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Duration returns the summed elapsed time of every in-flight task.
func (t *LongTaskTimer) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	var total time.Duration
	for _, start := range t.active {
		total += now.Sub(start)
	}
	return total
}
