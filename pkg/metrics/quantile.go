package metrics

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultWindowSize bounds the number of observations retained by a window
// sketch before old observations are discarded.
const DefaultWindowSize = 16384

// Quantiles estimates quantiles over a stream of observations. Implementations
// must be safe for concurrent Observe calls, must never block indefinitely or
// panic on any finite input, and must return values from Get that are monotone
// non-decreasing in q for a fixed internal state.
type Quantiles interface {
	// Observe feeds a value into the estimator.
	Observe(v float64)
	// Get returns the estimate for quantile q in [0, 1].
	Get(q float64) float64
	// Monitored returns the quantiles this estimator reports, in the order
	// they were configured.
	Monitored() []float64
}

// WindowSketch estimates quantiles from a bounded sliding window of recent
// observations. The window caps memory at maxSize values; once full, the
// oldest observation is overwritten. Get sorts a snapshot of the window and
// interpolates linearly, so estimates are exact over the window but
// approximate over the full stream.
type WindowSketch struct {
	monitored []float64

	mu     sync.Mutex
	window []float64
	next   int
}

// NewWindowSketch creates a window sketch monitoring the given quantiles.
// maxSize <= 0 selects DefaultWindowSize. Quantiles outside [0, 1] are a
// configuration error.
func NewWindowSketch(monitored []float64, maxSize int) (*WindowSketch, error) {
	if len(monitored) == 0 {
		return nil, fmt.Errorf("window sketch requires at least one monitored quantile")
	}
	for _, q := range monitored {
		if q < 0 || q > 1 || q != q {
			return nil, fmt.Errorf("monitored quantile %v outside [0, 1]", q)
		}
	}
	if maxSize <= 0 {
		maxSize = DefaultWindowSize
	}

	ws := &WindowSketch{
		monitored: append([]float64(nil), monitored...),
		window:    make([]float64, 0, maxSize),
	}
	return ws, nil
}

// Observe records a value in the window, evicting the oldest value once the
// window is full.
func (ws *WindowSketch) Observe(v float64) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if len(ws.window) < cap(ws.window) {
		ws.window = append(ws.window, v)
		return
	}
	ws.window[ws.next] = v
	ws.next++
	if ws.next == len(ws.window) {
		ws.next = 0
	}
}

// Get estimates quantile q over the current window using linear interpolation
// between the two nearest ranked observations. An empty window yields 0.
func (ws *WindowSketch) Get(q float64) float64 {
	ws.mu.Lock()
	sorted := make([]float64, len(ws.window))
	copy(sorted, ws.window)
	ws.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}

	rank := q * float64(len(sorted)-1)
	lower := int(rank)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Monitored returns the configured quantiles.
func (ws *WindowSketch) Monitored() []float64 {
	return ws.monitored
}

// Size returns the number of observations currently retained.
func (ws *WindowSketch) Size() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.window)
}
