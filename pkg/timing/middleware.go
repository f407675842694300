// Package timing instruments HTTP handlers, recording request durations into
// a metric family labeled by method and status. It is a consumer of the
// aggregation core: it decides when to observe and supplies label values,
// nothing more.
package timing

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meterhub/meterhub/pkg/metrics"
)

// Middleware times requests. One accumulator is created per distinct
// (method, status) combination on first use and reused afterwards.
type Middleware struct {
	family *metrics.Family
	opts   []metrics.ChildOption

	mu       sync.RWMutex
	children map[string]*metrics.Child
	degraded map[string]bool
}

// NewMiddleware registers the request-duration family on r and returns the
// middleware. The child options apply to every accumulator it creates; when
// none are given, the 0.5/0.95/0.99 quantiles are monitored.
func NewMiddleware(r *metrics.Registry, name string, opts ...metrics.ChildOption) (*Middleware, error) {
	family, err := r.NewFamily(name, "Request duration in nanoseconds", "method", "status")
	if err != nil {
		return nil, err
	}
	if len(opts) == 0 {
		opts = []metrics.ChildOption{metrics.WithQuantiles(0.5, 0.95, 0.99)}
	}
	return &Middleware{
		family:   family,
		opts:     opts,
		children: make(map[string]*metrics.Child),
		degraded: make(map[string]bool),
	}, nil
}

// Handler wraps next, recording one observation per completed request. The
// observation happens in a deferred block, so a panicking handler is still
// recorded (as status 500) before the panic continues; response semantics are
// never altered.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			status := rec.status
			if err := recover(); err != nil {
				status = http.StatusInternalServerError
				m.record(req.Method, status, time.Since(start))
				panic(err)
			}
			m.record(req.Method, status, time.Since(start))
		}()

		next.ServeHTTP(rec, req)
	})
}

func (m *Middleware) record(method string, status int, d time.Duration) {
	child := m.child(method, strconv.Itoa(status))
	if child == nil {
		return
	}
	child.Observe(float64(d.Nanoseconds()))
}

// child returns the accumulator for the label combination, creating it on
// first use. A combination whose accumulator cannot be constructed is marked
// degraded and skipped from then on rather than failing the request path.
func (m *Middleware) child(method, status string) *metrics.Child {
	key := method + "\x00" + status

	m.mu.RLock()
	c, ok := m.children[key]
	bad := m.degraded[key]
	m.mu.RUnlock()
	if ok {
		return c
	}
	if bad {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.children[key]; ok {
		return c
	}

	c, err := m.family.NewChild([]string{method, status}, m.opts...)
	if err != nil {
		log.Warn().Str("metric", m.family.Name()).Str("method", method).Str("status", status).
			Err(err).Msg("Request timing unavailable for label combination")
		m.degraded[key] = true
		return nil
	}
	m.children[key] = c
	return c
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
