package executor

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/meterhub/meterhub/pkg/metrics"
)

// Binder registers pool gauges on a metric registry. Each bound pool
// contributes a pool-size gauge, a queue-size gauge, and a lifecycle-labeled
// task counter family (scheduled, completed, active); the sum of the three
// lifecycle counts covers every task ever submitted. Values are read from the
// pool at gather time.
type Binder struct {
	registry *metrics.Registry
}

// NewBinder creates a binder targeting the given registry.
func NewBinder(r *metrics.Registry) *Binder {
	return &Binder{registry: r}
}

// Bind exposes a pool's state under the given metric name. A pool that does
// not implement PoolStats is logged and skipped: its metrics are unavailable,
// which is never fatal. Registration conflicts are configuration errors.
func (b *Binder) Bind(name string, pool interface{}) error {
	stats, ok := pool.(PoolStats)
	if !ok {
		log.Warn().Str("metric", name).Type("pool", pool).Msg("Pool does not expose stats; metrics unavailable")
		return nil
	}

	if err := b.registry.RegisterFunc(name, "Task counts by lifecycle phase", metrics.TypeCounter,
		[]string{"lifecycle"}, []string{"scheduled"}, func() float64 {
			return float64(stats.ScheduledTasks())
		}); err != nil {
		return fmt.Errorf("bind pool %s: %w", name, err)
	}
	if err := b.registry.RegisterFunc(name, "Task counts by lifecycle phase", metrics.TypeCounter,
		[]string{"lifecycle"}, []string{"completed"}, func() float64 {
			return float64(stats.CompletedTasks())
		}); err != nil {
		return fmt.Errorf("bind pool %s: %w", name, err)
	}
	if err := b.registry.RegisterFunc(name, "Task counts by lifecycle phase", metrics.TypeCounter,
		[]string{"lifecycle"}, []string{"active"}, func() float64 {
			return float64(stats.ActiveTasks())
		}); err != nil {
		return fmt.Errorf("bind pool %s: %w", name, err)
	}

	if err := b.registry.RegisterFunc(name+"_queue_size", "Tasks waiting in the pool queue", metrics.TypeGauge,
		nil, nil, func() float64 {
			return float64(stats.QueueDepth())
		}); err != nil {
		return fmt.Errorf("bind pool %s: %w", name, err)
	}
	if err := b.registry.RegisterFunc(name+"_pool_size", "Number of pool workers", metrics.TypeGauge,
		nil, nil, func() float64 {
			return float64(stats.PoolSize())
		}); err != nil {
		return fmt.Errorf("bind pool %s: %w", name, err)
	}

	log.Debug().Str("metric", name).Msg("Pool metrics bound")
	return nil
}
