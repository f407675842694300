// Package executor provides a bounded worker pool and the metric bindings
// that expose pool state as gauges. Pools surface their state through the
// narrow PoolStats capability rather than any introspection of pool
// internals: a pool either implements PoolStats directly or its metrics are
// unavailable.
package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Task is one unit of work submitted to a pool.
type Task func()

// PoolStats is the capability a pool implements to make its state observable.
// All methods are point-in-time reads with no aggregation.
type PoolStats interface {
	// PoolSize returns the number of workers.
	PoolSize() int
	// QueueDepth returns the number of tasks waiting to run.
	QueueDepth() int
	// ActiveTasks returns the number of tasks currently executing.
	ActiveTasks() int64
	// CompletedTasks returns the number of tasks that have finished.
	CompletedTasks() int64
	// ScheduledTasks returns the number of tasks ever accepted.
	ScheduledTasks() int64
}

// WorkerPool runs submitted tasks on a fixed set of goroutines with a bounded
// queue. It implements PoolStats.
type WorkerPool struct {
	name    string
	workers int
	queue   chan Task

	scheduled atomic.Int64
	completed atomic.Int64
	active    atomic.Int64

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewWorkerPool starts a pool with the given worker count and queue capacity.
func NewWorkerPool(name string, workers, queueDepth int) (*WorkerPool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("worker pool %s requires at least one worker", name)
	}
	if queueDepth < 0 {
		return nil, fmt.Errorf("worker pool %s queue depth must not be negative", name)
	}

	p := &WorkerPool{
		name:    name,
		workers: workers,
		queue:   make(chan Task, queueDepth),
		done:    make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	log.Debug().Str("pool", name).Int("workers", workers).Int("queue_depth", queueDepth).Msg("Worker pool started")
	return p, nil
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.runTask(task)
	}
}

// runTask contains a panicking task to its own execution: the worker survives
// and the task still counts as completed.
func (p *WorkerPool) runTask(task Task) {
	p.active.Add(1)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("pool", p.name).Interface("panic", r).Msg("Task panicked")
		}
		p.active.Add(-1)
		p.completed.Add(1)
	}()
	task()
}

// Submit enqueues a task, failing when the queue is full or the pool has shut
// down.
func (p *WorkerPool) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("worker pool %s: nil task", p.name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("worker pool %s is shut down", p.name)
	}

	select {
	case p.queue <- task:
		p.scheduled.Add(1)
		return nil
	default:
		return fmt.Errorf("worker pool %s queue is full", p.name)
	}
}

// Shutdown stops accepting tasks, waits for queued work to drain, and returns
// early with the context's error if it expires first.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		log.Debug().Str("pool", p.name).Msg("Worker pool drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool %s shutdown: %w", p.name, ctx.Err())
	}
}

// Name returns the pool name.
func (p *WorkerPool) Name() string { return p.name }

// PoolSize returns the number of workers.
func (p *WorkerPool) PoolSize() int { return p.workers }

// QueueDepth returns the number of queued tasks.
func (p *WorkerPool) QueueDepth() int { return len(p.queue) }

// ActiveTasks returns the number of tasks currently executing.
func (p *WorkerPool) ActiveTasks() int64 { return p.active.Load() }

// CompletedTasks returns the number of finished tasks.
func (p *WorkerPool) CompletedTasks() int64 { return p.completed.Load() }

// ScheduledTasks returns the number of accepted tasks.
func (p *WorkerPool) ScheduledTasks() int64 { return p.scheduled.Load() }
