package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterhub/meterhub/pkg/metrics"
)

func TestWorkerPool_Validation(t *testing.T) {
	_, err := NewWorkerPool("p", 0, 1)
	assert.Error(t, err)

	_, err = NewWorkerPool("p", 1, -1)
	assert.Error(t, err)
}

func TestWorkerPool_RunsTasks(t *testing.T) {
	pool, err := NewWorkerPool("test", 4, 16)
	require.NoError(t, err)

	var mu sync.Mutex
	ran := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			mu.Lock()
			ran++
			mu.Unlock()
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, 10, ran)
	assert.Equal(t, int64(10), pool.ScheduledTasks())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
	assert.Equal(t, int64(10), pool.CompletedTasks())
	assert.Equal(t, int64(0), pool.ActiveTasks())
}

func TestWorkerPool_QueueFull(t *testing.T) {
	pool, err := NewWorkerPool("test", 1, 1)
	require.NoError(t, err)

	block := make(chan struct{})
	require.NoError(t, pool.Submit(func() { <-block }))

	// Wait for the worker to pick up the blocking task, then fill the queue.
	require.Eventually(t, func() bool { return pool.ActiveTasks() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(func() {}))

	err = pool.Submit(func() {})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue is full")

	close(block)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
}

func TestWorkerPool_SurvivesPanickingTask(t *testing.T) {
	pool, err := NewWorkerPool("test", 1, 4)
	require.NoError(t, err)

	require.NoError(t, pool.Submit(func() { panic("boom") }))

	// The worker must outlive the panic and keep running tasks.
	ran := make(chan struct{})
	require.NoError(t, pool.Submit(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker did not run tasks after a panic")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	// The panicking task still counts as completed and left no active residue.
	assert.Equal(t, int64(2), pool.CompletedTasks())
	assert.Equal(t, int64(0), pool.ActiveTasks())
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	pool, err := NewWorkerPool("test", 1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
	require.NoError(t, pool.Shutdown(ctx)) // idempotent

	err = pool.Submit(func() {})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "shut down")

	err = pool.Submit(nil)
	assert.Error(t, err)
}

func TestBinder_Bind(t *testing.T) {
	r := metrics.NewRegistry("")
	pool, err := NewWorkerPool("workers", 2, 8)
	require.NoError(t, err)

	b := NewBinder(r)
	require.NoError(t, b.Bind("worker_tasks", pool))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func() { wg.Done() }))
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	byName := map[string]metrics.FamilySamples{}
	for _, fs := range r.Gather() {
		byName[fs.Name] = fs
	}

	tasks := byName["worker_tasks"]
	assert.Equal(t, metrics.TypeCounter, tasks.Type)
	require.Len(t, tasks.Samples, 3)
	lifecycle := map[string]float64{}
	for _, s := range tasks.Samples {
		require.Equal(t, []string{"lifecycle"}, s.LabelKeys)
		lifecycle[s.LabelValues[0]] = s.Value
	}
	assert.Equal(t, float64(5), lifecycle["scheduled"])
	assert.Equal(t, float64(5), lifecycle["completed"])
	assert.Equal(t, float64(0), lifecycle["active"])

	assert.Equal(t, float64(2), byName["worker_tasks_pool_size"].Samples[0].Value)
	assert.Equal(t, float64(0), byName["worker_tasks_queue_size"].Samples[0].Value)
}

func TestBinder_SkipsPoolWithoutStats(t *testing.T) {
	r := metrics.NewRegistry("")
	b := NewBinder(r)

	// A pool that lacks the stats capability is skipped, never fatal.
	err := b.Bind("opaque_pool", struct{}{})
	assert.NoError(t, err)
	assert.Empty(t, r.Gather())
}
