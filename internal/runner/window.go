package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"database-benchmark/internal/instrument"
)

// Window is what benchmark work sees while it is being measured.
type Window struct {
	Handle  *Handle
	Records int64
	Queries *instrument.QueryCounter
	// Memory is nil when the profiler could not be started.
	Memory *instrument.MemoryProfiler
	// Tracker is nil unless the benchmark is concurrent.
	Tracker *instrument.ConcurrencyTracker

	isDeadlock func(error) bool
	ops        atomic.Int64

	// outcomes of RunWorkers when there is no Tracker
	success   atomic.Int64
	failure   atomic.Int64
	deadlocks atomic.Int64

	mu    sync.Mutex
	extra map[string]float64
}

// AddOps counts operations the work performed outside RunWorkers.
func (w *Window) AddOps(n int64) {
	w.ops.Add(n)
}

// SetExtra reports a workload specific figure under name.
func (w *Window) SetExtra(name string, v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.extra == nil {
		w.extra = make(map[string]float64)
	}
	w.extra[name] = v
}

func (w *Window) extras() map[string]float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]float64, len(w.extra))
	for k, v := range w.extra {
		out[k] = v
	}
	return out
}

// Snapshot labels a memory sample when the profiler is running.
func (w *Window) Snapshot(label string) {
	if w.Memory != nil {
		_, _ = w.Memory.Snapshot(label)
	}
}

// WorkerPlan sizes a worker pool. With PerWorker > 0 each worker performs
// exactly that many operations; otherwise workers loop until Duration
// elapses or the context ends.
type WorkerPlan struct {
	Workers   int
	PerWorker int
	Duration  time.Duration
}

// Op is one unit of concurrent work. i counts the worker's operations.
type Op func(ctx context.Context, worker, i int) error

// RunWorkers runs op on plan.Workers goroutines and records every outcome.
// Op errors are outcomes, not failures of the pool; the returned error is
// the context error if the pool was cut short.
func (w *Window) RunWorkers(ctx context.Context, plan WorkerPlan, op Op) error {
	workers := plan.Workers
	if workers <= 0 {
		workers = 1
	}
	var deadline time.Time
	if plan.PerWorker <= 0 && plan.Duration > 0 {
		deadline = time.Now().Add(plan.Duration)
	}

	var wg sync.WaitGroup
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; ; i++ {
				if plan.PerWorker > 0 && i >= plan.PerWorker {
					return
				}
				if !deadline.IsZero() && !time.Now().Before(deadline) {
					return
				}
				if ctx.Err() != nil {
					return
				}
				start := time.Now()
				err := op(ctx, worker, i)
				w.record(err, time.Since(start))
			}
		}(worker)
	}
	wg.Wait()
	return ctx.Err()
}

func (w *Window) record(err error, latency time.Duration) {
	deadlock := err != nil && w.isDeadlock != nil && w.isDeadlock(err)
	if w.Tracker != nil {
		if err == nil {
			w.Tracker.RecordSuccess(latency)
		} else {
			w.Tracker.RecordFailure(deadlock)
		}
		return
	}
	switch {
	case err == nil:
		w.success.Add(1)
	case deadlock:
		w.deadlocks.Add(1)
		w.failure.Add(1)
	default:
		w.failure.Add(1)
	}
}

// outcomes reports what RunWorkers recorded without a Tracker.
func (w *Window) outcomes() instrument.ConcurrencyStats {
	return instrument.ConcurrencyStats{
		Success:   w.success.Load(),
		Failure:   w.failure.Load(),
		Deadlocks: w.deadlocks.Load(),
	}
}
