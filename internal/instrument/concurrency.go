package instrument

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// DefaultMaxWaitSamples bounds how many raw wait times a tracker keeps.
	DefaultMaxWaitSamples = 1 << 20

	maxTrackableWait = time.Hour
)

// Outcome is the result of one operation performed by a worker.
type Outcome struct {
	Success  bool
	Wait     time.Duration
	Deadlock bool
}

// ConcurrencyStats is an aggregate view of every recorded outcome. Outcomes
// are accumulated, never ordered.
type ConcurrencyStats struct {
	Success      int64
	Failure      int64
	Deadlocks    int64
	AvgWait      time.Duration
	MaxWait      time.Duration
	Acquisitions int64
	Releases     int64
	LeakCount    int64
	// Truncated is set once more waits were recorded than the tracker retains.
	Truncated bool
}

// Operations returns Success+Failure.
func (s ConcurrencyStats) Operations() int64 {
	return s.Success + s.Failure
}

// ConcurrencyTracker aggregates outcomes reported by any number of workers.
type ConcurrencyTracker struct {
	maxSamples int

	mu           sync.Mutex
	stopped      bool
	success      int64
	failure      int64
	deadlocks    int64
	waitCount    int64
	totalWait    time.Duration
	maxWait      time.Duration
	waits        []time.Duration
	truncated    bool
	hist         *hdrhistogram.Histogram
	acquisitions int64
	releases     int64

	leases *xsync.MapOf[string, int64]
}

func NewConcurrencyTracker() *ConcurrencyTracker {
	return NewConcurrencyTrackerSize(DefaultMaxWaitSamples)
}

// NewConcurrencyTrackerSize keeps at most maxSamples raw wait times; the
// histogram keeps counting past that.
func NewConcurrencyTrackerSize(maxSamples int) *ConcurrencyTracker {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxWaitSamples
	}
	return &ConcurrencyTracker{
		maxSamples: maxSamples,
		hist:       newWaitHistogram(),
		leases:     xsync.NewMapOf[string, int64](),
	}
}

func newWaitHistogram() *hdrhistogram.Histogram {
	// microsecond resolution up to one hour, 3 significant figures
	return hdrhistogram.New(1, maxTrackableWait.Microseconds(), 3)
}

// Start clears every counter and accepts outcomes again.
func (t *ConcurrencyTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = false
	t.success, t.failure, t.deadlocks = 0, 0, 0
	t.waitCount, t.totalWait, t.maxWait = 0, 0, 0
	t.waits = nil
	t.truncated = false
	t.hist.Reset()
	t.acquisitions, t.releases = 0, 0
	t.leases.Clear()
}

// Stop freezes the tracker; outcomes reported afterwards are dropped.
func (t *ConcurrencyTracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// RecordSuccess counts a successful operation that waited wait.
func (t *ConcurrencyTracker) RecordSuccess(wait time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.success++
	t.observeWait(wait)
}

// RecordFailure counts a failed operation.
func (t *ConcurrencyTracker) RecordFailure(deadlock bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.failure++
	if deadlock {
		t.deadlocks++
	}
}

// Record counts o.
func (t *ConcurrencyTracker) Record(o Outcome) {
	if o.Success {
		t.RecordSuccess(o.Wait)
		return
	}
	t.RecordFailure(o.Deadlock)
}

// observeWait must be called with mu held.
func (t *ConcurrencyTracker) observeWait(wait time.Duration) {
	if wait < 0 {
		wait = 0
	}
	t.waitCount++
	t.totalWait += wait
	if wait > t.maxWait {
		t.maxWait = wait
	}
	if len(t.waits) < t.maxSamples {
		t.waits = append(t.waits, wait)
	} else {
		t.truncated = true
	}
	us := wait.Microseconds()
	if us > t.hist.HighestTrackableValue() {
		us = t.hist.HighestTrackableValue()
	}
	_ = t.hist.RecordValue(us)
}

// Acquire records that a worker took resource.
func (t *ConcurrencyTracker) Acquire(resource string) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.acquisitions++
	t.mu.Unlock()

	t.leases.Compute(resource, func(held int64, _ bool) (int64, bool) {
		return held + 1, false
	})
}

// Release records that a worker gave resource back.
func (t *ConcurrencyTracker) Release(resource string) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.releases++
	t.mu.Unlock()

	t.leases.Compute(resource, func(held int64, _ bool) (int64, bool) {
		held--
		return held, held == 0
	})
}

// Leaked returns resources whose acquisitions and releases do not balance.
func (t *ConcurrencyTracker) Leaked() map[string]int64 {
	out := make(map[string]int64)
	t.leases.Range(func(resource string, held int64) bool {
		if held != 0 {
			out[resource] = held
		}
		return true
	})
	return out
}

// Stats returns a snapshot of the aggregates.
func (t *ConcurrencyTracker) Stats() ConcurrencyStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	var avg time.Duration
	if t.waitCount > 0 {
		avg = t.totalWait / time.Duration(t.waitCount)
	}
	return ConcurrencyStats{
		Success:      t.success,
		Failure:      t.failure,
		Deadlocks:    t.deadlocks,
		AvgWait:      avg,
		MaxWait:      t.maxWait,
		Acquisitions: t.acquisitions,
		Releases:     t.releases,
		LeakCount:    t.acquisitions - t.releases,
		Truncated:    t.truncated,
	}
}

// Waits returns a sorted copy of the retained wait times.
func (t *ConcurrencyTracker) Waits() []time.Duration {
	t.mu.Lock()
	out := make([]time.Duration, len(t.waits))
	copy(out, t.waits)
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HistogramQuantile estimates the q-th percentile (0-100) of every wait ever
// recorded, including those past the raw retention limit.
func (t *ConcurrencyTracker) HistogramQuantile(q float64) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.hist.ValueAtQuantile(q)) * time.Microsecond
}
