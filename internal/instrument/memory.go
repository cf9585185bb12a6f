package instrument

import (
	"runtime"
	"sync"
	"time"
)

// HeapReader reports the bytes currently allocated by the process.
type HeapReader func() (uint64, error)

// RuntimeHeap reads live heap bytes from the Go runtime.
func RuntimeHeap() (uint64, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc, nil
}

// MemorySample is one labelled heap reading. PeakBytes >= CurrentBytes.
type MemorySample struct {
	Label        string    `json:"label"`
	CurrentBytes uint64    `json:"current_bytes"`
	PeakBytes    uint64    `json:"peak_bytes"`
	At           time.Time `json:"at"`
}

// MemoryUsage summarises a profiling window. Used is Current-Start and may be
// negative when the collector reclaimed more than the window allocated.
type MemoryUsage struct {
	Start     uint64
	Current   uint64
	Peak      uint64
	Used      int64
	Snapshots []MemorySample
}

// UsedBytes returns Used clamped at zero, for ratios that cannot go negative.
func (u MemoryUsage) UsedBytes() uint64 {
	if u.Used < 0 {
		return 0
	}
	return uint64(u.Used)
}

type profilerState uint8

const (
	profilerIdle profilerState = iota
	profilerActive
	profilerStopped
)

// MemoryProfiler tracks heap usage between Start and Stop. The peak only ever
// grows within a window.
type MemoryProfiler struct {
	read     HeapReader
	gc       bool
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	state   profilerState
	start   uint64
	current uint64
	peak    uint64
	samples []MemorySample

	samplerStop chan struct{}
	samplerDone chan struct{}
}

type ProfilerOption func(*MemoryProfiler)

// WithHeapReader replaces the runtime heap reader.
func WithHeapReader(r HeapReader) ProfilerOption {
	return func(p *MemoryProfiler) { p.read = r }
}

// WithoutGC disables the forced collection at window edges.
func WithoutGC() ProfilerOption {
	return func(p *MemoryProfiler) { p.gc = false }
}

// WithSampleInterval polls the heap in the background so peaks between
// explicit snapshots are not missed. Zero disables polling.
func WithSampleInterval(d time.Duration) ProfilerOption {
	return func(p *MemoryProfiler) { p.interval = d }
}

func NewMemoryProfiler(opts ...ProfilerOption) *MemoryProfiler {
	p := &MemoryProfiler{
		read: RuntimeHeap,
		gc:   true,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start captures the baseline and opens a new window.
func (p *MemoryProfiler) Start() error {
	p.mu.Lock()
	if p.state == profilerActive {
		p.mu.Unlock()
		return ErrActive
	}
	p.mu.Unlock()

	if p.gc {
		runtime.GC()
	}
	v, err := p.read()
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.state = profilerActive
	p.start, p.current, p.peak = v, v, v
	p.samples = nil
	if p.interval > 0 {
		p.samplerStop = make(chan struct{})
		p.samplerDone = make(chan struct{})
		go p.sample(p.interval, p.samplerStop, p.samplerDone)
	}
	p.mu.Unlock()
	return nil
}

func (p *MemoryProfiler) sample(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			v, err := p.read()
			if err != nil {
				continue
			}
			p.mu.Lock()
			if p.state == profilerActive {
				p.observe(v)
			}
			p.mu.Unlock()
		}
	}
}

// observe must be called with mu held.
func (p *MemoryProfiler) observe(v uint64) {
	p.current = v
	if v > p.peak {
		p.peak = v
	}
}

func (p *MemoryProfiler) stopSampler() {
	p.mu.Lock()
	stop, done := p.samplerStop, p.samplerDone
	p.samplerStop, p.samplerDone = nil, nil
	p.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

// Snapshot records the current heap reading under label.
func (p *MemoryProfiler) Snapshot(label string) (MemorySample, error) {
	if err := p.checkActive(); err != nil {
		return MemorySample{}, err
	}
	v, err := p.read()
	if err != nil {
		return MemorySample{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != profilerActive {
		return MemorySample{}, ErrStopped
	}
	p.observe(v)
	s := MemorySample{Label: label, CurrentBytes: p.current, PeakBytes: p.peak, At: p.now()}
	p.samples = append(p.samples, s)
	return s, nil
}

func (p *MemoryProfiler) checkActive() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case profilerActive:
		return nil
	case profilerStopped:
		return ErrStopped
	default:
		return ErrNotActive
	}
}

// Stop takes a final sample and freezes the profiler. If the final reading
// fails the window stays open so Stop can be retried.
func (p *MemoryProfiler) Stop() error {
	if err := p.checkActive(); err != nil {
		return err
	}
	p.stopSampler()
	if p.gc {
		runtime.GC()
	}
	v, err := p.read()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != profilerActive {
		return ErrStopped
	}
	p.observe(v)
	p.samples = append(p.samples, MemorySample{Label: "stop", CurrentBytes: p.current, PeakBytes: p.peak, At: p.now()})
	p.state = profilerStopped
	return nil
}

// Abort freezes the profiler without a final reading.
func (p *MemoryProfiler) Abort() {
	p.stopSampler()
	p.mu.Lock()
	if p.state == profilerActive {
		p.state = profilerStopped
	}
	p.mu.Unlock()
}

func (p *MemoryProfiler) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == profilerActive
}

// Usage returns the figures of the current or last window.
func (p *MemoryProfiler) Usage() MemoryUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	snaps := make([]MemorySample, len(p.samples))
	copy(snaps, p.samples)
	return MemoryUsage{
		Start:     p.start,
		Current:   p.current,
		Peak:      p.peak,
		Used:      int64(p.current) - int64(p.start),
		Snapshots: snaps,
	}
}
