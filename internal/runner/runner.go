// Package runner orchestrates one measured benchmark: capability gating,
// scenario setup through a Provider, the instrumented window around the
// work, and aggregation into a report.BenchmarkResult.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"database-benchmark/internal/aggregate"
	"database-benchmark/internal/capability"
	"database-benchmark/internal/instrument"
	"database-benchmark/internal/logging"
	"database-benchmark/internal/report"
)

const (
	defaultGrace          = 5 * time.Second
	defaultCleanupTimeout = 30 * time.Second
)

// State is a step of a single run.
type State uint8

const (
	Pending State = iota
	Evaluating
	Skipped
	SettingUp
	SetupFailed
	Running
	Completed
	TimedOut
	Failed
)

var stateNames = [...]string{
	Pending:     "pending",
	Evaluating:  "evaluating",
	Skipped:     "skipped",
	SettingUp:   "setting_up",
	SetupFailed: "setup_failed",
	Running:     "running",
	Completed:   "completed",
	TimedOut:    "timed_out",
	Failed:      "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// WorkFunc is the caller-supplied unit of work measured by the runner.
type WorkFunc func(ctx context.Context, w *Window) error

// Benchmark describes one measured scenario.
type Benchmark struct {
	Name         string
	Scenario     Scenario
	Requirements capability.RequirementSet
	// Concurrent enables the ConcurrencyTracker for the window.
	Concurrent bool
	// Timeout overrides the runner timeout when non-zero.
	Timeout time.Duration
	Work    WorkFunc
}

// Runner executes benchmarks against one backend. A Runner measures one
// benchmark at a time.
type Runner struct {
	provider   Provider
	registry   *capability.Registry
	queries    *instrument.QueryRelay
	logger     *logging.Logger
	timeout    time.Duration
	grace      time.Duration
	memOpts    []instrument.ProfilerOption
	isDeadlock func(error) bool
	metrics    *metrics.Set
	onState    func(benchmark string, from, to State)

	// stray counts timed-out work that never returned.
	stray atomic.Int32

	mu sync.Mutex
}

type Option func(*Runner)

// WithTimeout bounds the work of every benchmark. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithGrace sets how long a timed-out run waits for its work to return
// before cleanup.
func WithGrace(d time.Duration) Option {
	return func(r *Runner) { r.grace = d }
}

func WithLogger(l *log.Logger) Option {
	return func(r *Runner) { r.logger = logging.New("runner", l) }
}

func WithLeveledLogger(l *logging.Logger) Option {
	return func(r *Runner) { r.logger = l.Named("runner") }
}

func WithMemoryOptions(opts ...instrument.ProfilerOption) Option {
	return func(r *Runner) { r.memOpts = opts }
}

// WithDeadlockClassifier decides which worker errors count as deadlocks.
func WithDeadlockClassifier(fn func(error) bool) Option {
	return func(r *Runner) { r.isDeadlock = fn }
}

// WithMetrics publishes every result into set.
func WithMetrics(set *metrics.Set) Option {
	return func(r *Runner) { r.metrics = set }
}

// WithStateHook observes state transitions.
func WithStateHook(fn func(benchmark string, from, to State)) Option {
	return func(r *Runner) { r.onState = fn }
}

// New returns a runner for the backend described by registry, populated by
// provider.
func New(provider Provider, registry *capability.Registry, opts ...Option) *Runner {
	r := &Runner{
		provider: provider,
		registry: registry,
		queries:  instrument.NewQueryRelay(),
		logger:   logging.New("runner", nil),
		grace:    defaultGrace,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recorder returns the recorder drivers should report statements to. Each
// measurement window gets its own counter behind it.
func (r *Runner) Recorder() *instrument.QueryRelay {
	return r.queries
}

type execution struct {
	runner    *Runner
	benchmark string
	state     State
}

func (e *execution) to(next State) {
	prev := e.state
	e.state = next
	e.runner.logger.Debugf("%s: %s -> %s", e.benchmark, prev, next)
	if e.runner.onState != nil {
		e.runner.onState(e.benchmark, prev, next)
	}
}

// Run evaluates, sets up, measures and cleans up b. Skips, setup failures,
// timeouts and instrumentation faults are reported through the result's
// status; only a failure of the work itself is returned as a *WorkloadError,
// together with the result. A panic in the work is re-raised after the
// instrumentation is stopped and the scenario cleaned up.
func (r *Runner) Run(ctx context.Context, b Benchmark) (*report.BenchmarkResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	backend := ""
	if r.registry != nil {
		backend = r.registry.Backend()
	}
	base := report.BenchmarkResult{
		RunID:     uuid.NewString(),
		Benchmark: b.Name,
		Backend:   backend,
		Scenario:  b.Scenario.Name,
		Scale:     b.Scenario.Scale.String(),
		StartedAt: time.Now().UTC(),
	}
	ex := &execution{runner: r, benchmark: b.Name, state: Pending}

	ex.to(Evaluating)
	if d := capability.Evaluate(b.Requirements, r.registry); !d.ShouldRun() {
		ex.to(Skipped)
		r.logger.Infof("%s skipped on %s: %s", b.Name, backend, d.Reason)
		base.Status = report.StatusSkipped
		base.SkipReason = d.Reason
		return r.finish(&base), nil
	}

	ex.to(SettingUp)
	handle, records, err := r.setup(ctx, b.Scenario)
	defer r.cleanup(ctx, b.Name, handle)
	if err != nil {
		ex.to(SetupFailed)
		r.logger.Errorf("%s: %v", b.Name, err)
		base.Status = report.StatusSetupFailed
		base.Error = err.Error()
		return r.finish(&base), nil
	}

	ex.to(Running)
	m := r.measure(ctx, b, handle, records)

	if m.faults != nil {
		base.Degraded = true
		for _, f := range multierr.Errors(m.faults) {
			base.Faults = append(base.Faults, f.Error())
		}
		r.logger.Warningf("%s: degraded result: %v", b.Name, m.faults)
	}
	res := aggregate.Summarize(base, m.samples)

	switch {
	case m.panicked:
		ex.to(Failed)
		res.Status = report.StatusFailed
		res.Error = fmt.Sprintf("panic: %v", m.panicValue)
		r.finish(res)
		r.logger.Errorf("%s: panic in work: %v\n%s", b.Name, m.panicValue, m.stack)
		panic(m.panicValue)
	case m.timedOut:
		ex.to(TimedOut)
		res.Status = report.StatusTimedOut
		r.logger.Warningf("%s timed out after %s", b.Name, m.samples.Duration)
		return r.finish(res), nil
	case m.err != nil:
		ex.to(Failed)
		res.Status = report.StatusFailed
		res.Error = m.err.Error()
		return r.finish(res), &WorkloadError{Benchmark: b.Name, Err: m.err}
	}

	ex.to(Completed)
	res.Status = report.StatusCompleted
	if res.LeakCount != 0 {
		r.logger.Warningf("%s: %d unreleased acquisitions", b.Name, res.LeakCount)
	}
	r.logger.Infof("%s completed on %s: %d ops in %s, %d queries", b.Name, backend, res.Operations, res.Duration, res.QueryCount)
	return r.finish(res), nil
}

func (r *Runner) finish(res *report.BenchmarkResult) *report.BenchmarkResult {
	if r.metrics != nil {
		report.Publish(r.metrics, res)
	}
	return res
}

func (r *Runner) setup(ctx context.Context, scenario Scenario) (*Handle, int64, error) {
	h, err := r.provider.SetupScenario(ctx, scenario)
	if err != nil {
		return h, 0, AsSetupError(scenario.Name, BackendUnreachable, err)
	}
	records, err := r.provider.Populate(ctx, h, scenario.Scale)
	if err != nil {
		return h, 0, AsSetupError(scenario.Name, PopulateFailed, err)
	}
	return h, records, nil
}

func (r *Runner) cleanup(ctx context.Context, benchmark string, h *Handle) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultCleanupTimeout)
	defer cancel()
	if err := r.provider.Cleanup(ctx, h); err != nil {
		r.logger.Errorf("%s: cleanup failed: %v", benchmark, err)
	}
}

type measurement struct {
	samples    aggregate.Samples
	faults     error
	err        error
	timedOut   bool
	panicked   bool
	panicValue any
	stack      []byte
}

type workResult struct {
	err        error
	panicked   bool
	panicValue any
	stack      []byte
}

func (r *Runner) measure(ctx context.Context, b Benchmark, h *Handle, records int64) (m measurement) {
	queries := instrument.NewQueryCounter()
	w := &Window{
		Handle:     h,
		Records:    records,
		Queries:    queries,
		isDeadlock: r.isDeadlock,
	}

	if n := r.stray.Load(); n > 0 {
		// statements such work sends through a driver land in this window
		m.faults = multierr.Append(m.faults, &InstrumentationError{
			Instrument: "queries", Op: "start",
			Err: fmt.Errorf("work of %d timed-out run(s) still running", n),
		})
	}
	queries.Start()
	r.queries.Attach(queries)
	mem := instrument.NewMemoryProfiler(r.memOpts...)
	if err := r.retryOnce("memory", "start", mem.Start); err != nil {
		m.faults = multierr.Append(m.faults, err)
		mem = nil
	} else {
		w.Memory = mem
	}
	if b.Concurrent {
		w.Tracker = instrument.NewConcurrencyTracker()
		w.Tracker.Start()
	}

	timeout := r.timeout
	if b.Timeout > 0 {
		timeout = b.Timeout
	}
	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan workResult, 1)
	start := time.Now()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- workResult{panicked: true, panicValue: p, stack: debug.Stack()}
			}
		}()
		done <- workResult{err: b.Work(runCtx, w)}
	}()

	var out workResult
	var elapsed time.Duration
	select {
	case out = <-done:
		elapsed = time.Since(start)
	case <-runCtx.Done():
		elapsed = time.Since(start)
		select {
		case out = <-done:
		case <-time.After(r.grace):
			out.err = runCtx.Err()
			r.logger.Warningf("%s: work still running %s after cancellation", b.Name, r.grace)
			r.stray.Add(1)
			go func() {
				<-done
				r.stray.Add(-1)
			}()
		}
	}
	// an error surfacing after the deadline is attributed to the timeout
	m.timedOut = !out.panicked && ctx.Err() == nil && timeout > 0 &&
		errors.Is(runCtx.Err(), context.DeadlineExceeded) &&
		(out.err != nil || elapsed >= timeout)

	// teardown runs on every path, before any fault reaches the caller
	r.queries.Detach(queries)
	queries.Stop()
	if w.Tracker != nil {
		w.Tracker.Stop()
	}
	var usage *instrument.MemoryUsage
	if mem != nil {
		if err := r.retryOnce("memory", "stop", mem.Stop); err != nil {
			mem.Abort()
			m.faults = multierr.Append(m.faults, err)
		} else {
			u := mem.Usage()
			usage = &u
		}
	}

	m.samples = aggregate.Samples{
		Duration:   elapsed,
		Operations: w.ops.Load(),
		Records:    records,
		QueryCount: queries.Count(),
		Memory:     usage,
		Extra:      w.extras(),
	}
	if w.Tracker != nil {
		m.samples.Concurrency = w.Tracker.Stats()
		m.samples.Waits = w.Tracker.Waits()
		m.samples.Quantile = w.Tracker.HistogramQuantile
	} else {
		m.samples.Concurrency = w.outcomes()
	}

	switch {
	case out.panicked:
		m.panicked, m.panicValue, m.stack = true, out.panicValue, out.stack
	case m.timedOut:
	default:
		m.err = out.err
	}
	return m
}

// retryOnce runs fn and, if it fails, runs it exactly once more.
func (r *Runner) retryOnce(instrumentName, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	r.logger.Warningf("%s %s failed, retrying: %v", instrumentName, op, err)
	if err = fn(); err != nil {
		return &InstrumentationError{Instrument: instrumentName, Op: op, Err: err}
	}
	return nil
}
