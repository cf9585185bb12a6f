package runner

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"database-benchmark/internal/capability"
	"database-benchmark/internal/instrument"
	"database-benchmark/internal/report"
)

type fakeProvider struct {
	mu          sync.Mutex
	setupErr    error
	populateErr error
	cleanupErr  error
	setups      int
	cleanups    []*Handle
}

func (p *fakeProvider) SetupScenario(_ context.Context, s Scenario) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setups++
	if p.setupErr != nil {
		return nil, p.setupErr
	}
	return &Handle{ID: "h-" + s.Name, Scenario: s}, nil
}

func (p *fakeProvider) Populate(_ context.Context, _ *Handle, scale Scale) (int64, error) {
	if p.populateErr != nil {
		return 0, p.populateErr
	}
	return scale.Records(), nil
}

func (p *fakeProvider) Cleanup(_ context.Context, h *Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanups = append(p.cleanups, h)
	return p.cleanupErr
}

func newTestRunner(p Provider, reg *capability.Registry, opts ...Option) (*Runner, *bytes.Buffer) {
	var buf bytes.Buffer
	opts = append([]Option{WithLogger(log.New(&buf, "", 0))}, opts...)
	return New(p, reg, opts...), &buf
}

func TestRun_SkipsOnMissingCapability(t *testing.T) {
	p := &fakeProvider{}
	r, _ := newTestRunner(p, capability.NewRegistry("sqlite", capability.Savepoints))

	called := false
	res, err := r.Run(context.Background(), Benchmark{
		Name:         "ecommerce/inventory_update",
		Requirements: capability.Requires(capability.Savepoints, capability.RowLevelLocking),
		Work: func(context.Context, *Window) error {
			called = true
			return nil
		},
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, report.StatusSkipped, res.Status)
	assert.Equal(t, "backend sqlite does not support locking.row_level", res.SkipReason)
	assert.False(t, res.Status.Failed())
	assert.Equal(t, 0, p.setups, "skipped benchmarks never touch the provider")
}

func TestRun_CompletedCountsQueriesAndOps(t *testing.T) {
	p := &fakeProvider{}
	var states []State
	r, _ := newTestRunner(p, capability.NewRegistry("sqlite"), WithStateHook(func(_ string, _, to State) {
		states = append(states, to)
	}))
	r.Recorder().Record("before the window")

	res, err := r.Run(context.Background(), Benchmark{
		Name:     "lazy",
		Scenario: Scenario{Name: "catalog", Scale: CustomScale(7)},
		Work: func(_ context.Context, w *Window) error {
			for i := int64(0); i < w.Records; i++ {
				w.Queries.Record("SELECT * FROM items WHERE product_id = ?", i)
			}
			w.AddOps(w.Records)
			w.Snapshot("loaded")
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, report.StatusCompleted, res.Status)
	assert.Equal(t, int64(7), res.QueryCount)
	assert.Equal(t, int64(7), res.Operations)
	assert.Equal(t, int64(7), res.Records)
	assert.Equal(t, "custom(7)", res.Scale)
	assert.NotEmpty(t, res.RunID)
	require.NotNil(t, res.Memory)
	assert.GreaterOrEqual(t, res.Memory.PeakBytes, res.Memory.EndBytes)
	assert.False(t, res.Latency.P50.Valid, "no concurrent samples means n/a")
	assert.False(t, r.Recorder().Attached())
	assert.Equal(t, []State{Evaluating, SettingUp, Running, Completed}, states)
	require.Len(t, p.cleanups, 1)
	assert.Equal(t, "h-catalog", p.cleanups[0].ID)
}

func TestRun_ConcurrentThroughput(t *testing.T) {
	r, _ := newTestRunner(&fakeProvider{}, capability.NewRegistry("sqlite"))
	res, err := r.Run(context.Background(), Benchmark{
		Name:       "pool",
		Concurrent: true,
		Work: func(ctx context.Context, w *Window) error {
			return w.RunWorkers(ctx, WorkerPlan{Workers: 10, PerWorker: 100}, func(context.Context, int, int) error {
				return nil
			})
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.SuccessCount)
	assert.Equal(t, int64(1000), res.Operations)
	assert.InEpsilon(t, 1000/res.Duration.Seconds(), res.Throughput, 1e-9)
	assert.True(t, res.Latency.P50.Valid)
	assert.True(t, res.Latency.P99.Valid)
	assert.LessOrEqual(t, res.Latency.P50.Value, res.Latency.P99.Value)
}

func TestRun_ClassifiesDeadlocks(t *testing.T) {
	errDeadlock := errors.New("deadlock detected")
	r, _ := newTestRunner(&fakeProvider{}, capability.NewRegistry("postgres"),
		WithDeadlockClassifier(func(err error) bool { return errors.Is(err, errDeadlock) }))
	res, err := r.Run(context.Background(), Benchmark{
		Name:       "contention",
		Concurrent: true,
		Work: func(ctx context.Context, w *Window) error {
			return w.RunWorkers(ctx, WorkerPlan{Workers: 4, PerWorker: 10}, func(_ context.Context, worker, i int) error {
				switch {
				case i == 0 && worker == 0:
					return errDeadlock
				case i == 1:
					return errors.New("constraint violation")
				}
				return nil
			})
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.DeadlockCount)
	assert.Equal(t, int64(5), res.FailureCount)
	assert.Equal(t, int64(35), res.SuccessCount)
}

func TestRun_WorkloadErrorIsReturnedAfterTeardown(t *testing.T) {
	p := &fakeProvider{}
	r, _ := newTestRunner(p, capability.NewRegistry("sqlite"))
	boom := errors.New("constraint violated")

	var w *Window
	res, err := r.Run(context.Background(), Benchmark{
		Name:       "broken",
		Concurrent: true,
		Work: func(_ context.Context, win *Window) error {
			w = win
			return boom
		},
	})
	var we *WorkloadError
	require.ErrorAs(t, err, &we)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, report.StatusFailed, res.Status)
	assert.False(t, w.Queries.Active())
	assert.False(t, w.Memory.Active())
	w.Tracker.RecordSuccess(time.Millisecond)
	assert.Equal(t, int64(0), w.Tracker.Stats().Success, "tracker is stopped")
	assert.Len(t, p.cleanups, 1)
}

func TestRun_PanicIsReraisedAfterTeardown(t *testing.T) {
	p := &fakeProvider{}
	r, _ := newTestRunner(p, capability.NewRegistry("sqlite"))

	var w *Window
	assert.PanicsWithValue(t, "driver exploded", func() {
		_, _ = r.Run(context.Background(), Benchmark{
			Name: "panics",
			Work: func(_ context.Context, win *Window) error {
				w = win
				panic("driver exploded")
			},
		})
	})
	assert.False(t, w.Queries.Active())
	assert.False(t, w.Memory.Active())
	assert.Len(t, p.cleanups, 1)

	// the runner is usable again
	res, err := r.Run(context.Background(), Benchmark{Name: "after", Work: func(context.Context, *Window) error { return nil }})
	require.NoError(t, err)
	assert.Equal(t, report.StatusCompleted, res.Status)
}

func TestRun_Timeout(t *testing.T) {
	p := &fakeProvider{}
	r, _ := newTestRunner(p, capability.NewRegistry("sqlite"), WithTimeout(20*time.Millisecond))

	res, err := r.Run(context.Background(), Benchmark{
		Name:       "slow",
		Concurrent: true,
		Work: func(ctx context.Context, w *Window) error {
			return w.RunWorkers(ctx, WorkerPlan{Workers: 2}, func(ctx context.Context, _, _ int) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Millisecond):
					return nil
				}
			})
		},
	})
	require.NoError(t, err, "a timeout is not an error")
	assert.Equal(t, report.StatusTimedOut, res.Status)
	assert.False(t, res.Status.Failed())
	assert.GreaterOrEqual(t, res.Duration, 20*time.Millisecond)
	assert.False(t, r.Recorder().Attached())
	assert.Len(t, p.cleanups, 1)
}

func TestRun_TimeoutWithUncooperativeWork(t *testing.T) {
	r, buf := newTestRunner(&fakeProvider{}, capability.NewRegistry("sqlite"), WithGrace(10*time.Millisecond))
	release := make(chan struct{})
	defer close(release)

	res, err := r.Run(context.Background(), Benchmark{
		Name:    "stuck",
		Timeout: 10 * time.Millisecond,
		Work: func(context.Context, *Window) error {
			<-release
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, report.StatusTimedOut, res.Status)
	assert.Contains(t, buf.String(), "work still running")
}

func TestRun_StrayWorkDoesNotLeakIntoNextWindow(t *testing.T) {
	r, _ := newTestRunner(&fakeProvider{}, capability.NewRegistry("sqlite"), WithGrace(10*time.Millisecond))
	release := make(chan struct{})
	defer close(release)

	res, err := r.Run(context.Background(), Benchmark{
		Name:    "runaway",
		Timeout: 10 * time.Millisecond,
		Work: func(_ context.Context, w *Window) error {
			for {
				select {
				case <-release:
					return nil
				default:
					w.Queries.Record("SELECT runaway")
					time.Sleep(time.Millisecond)
				}
			}
		},
	})
	require.NoError(t, err)
	require.Equal(t, report.StatusTimedOut, res.Status)

	clean := Benchmark{Name: "clean", Work: func(context.Context, *Window) error { return nil }}
	res, err = r.Run(context.Background(), clean)
	require.NoError(t, err)
	assert.Equal(t, report.StatusCompleted, res.Status)
	assert.Equal(t, int64(0), res.QueryCount)
	assert.True(t, res.Degraded, "timed-out work is still running")
	require.Len(t, res.Faults, 1)
	assert.Contains(t, res.Faults[0], "still running")

	release <- struct{}{}
	assert.Eventually(t, func() bool {
		res, err := r.Run(context.Background(), clean)
		return err == nil && !res.Degraded && res.QueryCount == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRunWorkers_SequentialFailuresAreCounted(t *testing.T) {
	errDeadlock := errors.New("deadlock detected")
	r, _ := newTestRunner(&fakeProvider{}, capability.NewRegistry("sqlite"),
		WithDeadlockClassifier(func(err error) bool { return errors.Is(err, errDeadlock) }))
	res, err := r.Run(context.Background(), Benchmark{
		Name: "sequential",
		Work: func(ctx context.Context, w *Window) error {
			return w.RunWorkers(ctx, WorkerPlan{Workers: 1, PerWorker: 10}, func(_ context.Context, _, i int) error {
				switch {
				case i == 0:
					return errDeadlock
				case i < 8:
					return errors.New("boom")
				}
				return nil
			})
		},
	})
	require.NoError(t, err)
	assert.Equal(t, report.StatusCompleted, res.Status)
	assert.Equal(t, int64(8), res.FailureCount)
	assert.Equal(t, int64(1), res.DeadlockCount)
	assert.Equal(t, int64(2), res.SuccessCount)
	assert.Equal(t, int64(10), res.Operations)
	assert.False(t, res.Latency.P50.Valid, "latencies need a tracker")
}

func TestRun_ParentCancellationIsAWorkloadError(t *testing.T) {
	r, _ := newTestRunner(&fakeProvider{}, capability.NewRegistry("sqlite"), WithTimeout(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	res, err := r.Run(ctx, Benchmark{
		Name: "cancelled",
		Work: func(ctx context.Context, _ *Window) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, report.StatusFailed, res.Status)
}

func TestRun_SetupFailureIsCapturedNotRaised(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		kind     string
	}{
		{
			name:     "unreachable",
			provider: &fakeProvider{setupErr: &SetupError{Kind: BackendUnreachable, Scenario: "s", Err: errors.New("connection refused")}},
			kind:     "backend unreachable",
		},
		{
			name:     "schema conflict",
			provider: &fakeProvider{setupErr: &SetupError{Kind: SchemaConflict, Scenario: "s", Err: errors.New("table exists")}},
			kind:     "schema conflict",
		},
		{
			name:     "populate",
			provider: &fakeProvider{populateErr: errors.New("disk full")},
			kind:     "populate failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRunner(tt.provider, capability.NewRegistry("sqlite"))
			res, err := r.Run(context.Background(), Benchmark{
				Name:     "b",
				Scenario: Scenario{Name: "s"},
				Work: func(context.Context, *Window) error {
					t.Fatal("work must not run")
					return nil
				},
			})
			require.NoError(t, err)
			assert.Equal(t, report.StatusSetupFailed, res.Status)
			assert.Contains(t, res.Error, tt.kind)
			assert.Len(t, tt.provider.cleanups, 1, "cleanup runs after a partial setup")
		})
	}
}

func TestRun_CleanupFailureIsLoggedOnly(t *testing.T) {
	p := &fakeProvider{cleanupErr: errors.New("drop failed")}
	r, buf := newTestRunner(p, capability.NewRegistry("sqlite"))
	res, err := r.Run(context.Background(), Benchmark{Name: "b", Work: func(context.Context, *Window) error { return nil }})
	require.NoError(t, err)
	assert.Equal(t, report.StatusCompleted, res.Status)
	assert.Contains(t, buf.String(), "cleanup failed: drop failed")
}

// flakyHeap fails the given call numbers.
type flakyHeap struct {
	mu    sync.Mutex
	calls int
	fail  map[int]bool
}

func (h *flakyHeap) read() (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.fail[h.calls] {
		return 0, errors.New("snapshot race")
	}
	return 1024, nil
}

func TestRun_InstrumentationFaults(t *testing.T) {
	tests := []struct {
		name         string
		fail         map[int]bool
		wantDegraded bool
	}{
		// call 1 is Start, the rest are Stop attempts
		{name: "transient stop failure is retried", fail: map[int]bool{2: true}},
		{name: "persistent stop failure degrades", fail: map[int]bool{2: true, 3: true}, wantDegraded: true},
		{name: "persistent start failure degrades", fail: map[int]bool{1: true, 2: true}, wantDegraded: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			heap := &flakyHeap{fail: tt.fail}
			r, _ := newTestRunner(&fakeProvider{}, capability.NewRegistry("sqlite"),
				WithMemoryOptions(instrument.WithHeapReader(heap.read), instrument.WithoutGC()))

			res, err := r.Run(context.Background(), Benchmark{
				Name: "b",
				Work: func(_ context.Context, w *Window) error {
					w.Queries.Record("SELECT 1")
					return nil
				},
			})
			require.NoError(t, err)
			assert.Equal(t, report.StatusCompleted, res.Status)
			assert.Equal(t, int64(1), res.QueryCount, "query figures survive a memory fault")
			assert.Equal(t, tt.wantDegraded, res.Degraded)
			if tt.wantDegraded {
				assert.Nil(t, res.Memory)
				require.Len(t, res.Faults, 1)
				assert.True(t, strings.HasPrefix(res.Faults[0], "memory "))
			} else {
				assert.NotNil(t, res.Memory)
			}
		})
	}
}

func TestRun_PublishesMetrics(t *testing.T) {
	set := metrics.NewSet()
	r, _ := newTestRunner(&fakeProvider{}, capability.NewRegistry("sqlite"), WithMetrics(set))
	_, err := r.Run(context.Background(), Benchmark{Name: "b", Work: func(context.Context, *Window) error { return nil }})
	require.NoError(t, err)

	var buf bytes.Buffer
	set.WritePrometheus(&buf)
	assert.Contains(t, buf.String(), `harness_runs_total{benchmark="b",backend="sqlite",status="completed"} 1`)
}

func TestParseScale(t *testing.T) {
	tests := []struct {
		in   string
		want Scale
		err  bool
	}{
		{in: "small", want: ScaleSmall},
		{in: "MEDIUM", want: ScaleMedium},
		{in: "large", want: ScaleLarge},
		{in: "custom(250)", want: CustomScale(250)},
		{in: "42", want: CustomScale(42)},
		{in: "custom(-1)", err: true},
		{in: "huge", err: true},
	}
	for _, tt := range tests {
		got, err := ParseScale(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
	assert.Equal(t, int64(1000), ScaleMedium.Records())
	assert.Equal(t, "custom(250)", CustomScale(250).String())
}
