package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"database-benchmark/internal/instrument"
	"database-benchmark/internal/report"
)

func TestThroughput(t *testing.T) {
	assert.Equal(t, 500.0, Throughput(1000, 2*time.Second))
	assert.Equal(t, 0.0, Throughput(1000, 0))
	assert.Equal(t, 0.0, Throughput(1000, -time.Second))
	assert.Equal(t, 0.0, Throughput(0, time.Second))
}

func TestPercentile(t *testing.T) {
	samples := []float64{15, 20, 35, 40, 50}
	tests := []struct {
		p    float64
		want float64
	}{
		{p: 5, want: 15},
		{p: 30, want: 20},
		{p: 40, want: 20},
		{p: 50, want: 35},
		{p: 100, want: 50},
	}
	for _, tt := range tests {
		got, ok := Percentile(samples, tt.p)
		require.True(t, ok)
		assert.Equal(t, tt.want, got, "p%v", tt.p)
	}

	unsorted := []float64{50, 15, 40, 20, 35}
	got, ok := Percentile(unsorted, 50)
	require.True(t, ok)
	assert.Equal(t, 35.0, got)
	assert.Equal(t, []float64{50, 15, 40, 20, 35}, unsorted, "input must not be reordered")

	_, ok = Percentile(nil, 50)
	assert.False(t, ok)
	_, ok = Percentile(samples, 0)
	assert.False(t, ok)
	_, ok = Percentile(samples, 101)
	assert.False(t, ok)
}

func TestImprovementPercent(t *testing.T) {
	assert.Equal(t, 80.0, ImprovementPercent(100, 20))
	assert.Equal(t, 0.0, ImprovementPercent(0, 20))
	assert.Equal(t, 0.0, ImprovementPercent(-5, 20))
	assert.Equal(t, -50.0, ImprovementPercent(100, 150))
}

func TestCoefficientOfVariation(t *testing.T) {
	assert.Equal(t, 0.0, CoefficientOfVariation(nil))
	assert.Equal(t, 0.0, CoefficientOfVariation([]float64{0, 0}))
	assert.Equal(t, 0.0, CoefficientOfVariation([]float64{7, 7, 7}))
	// mean 5, population stddev 2
	assert.InDelta(t, 40.0, CoefficientOfVariation([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)

	cv, linear := LinearGrowth([]float64{100, 102, 98, 101}, DefaultGrowthTolerance)
	assert.True(t, linear)
	assert.Less(t, cv, 2.0)
	_, linear = LinearGrowth([]float64{100, 200, 400}, DefaultGrowthTolerance)
	assert.False(t, linear)
}

func TestMemoryPerRecordAndHitRatio(t *testing.T) {
	assert.Equal(t, 0.0, MemoryPerRecord(-4096, 10))
	assert.Equal(t, 0.0, MemoryPerRecord(4096, 0))
	assert.Equal(t, 409.6, MemoryPerRecord(4096, 10))
	assert.Equal(t, 0.75, HitRatio(3, 1))
	assert.Equal(t, 0.0, HitRatio(0, 0))
}

func TestGrowthRateAndLeaks(t *testing.T) {
	assert.InDelta(t, 10.0, GrowthRate([]float64{0, 10, 20, 30}), 1e-9)
	assert.Equal(t, 0.0, GrowthRate([]float64{5}))
	assert.True(t, LeakSuspected([]uint64{1000, 2000, 3000, 4000}, 100))
	assert.False(t, LeakSuspected([]uint64{1000, 1010, 990, 1000}, 100))
	assert.False(t, LeakSuspected([]uint64{1000, 5000}, 100))
}

func TestSummarize(t *testing.T) {
	waits := make([]time.Duration, 0, 100)
	for i := 100; i >= 1; i-- {
		waits = append(waits, time.Duration(i)*time.Millisecond)
	}
	base := report.BenchmarkResult{Benchmark: "b", Backend: "sqlite", Status: report.StatusCompleted}
	r := Summarize(base, Samples{
		Duration:   2 * time.Second,
		Operations: 10,
		Records:    100,
		QueryCount: 42,
		Memory:     &instrument.MemoryUsage{Start: 1000, Current: 5000, Peak: 9000, Used: 4000},
		Concurrency: instrument.ConcurrencyStats{
			Success: 95, Failure: 5, Deadlocks: 2, AvgWait: time.Millisecond, MaxWait: 100 * time.Millisecond,
		},
		Waits: waits,
	})

	assert.Equal(t, "b", r.Benchmark)
	assert.Equal(t, int64(110), r.Operations)
	assert.Equal(t, 55.0, r.Throughput)
	assert.Equal(t, int64(42), r.QueryCount)
	assert.Equal(t, report.LatencyOf(50*time.Millisecond), r.Latency.P50)
	assert.Equal(t, report.LatencyOf(95*time.Millisecond), r.Latency.P95)
	assert.Equal(t, report.LatencyOf(99*time.Millisecond), r.Latency.P99)
	require.NotNil(t, r.Memory)
	assert.Equal(t, 40.0, r.Memory.PerRecordBytes)
	assert.Equal(t, uint64(9000), r.Memory.PeakBytes)
	assert.Equal(t, int64(2), r.DeadlockCount)
}

func TestSummarize_NoSamples(t *testing.T) {
	r := Summarize(report.BenchmarkResult{}, Samples{})
	assert.False(t, r.Latency.P50.Valid)
	assert.False(t, r.Latency.P99.Valid)
	assert.Nil(t, r.Memory)
	assert.Equal(t, 0.0, r.Throughput)
	assert.False(t, math.IsNaN(r.Throughput))
}

func TestSummarize_TruncatedUsesQuantile(t *testing.T) {
	r := Summarize(report.BenchmarkResult{}, Samples{
		Concurrency: instrument.ConcurrencyStats{Success: 3, Truncated: true},
		Waits:       []time.Duration{time.Millisecond},
		Quantile:    func(p float64) time.Duration { return time.Duration(p) * time.Second },
	})
	assert.Equal(t, report.LatencyOf(95*time.Second), r.Latency.P95)
}

func TestDetectNPlusOne(t *testing.T) {
	var records []instrument.QueryRecord
	records = append(records, instrument.QueryRecord{Text: "SELECT id FROM products"})
	for i := 0; i < 20; i++ {
		records = append(records, instrument.QueryRecord{Text: "SELECT * FROM order_items WHERE product_id = ?", Params: []any{i}})
	}
	for i := 0; i < 3; i++ {
		records = append(records, instrument.QueryRecord{Text: "SELECT 1"})
	}
	got := DetectNPlusOne(records, 3)
	assert.Equal(t, []RepeatedStatement{
		{Text: "SELECT * FROM order_items WHERE product_id = ?", Count: 20},
		{Text: "SELECT 1", Count: 3},
	}, got)
	assert.Empty(t, DetectNPlusOne(records, 50))
}

func TestCompare(t *testing.T) {
	base := &report.BenchmarkResult{
		Status: report.StatusCompleted, QueryCount: 100, Throughput: 1000,
		Latency: report.Percentiles{P95: report.LatencyOf(10 * time.Millisecond)},
		Memory:  &report.Memory{PeakBytes: 1 << 20},
	}
	cand := &report.BenchmarkResult{
		Status: report.StatusCompleted, QueryCount: 101, Throughput: 700, FailureCount: 2,
		Latency: report.Percentiles{P95: report.LatencyOf(15 * time.Millisecond)},
	}

	got := Compare(base, cand, 10)
	names := make([]string, 0, len(got))
	for _, r := range got {
		names = append(names, r.Metric)
	}
	assert.Equal(t, []string{"throughput_ops_per_sec", "latency.p95", "failure_count"}, names)
	assert.InDelta(t, 30.0, got[0].ChangePercent, 1e-9)
	assert.InDelta(t, 50.0, got[1].ChangePercent, 1e-9)

	skipped := &report.BenchmarkResult{Status: report.StatusSkipped}
	assert.Nil(t, Compare(base, skipped, 10))
}
