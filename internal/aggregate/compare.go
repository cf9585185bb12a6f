package aggregate

import "database-benchmark/internal/report"

// Regression is a metric that got worse by more than the tolerance.
// ChangePercent is positive in the "worse" direction.
type Regression struct {
	Metric        string
	Baseline      float64
	Candidate     float64
	ChangePercent float64
}

type metric struct {
	name           string
	value          func(r *report.BenchmarkResult) (float64, bool)
	higherIsBetter bool
}

var comparedMetrics = []metric{
	{name: "query_count", value: func(r *report.BenchmarkResult) (float64, bool) {
		return float64(r.QueryCount), true
	}},
	{name: "throughput_ops_per_sec", higherIsBetter: true, value: func(r *report.BenchmarkResult) (float64, bool) {
		return r.Throughput, true
	}},
	{name: "latency.p95", value: func(r *report.BenchmarkResult) (float64, bool) {
		return float64(r.Latency.P95.Value), r.Latency.P95.Valid
	}},
	{name: "latency.p99", value: func(r *report.BenchmarkResult) (float64, bool) {
		return float64(r.Latency.P99.Value), r.Latency.P99.Valid
	}},
	{name: "memory.peak_bytes", value: func(r *report.BenchmarkResult) (float64, bool) {
		if r.Memory == nil {
			return 0, false
		}
		return float64(r.Memory.PeakBytes), true
	}},
	{name: "failure_count", value: func(r *report.BenchmarkResult) (float64, bool) {
		return float64(r.FailureCount), true
	}},
}

// Compare lists the metrics of candidate that regressed against baseline by
// more than tolerance percent. Only two completed runs are comparable.
func Compare(baseline, candidate *report.BenchmarkResult, tolerance float64) []Regression {
	if baseline.Status != report.StatusCompleted || candidate.Status != report.StatusCompleted {
		return nil
	}
	var out []Regression
	for _, m := range comparedMetrics {
		b, okB := m.value(baseline)
		c, okC := m.value(candidate)
		if !okB || !okC {
			continue
		}
		var change float64
		switch {
		case m.higherIsBetter:
			change = ImprovementPercent(b, c)
		case b == 0 && c > 0:
			// anything appearing from nothing counts as a full regression
			change = 100
		default:
			change = -ImprovementPercent(b, c)
		}
		if change > tolerance {
			out = append(out, Regression{Metric: m.name, Baseline: b, Candidate: c, ChangePercent: change})
		}
	}
	return out
}
