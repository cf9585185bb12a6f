package report

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// Publish adds r to set. Every run bumps harness_runs_total; the
// measurement series are only updated for completed runs.
func Publish(set *metrics.Set, r *BenchmarkResult) {
	set.GetOrCreateCounter(fmt.Sprintf(`harness_runs_total{benchmark=%q,backend=%q,status=%q}`,
		r.Benchmark, r.Backend, string(r.Status))).Inc()
	if r.Degraded {
		set.GetOrCreateCounter(fmt.Sprintf(`harness_degraded_runs_total{benchmark=%q,backend=%q}`,
			r.Benchmark, r.Backend)).Inc()
	}
	if r.Status != StatusCompleted {
		return
	}

	labels := fmt.Sprintf(`{benchmark=%q,backend=%q}`, r.Benchmark, r.Backend)
	set.GetOrCreateFloatCounter("harness_queries_total" + labels).Add(float64(r.QueryCount))
	set.GetOrCreateFloatCounter("harness_operations_total" + labels).Add(float64(r.Operations))
	set.GetOrCreateFloatCounter("harness_deadlocks_total" + labels).Add(float64(r.DeadlockCount))
	set.GetOrCreateHistogram("harness_run_duration_seconds" + labels).Update(r.Duration.Seconds())
	set.GetOrCreateHistogram("harness_throughput_ops_per_second" + labels).Update(r.Throughput)
	if r.Latency.P95.Valid {
		set.GetOrCreateHistogram("harness_latency_p95_seconds" + labels).Update(r.Latency.P95.Value.Seconds())
	}
	if r.Memory != nil {
		set.GetOrCreateHistogram("harness_memory_peak_bytes" + labels).Update(float64(r.Memory.PeakBytes))
	}
}
