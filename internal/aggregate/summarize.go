package aggregate

import (
	"sort"
	"time"

	"database-benchmark/internal/instrument"
	"database-benchmark/internal/report"
)

// Samples are the raw figures collected during one measurement window.
type Samples struct {
	Duration time.Duration
	// Operations counted by the workload itself, on top of tracker outcomes.
	Operations int64
	Records    int64
	QueryCount int
	// Memory is nil when memory instrumentation degraded.
	Memory      *instrument.MemoryUsage
	Concurrency instrument.ConcurrencyStats
	// Waits are the retained raw wait times, sorted or not.
	Waits []time.Duration
	// Quantile estimates percentiles over every wait once raw retention
	// overflowed. Optional.
	Quantile func(p float64) time.Duration
	// Extra is copied into the result as is.
	Extra map[string]float64
}

// Summarize fills the measurement fields of base from s.
func Summarize(base report.BenchmarkResult, s Samples) *report.BenchmarkResult {
	r := base
	c := s.Concurrency

	r.Duration = s.Duration
	r.Records = s.Records
	r.Operations = s.Operations + c.Operations()
	r.Throughput = Throughput(r.Operations, s.Duration)
	r.QueryCount = int64(s.QueryCount)
	r.SuccessCount = c.Success
	r.FailureCount = c.Failure
	r.DeadlockCount = c.Deadlocks
	r.LeakCount = c.LeakCount
	r.AvgWait = c.AvgWait
	r.MaxWait = c.MaxWait
	r.Latency = latencies(s)
	if len(s.Extra) > 0 {
		r.Extra = make(map[string]float64, len(s.Extra))
		for k, v := range s.Extra {
			r.Extra[k] = v
		}
	}

	if s.Memory != nil {
		r.Memory = &report.Memory{
			StartBytes:     s.Memory.Start,
			EndBytes:       s.Memory.Current,
			UsedBytes:      s.Memory.Used,
			PeakBytes:      s.Memory.Peak,
			PerRecordBytes: MemoryPerRecord(s.Memory.Used, s.Records),
		}
	}
	return &r
}

func latencies(s Samples) report.Percentiles {
	var out report.Percentiles
	if s.Concurrency.Truncated && s.Quantile != nil {
		out.P50 = report.LatencyOf(s.Quantile(50))
		out.P95 = report.LatencyOf(s.Quantile(95))
		out.P99 = report.LatencyOf(s.Quantile(99))
		return out
	}
	if v, ok := DurationPercentile(s.Waits, 50); ok {
		out.P50 = report.LatencyOf(v)
	}
	if v, ok := DurationPercentile(s.Waits, 95); ok {
		out.P95 = report.LatencyOf(v)
	}
	if v, ok := DurationPercentile(s.Waits, 99); ok {
		out.P99 = report.LatencyOf(v)
	}
	return out
}

// RepeatedStatement is a statement text issued more than once in a window.
type RepeatedStatement struct {
	Text  string
	Count int
}

// DetectNPlusOne groups records by statement text and returns every text
// issued at least threshold times, most frequent first.
func DetectNPlusOne(records []instrument.QueryRecord, threshold int) []RepeatedStatement {
	counts := make(map[string]int)
	for _, q := range records {
		counts[q.Text]++
	}
	var out []RepeatedStatement
	for text, n := range counts {
		if n >= threshold {
			out = append(out, RepeatedStatement{Text: text, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Text < out[j].Text
	})
	return out
}
