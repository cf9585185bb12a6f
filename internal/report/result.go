// Package report defines BenchmarkResult, the machine-readable record of one
// benchmark run, and its encodings. Field names are stable so two runs can be
// diffed by downstream tooling.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusSkipped     Status = "skipped"
	StatusTimedOut    Status = "timed_out"
	StatusSetupFailed Status = "setup_failed"
	StatusFailed      Status = "failed"
)

// Passed reports whether the run completed. Skipped and timed-out runs are
// neither passes nor failures.
func (s Status) Passed() bool { return s == StatusCompleted }

// Failed reports whether the run is a real failure.
func (s Status) Failed() bool { return s == StatusFailed || s == StatusSetupFailed }

const notAvailable = "n/a"

// Latency is a percentile value that is absent when there were no samples.
// It encodes as nanoseconds, or as "n/a" when absent.
type Latency struct {
	Value time.Duration
	Valid bool
}

func LatencyOf(d time.Duration) Latency {
	return Latency{Value: d, Valid: true}
}

func (l Latency) String() string {
	if !l.Valid {
		return notAvailable
	}
	return l.Value.String()
}

func (l Latency) MarshalJSON() ([]byte, error) {
	if !l.Valid {
		return json.Marshal(notAvailable)
	}
	return json.Marshal(int64(l.Value))
}

func (l *Latency) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != notAvailable {
			return fmt.Errorf("report: invalid latency %q", s)
		}
		*l = Latency{}
		return nil
	}
	if string(data) == "null" {
		*l = Latency{}
		return nil
	}
	var ns int64
	if err := json.Unmarshal(data, &ns); err != nil {
		return err
	}
	*l = LatencyOf(time.Duration(ns))
	return nil
}

type Percentiles struct {
	P50 Latency `json:"p50"`
	P95 Latency `json:"p95"`
	P99 Latency `json:"p99"`
}

// Memory holds heap figures. It is nil on a result whose memory
// instrumentation degraded.
type Memory struct {
	StartBytes     uint64  `json:"start_bytes"`
	EndBytes       uint64  `json:"end_bytes"`
	UsedBytes      int64   `json:"used_bytes"`
	PeakBytes      uint64  `json:"peak_bytes"`
	PerRecordBytes float64 `json:"per_record_bytes"`
}

// BenchmarkResult is derived from raw samples and never edited by hand.
type BenchmarkResult struct {
	RunID      string `json:"run_id"`
	Benchmark  string `json:"benchmark"`
	Backend    string `json:"backend"`
	Scenario   string `json:"scenario"`
	Scale      string `json:"scale"`
	Records    int64  `json:"records"`
	Status     Status `json:"status"`
	SkipReason string `json:"skip_reason,omitempty"`
	Error      string `json:"error,omitempty"`

	Degraded bool     `json:"degraded"`
	Faults   []string `json:"faults,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Operations int64         `json:"operations"`
	Throughput float64       `json:"throughput_ops_per_sec"`
	QueryCount int64         `json:"query_count"`

	Memory  *Memory     `json:"memory,omitempty"`
	Latency Percentiles `json:"latency"`

	AvgWait       time.Duration `json:"avg_wait_ns"`
	MaxWait       time.Duration `json:"max_wait_ns"`
	SuccessCount  int64         `json:"success_count"`
	FailureCount  int64         `json:"failure_count"`
	DeadlockCount int64         `json:"deadlock_count"`
	LeakCount     int64         `json:"leak_count"`

	// Extra holds figures specific to one workload, such as query counts of
	// the variants it compares.
	Extra map[string]float64 `json:"extra,omitempty"`
}

// Name returns the identifier used in logs: backend/benchmark.
func (r *BenchmarkResult) Name() string {
	return r.Backend + "/" + r.Benchmark
}
