package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *BenchmarkResult {
	return &BenchmarkResult{
		RunID:      "4a1d0f3e-5d7c-4a43-9d35-2f6ef1c4d2a1",
		Benchmark:  "ecommerce/order_processing",
		Backend:    "sqlite",
		Scenario:   "orders",
		Scale:      "small",
		Records:    100,
		Status:     StatusCompleted,
		Faults:     []string{"memory: stop: read failed"},
		Degraded:   true,
		StartedAt:  time.Unix(1760870000, 123456789).UTC(),
		Duration:   1500 * time.Millisecond,
		Operations: 1000,
		Throughput: 666.6666666666666,
		QueryCount: 4000,
		Latency: Percentiles{
			P50: LatencyOf(2 * time.Millisecond),
			P95: LatencyOf(9 * time.Millisecond),
		},
		AvgWait:       3 * time.Millisecond,
		MaxWait:       40 * time.Millisecond,
		SuccessCount:  998,
		FailureCount:  2,
		DeadlockCount: 1,
	}
}

func TestLatency_EncodesMissingAsNA(t *testing.T) {
	data, err := Marshal(sampleResult())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"p99": "n/a"`)
	assert.Contains(t, string(data), `"p50": 2000000`)

	var l Latency
	assert.Error(t, l.UnmarshalJSON([]byte(`"soon"`)))
	require.NoError(t, l.UnmarshalJSON([]byte(`null`)))
	assert.False(t, l.Valid)
	assert.Equal(t, "n/a", l.String())
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	r := sampleResult()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, r))
	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestWriteReadFile(t *testing.T) {
	r := sampleResult()
	r.Memory = &Memory{StartBytes: 10, EndBytes: 5, UsedBytes: -5, PeakBytes: 4096, PerRecordBytes: 0}
	r.Degraded, r.Faults = false, nil
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, WriteFile(path, r))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusCompleted.Passed())
	assert.False(t, StatusSkipped.Passed())
	assert.False(t, StatusSkipped.Failed())
	assert.False(t, StatusTimedOut.Failed())
	assert.True(t, StatusSetupFailed.Failed())
	assert.True(t, StatusFailed.Failed())
}

func TestProperty_ResultRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	statuses := []Status{StatusCompleted, StatusSkipped, StatusTimedOut, StatusSetupFailed, StatusFailed}

	properties.Property("decode(encode(x)) == x", prop.ForAll(
		func(name string, status int, secs int64, nanos int64, counts []int64, throughput float64, withMemory bool, p50 int64) bool {
			for len(counts) < 8 {
				counts = append(counts, 0)
			}
			r := &BenchmarkResult{
				RunID:         name + "-id",
				Benchmark:     name,
				Backend:       "postgres",
				Scale:         "custom(42)",
				Status:        statuses[status],
				StartedAt:     time.Unix(secs, nanos).UTC(),
				Duration:      time.Duration(counts[0]),
				Operations:    counts[1],
				Throughput:    throughput,
				QueryCount:    counts[2],
				AvgWait:       time.Duration(counts[3]),
				MaxWait:       time.Duration(counts[4]),
				SuccessCount:  counts[5],
				FailureCount:  counts[6],
				DeadlockCount: counts[7],
			}
			if p50 >= 0 {
				r.Latency.P50 = LatencyOf(time.Duration(p50))
			}
			if withMemory {
				r.Memory = &Memory{UsedBytes: -counts[2], PeakBytes: uint64(counts[1]), PerRecordBytes: throughput / 3}
			}
			data, err := Marshal(r)
			if err != nil {
				return false
			}
			got, err := Unmarshal(data)
			if err != nil {
				return false
			}
			return assert.ObjectsAreEqual(r, got)
		},
		gen.AlphaString(),
		gen.IntRange(0, len(statuses)-1),
		gen.Int64Range(0, 4102444800),
		gen.Int64Range(0, 999999999),
		gen.SliceOf(gen.Int64Range(0, 1<<50)),
		gen.Float64Range(0, 1e9),
		gen.Bool(),
		gen.Int64Range(-1, 1<<40),
	))

	properties.TestingRun(t)
}

func TestPublish(t *testing.T) {
	set := metrics.NewSet()
	r := sampleResult()
	r.Memory = &Memory{PeakBytes: 2048}
	Publish(set, r)
	Publish(set, &BenchmarkResult{Benchmark: "ecommerce/inventory_update", Backend: "sqlite", Status: StatusSkipped})

	var buf bytes.Buffer
	set.WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, `harness_runs_total{benchmark="ecommerce/order_processing",backend="sqlite",status="completed"} 1`)
	assert.Contains(t, out, `harness_runs_total{benchmark="ecommerce/inventory_update",backend="sqlite",status="skipped"} 1`)
	assert.Contains(t, out, `harness_degraded_runs_total{benchmark="ecommerce/order_processing",backend="sqlite"} 1`)
	assert.Contains(t, out, `harness_queries_total{benchmark="ecommerce/order_processing",backend="sqlite"} 4000`)
	assert.True(t, strings.Contains(out, "harness_memory_peak_bytes_bucket"))
	assert.False(t, strings.Contains(out, `harness_queries_total{benchmark="ecommerce/inventory_update"`))
}
