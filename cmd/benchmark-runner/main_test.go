package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"database-benchmark/internal/config"
	"database-benchmark/internal/report"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_WritesResultsAndMetrics(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "cli.db")
	outDir := filepath.Join(dir, "results")
	metricsOut := filepath.Join(dir, "metrics.prom")

	_, err := execute(t, "run",
		"--db", "sqlite", "--dsn", dsn,
		"--workload", "analytics", "--test", "ingestion",
		"--scale", "20", "--out-dir", outDir, "--metrics-out", metricsOut)
	require.NoError(t, err)

	res, err := report.ReadFile(filepath.Join(outDir, "analytics_ingestion-sqlite.json"))
	require.NoError(t, err)
	assert.Equal(t, report.StatusCompleted, res.Status, res.Error)
	assert.Equal(t, "custom(20)", res.Scale)
	assert.Equal(t, int64(40), res.Operations)

	prom, err := os.ReadFile(metricsOut)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `harness_runs_total{benchmark="analytics/ingestion",backend="sqlite",status="completed"} 1`)
}

func TestRun_SkippedBenchmarkIsNotAFailure(t *testing.T) {
	out, err := execute(t, "run",
		"--dsn", filepath.Join(t.TempDir(), "cli.db"),
		"--workload", "ecommerce", "--test", "inventory_update", "--scale", "10")
	require.NoError(t, err)

	res, err := report.Decode(bytes.NewBufferString(out))
	require.NoError(t, err)
	assert.Equal(t, report.StatusSkipped, res.Status)
	assert.Equal(t, "backend sqlite does not support locking.row_level", res.SkipReason)
}

func TestRun_CapabilitiesFileOverridesDriver(t *testing.T) {
	dir := t.TempDir()
	caps := filepath.Join(dir, "capabilities.yaml")
	require.NoError(t, os.WriteFile(caps, []byte("backends:\n  sqlite: [transaction.savepoints]\n"), 0o644))
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("capabilities_file: "+caps+"\n"), 0o644))

	out, err := execute(t, "run", "--config", cfg,
		"--dsn", filepath.Join(dir, "cli.db"),
		"--workload", "analytics", "--test", "ingestion", "--scale", "10")
	require.NoError(t, err)

	res, err := report.Decode(bytes.NewBufferString(out))
	require.NoError(t, err)
	assert.Equal(t, report.StatusSkipped, res.Status)
}

func TestRun_UnknownTest(t *testing.T) {
	_, err := execute(t, "run", "--dsn", filepath.Join(t.TempDir(), "cli.db"), "--workload", "analytics", "--test", "nope")
	assert.EqualError(t, err, "unsupported workload/test: analytics/nope")

	_, err = execute(t, "run", "--workload", "nope")
	assert.EqualError(t, err, "unsupported workload: nope")
}

func TestRun_MissingExplicitConfig(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWorkDuration(t *testing.T) {
	cfg := config.Default()
	cfg.BenchmarkSettings.DefaultDuration = "10s"

	tests := []struct {
		name string
		args []string
		want time.Duration
	}{
		{name: "config default", want: 10 * time.Second},
		{name: "flag wins", args: []string{"--duration", "3s"}, want: 3 * time.Second},
		{name: "fixed count", args: []string{"--ops-per-worker", "5"}, want: 0},
		{name: "flag wins over fixed count", args: []string{"--ops-per-worker", "5", "--duration", "2s"}, want: 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			cmd := newRunCmd(v)
			require.NoError(t, cmd.ParseFlags(tt.args))
			require.NoError(t, v.BindPFlags(cmd.Flags()))
			assert.Equal(t, tt.want, workDuration(cmd, v, cfg))
		})
	}
}

func TestCapabilities(t *testing.T) {
	out, err := execute(t, "capabilities", "--db", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite (")
	assert.Contains(t, out, "transaction.savepoints")
	assert.NotContains(t, out, "locking.row_level")
}

func TestDiff(t *testing.T) {
	dir := t.TempDir()
	base := &report.BenchmarkResult{Benchmark: "analytics/ingestion", Backend: "sqlite", Status: report.StatusCompleted, QueryCount: 100, Throughput: 50}
	same := *base
	worse := *base
	worse.QueryCount = 150

	write := func(name string, r *report.BenchmarkResult) string {
		path := filepath.Join(dir, name)
		require.NoError(t, report.WriteFile(path, r))
		return path
	}
	basePath := write("base.json", base)

	out, err := execute(t, "diff", basePath, write("same.json", &same))
	require.NoError(t, err)
	assert.Contains(t, out, "no regressions")

	out, err = execute(t, "diff", basePath, write("worse.json", &worse))
	assert.EqualError(t, err, "1 metrics regressed")
	assert.Contains(t, out, "query_count")

	_, err = execute(t, "diff", "--tolerance", "60", basePath, filepath.Join(dir, "worse.json"))
	assert.NoError(t, err)
}

func TestWrapString(t *testing.T) {
	wrapped := wrapString("one two three four five six seven eight nine ten eleven twelve thirteen")
	for _, line := range bytes.Split([]byte(wrapped), []byte("\n")) {
		assert.LessOrEqual(t, len(line), wrap)
	}
}
