package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"database-benchmark/internal/config"
	"database-benchmark/internal/database"
	"database-benchmark/internal/instrument"
	"database-benchmark/internal/report"
	"database-benchmark/internal/runner"
	"database-benchmark/internal/workloads/fixture"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmarks of a workload",
		Long: `Run every benchmark of a workload, or a single one with --test, and
print one JSON result per benchmark. The command fails when any benchmark
failed; skipped benchmarks do not count as failures.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmarks(cmd, v)
		},
	}

	f := cmd.Flags()
	f.String("workload", "ecommerce", wrapString(fmt.Sprintf("Workload to run, one of %s", strings.Join(workloadNames(), ", "))))
	f.String("test", "", wrapString("Single benchmark of the workload to run, e.g. order_processing. Runs all when empty"))
	f.String("scale", "", wrapString("Dataset size: small, medium, large or a record count. Defaults to benchmark_settings.scale"))
	f.Int("concurrency", 0, wrapString("Workers for concurrent benchmarks. Defaults to benchmark_settings.default_concurrency"))
	f.Duration("duration", 0, wrapString("How long concurrent workers keep going. Defaults to benchmark_settings.default_duration"))
	f.Int("ops-per-worker", fixture.DefaultOpsPerWorker, wrapString("Fixed operation count per worker. Setting it without --duration ignores default_duration"))
	f.Duration("timeout", 0, wrapString("Upper bound for the work of one benchmark. Defaults to benchmark_settings.timeout"))
	f.Bool("reset", false, wrapString("Drop every table of the target database before running"))
	f.String("out-dir", "", wrapString("Write each result to <dir>/<workload>_<test>-<db>.json instead of stdout"))
	f.String("metrics-out", "", wrapString("Write the run metrics in Prometheus text format to this file"))
	return cmd
}

func runBenchmarks(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}
	logger, stdLogger, err := newLogger(cmd, v)
	if err != nil {
		return err
	}

	workloadName := v.GetString("workload")
	wl, ok := workloads[workloadName]
	if !ok {
		return fmt.Errorf("unsupported workload: %s", workloadName)
	}
	scale, err := runner.ParseScale(firstNonEmpty(v.GetString("scale"), cfg.BenchmarkSettings.Scale))
	if err != nil {
		return err
	}
	decl, err := declarations(cfg)
	if err != nil {
		return err
	}

	dbName := v.GetString("db")
	db, err := database.New(dbName)
	if err != nil {
		return err
	}
	dsn := v.GetString("dsn")
	if dsn == "" {
		if dsn, err = cfg.DSN(dbName); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := db.Connect(ctx, dsn); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", dbName, err)
	}
	defer db.Close()

	if v.GetBool("reset") {
		if err := db.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset database: %w", err)
		}
	}

	opts := fixture.Options{
		Concurrency:  firstPositive(v.GetInt("concurrency"), cfg.BenchmarkSettings.DefaultConcurrency),
		Duration:     workDuration(cmd, v, cfg),
		OpsPerWorker: v.GetInt("ops-per-worker"),
		Logger:       stdLogger,
	}
	benchmarks, err := selectBenchmarks(wl.benchmarks(db, scale, opts), workloadName, v.GetString("test"))
	if err != nil {
		return err
	}

	set := metrics.NewSet()
	r := runner.New(wl.provider(db, stdLogger), registryFor(decl, db),
		runner.WithLeveledLogger(logger),
		runner.WithTimeout(timeoutFor(v, cfg)),
		runner.WithDeadlockClassifier(db.IsDeadlock),
		runner.WithMetrics(set),
		runner.WithMemoryOptions(instrument.WithSampleInterval(cfg.BenchmarkSettings.SampleInterval())),
	)
	db.Instrument(r.Recorder())

	failed := 0
	for _, b := range benchmarks {
		if rs, ok := decl.Requirements(b.Name); ok {
			b.Requirements = rs
		}
		res, err := r.Run(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			logger.Errorf("%v", err)
		}
		if res.Status.Failed() || res.Status == report.StatusTimedOut {
			failed++
		}
		if err := emit(cmd.OutOrStdout(), v.GetString("out-dir"), res); err != nil {
			return err
		}
	}

	if path := v.GetString("metrics-out"); path != "" {
		if err := writeMetrics(path, set); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d benchmarks failed", failed, len(benchmarks))
	}
	return nil
}

// workDuration picks how long workers run. Zero means a fixed count per
// worker.
func workDuration(cmd *cobra.Command, v *viper.Viper, cfg *config.Config) time.Duration {
	if d := v.GetDuration("duration"); d > 0 {
		return d
	}
	if cmd.Flags().Changed("ops-per-worker") {
		return 0
	}
	return cfg.BenchmarkSettings.Duration()
}

func timeoutFor(v *viper.Viper, cfg *config.Config) time.Duration {
	if d := v.GetDuration("timeout"); d > 0 {
		return d
	}
	return cfg.BenchmarkSettings.TimeoutDuration()
}

func emit(stdout io.Writer, dir string, res *report.BenchmarkResult) error {
	if dir == "" {
		return report.Encode(stdout, res)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%s.json", strings.ReplaceAll(res.Benchmark, "/", "_"), res.Backend)
	return report.WriteFile(filepath.Join(dir, name), res)
}

func writeMetrics(path string, set *metrics.Set) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	set.WritePrometheus(f)
	return f.Close()
}

func firstNonEmpty(values ...string) string {
	for _, s := range values {
		if s != "" {
			return s
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, n := range values {
		if n > 0 {
			return n
		}
	}
	return 0
}
