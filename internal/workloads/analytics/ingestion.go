package analytics

import (
	"context"
	"fmt"
	"time"

	"database-benchmark/internal/aggregate"
	"database-benchmark/internal/capability"
	"database-benchmark/internal/database"
	"database-benchmark/internal/runner"
	"database-benchmark/internal/workloads/fixture"
)

// Benchmarks returns every analytics benchmark against db at scale.
func Benchmarks(db database.Driver, scale runner.Scale, opts fixture.Options) []runner.Benchmark {
	scenario := runner.Scenario{Name: ScenarioName, Scale: scale}
	return []runner.Benchmark{
		{
			Name:         ScenarioName + "/ingestion",
			Scenario:     scenario,
			Requirements: capability.Requires(capability.MultiRowInsert),
			Work:         ingestion(db),
		},
		{
			Name:         ScenarioName + "/ingestion_growth",
			Scenario:     scenario,
			Requirements: capability.Requires(capability.MultiRowInsert),
			Work:         ingestionGrowth(db),
		},
		{
			Name:         ScenarioName + "/dashboard_query",
			Scenario:     scenario,
			Requirements: capability.Requires(capability.FilteredAggregates),
			Concurrent:   true,
			Work:         dashboardQuery(db, opts),
		},
	}
}

// ingestion writes as many events as were seeded twice: once a statement
// per event, once with multi-row inserts.
func ingestion(db database.Driver) runner.WorkFunc {
	return func(ctx context.Context, w *runner.Window) error {
		s, err := storeFor(db)
		if err != nil {
			return err
		}
		n := w.Records
		single, bulk := NewEvents(n), NewEvents(n)

		before := w.Queries.Count()
		start := time.Now()
		for _, ev := range single {
			if err := s.insertOne(ctx, ev); err != nil {
				return err
			}
		}
		singleTime := time.Since(start)
		singleQueries := w.Queries.Count() - before
		w.Snapshot("single_row")

		start = time.Now()
		if err := s.insertMany(ctx, bulk); err != nil {
			return err
		}
		bulkTime := time.Since(start)
		bulkQueries := w.Queries.Count() - before - singleQueries
		w.Snapshot("multi_row")

		stored, err := s.count(ctx)
		if err != nil {
			return err
		}
		if want := 3 * n; stored != want {
			return fmt.Errorf("data integrity: %d events stored, %d expected", stored, want)
		}
		w.AddOps(2 * n)

		w.SetExtra("single_row_queries", float64(singleQueries))
		w.SetExtra("multi_row_queries", float64(bulkQueries))
		w.SetExtra("query_reduction_percent", aggregate.ImprovementPercent(float64(singleQueries), float64(bulkQueries)))
		w.SetExtra("single_row_events_per_sec", aggregate.Throughput(n, singleTime))
		w.SetExtra("multi_row_events_per_sec", aggregate.Throughput(n, bulkTime))
		return nil
	}
}

// growthSizes are the batch sizes ingestion_growth compares, a quarter, a
// half and all of the seeded volume.
func growthSizes(records int64) []int64 {
	return []int64{max(records/4, 1), max(records/2, 1), max(records, 1)}
}

// ingestionGrowth ingests growing batches and checks that time and heap per
// event stay flat. The verdict is reported, not enforced.
func ingestionGrowth(db database.Driver) runner.WorkFunc {
	return func(ctx context.Context, w *runner.Window) error {
		s, err := storeFor(db)
		if err != nil {
			return err
		}

		sizes := growthSizes(w.Records)
		var perEventTime, perEventHeap []float64
		for _, n := range sizes {
			events := NewEvents(n)

			var heapBefore uint64
			heapKnown := false
			if w.Memory != nil {
				if sample, err := w.Memory.Snapshot(fmt.Sprintf("before_%d", n)); err == nil {
					heapBefore, heapKnown = sample.CurrentBytes, true
				}
			}

			start := time.Now()
			if err := s.insertMany(ctx, events); err != nil {
				return err
			}
			perEventTime = append(perEventTime, float64(time.Since(start))/float64(n))
			w.AddOps(n)

			if heapKnown {
				if sample, err := w.Memory.Snapshot(fmt.Sprintf("after_%d", n)); err == nil {
					perEventHeap = append(perEventHeap, aggregate.MemoryPerRecord(int64(sample.CurrentBytes)-int64(heapBefore), n))
				}
			}
		}

		cv, linear := aggregate.LinearGrowth(perEventTime, aggregate.DefaultGrowthTolerance)
		w.SetExtra("per_event_time_cv", cv)
		w.SetExtra("linear_growth", boolFigure(linear))
		if len(perEventHeap) == len(sizes) {
			heapCV, _ := aggregate.LinearGrowth(perEventHeap, aggregate.DefaultGrowthTolerance)
			w.SetExtra("per_event_heap_cv", heapCV)
		}
		return nil
	}
}

func boolFigure(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
