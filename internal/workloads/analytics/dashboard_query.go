package analytics

import (
	"context"
	"fmt"

	"database-benchmark/internal/database"
	"database-benchmark/internal/runner"
	"database-benchmark/internal/workloads/fixture"
)

const dashboardQueryText = `
	SELECT region,
		COUNT(*),
		COALESCE(SUM(metric_value), 0),
		COALESCE(SUM(metric_value) FILTER (WHERE metric_value >= 50), 0)
	FROM events
	GROUP BY region
	ORDER BY region`

// RegionStats is one row of the dashboard.
type RegionStats struct {
	Region string
	Events int64
	Total  float64
	High   float64
}

// dashboardQuery has every worker aggregate the whole events table per
// region.
func dashboardQuery(db database.Driver, opts fixture.Options) runner.WorkFunc {
	return func(ctx context.Context, w *runner.Window) error {
		sqlDB, err := fixture.SQL(db, ScenarioName)
		if err != nil {
			return err
		}
		wantRegions := min(w.Records, Regions)

		return w.RunWorkers(ctx, opts.Plan(), func(ctx context.Context, _, _ int) error {
			stats, err := Dashboard(ctx, sqlDB)
			if err != nil {
				return err
			}
			if int64(len(stats)) != wantRegions {
				return fmt.Errorf("dashboard returned %d regions, %d expected", len(stats), wantRegions)
			}
			return nil
		})
	}
}

// Dashboard runs the per-region aggregate.
func Dashboard(ctx context.Context, db database.SQLDriver) ([]RegionStats, error) {
	rows, err := db.QueryContext(ctx, dashboardQueryText)
	if err != nil {
		return nil, err
	}
	var out []RegionStats
	for rows.Next() {
		var s RegionStats
		if err := rows.Scan(&s.Region, &s.Events, &s.Total, &s.High); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Close()
}
