// Package fixture holds the schema and seeding helpers the workload
// providers share.
package fixture

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"go.uber.org/multierr"

	"database-benchmark/internal/database"
	"database-benchmark/internal/runner"
)

const (
	// DefaultBatchSize is the number of rows per multi-row INSERT.
	DefaultBatchSize = 100
	// DefaultOpsPerWorker bounds a worker when no duration is set.
	DefaultOpsPerWorker = 100
)

// Options tune how hard a workload drives the backend.
type Options struct {
	Concurrency  int
	Duration     time.Duration
	OpsPerWorker int
	Logger       *log.Logger
}

func (o Options) Log() *log.Logger {
	if o.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return o.Logger
}

// Plan turns the options into a worker plan. A duration wins over a fixed
// operation count.
func (o Options) Plan() runner.WorkerPlan {
	workers := o.Concurrency
	if workers <= 0 {
		workers = 1
	}
	if o.Duration > 0 {
		return runner.WorkerPlan{Workers: workers, Duration: o.Duration}
	}
	per := o.OpsPerWorker
	if per <= 0 {
		per = DefaultOpsPerWorker
	}
	return runner.WorkerPlan{Workers: workers, PerWorker: per}
}

// SQL returns db as a SQLDriver, or a setup error for backends without SQL.
func SQL(db database.Driver, scenario string) (database.SQLDriver, error) {
	sqlDB, ok := db.(database.SQLDriver)
	if !ok {
		return nil, &runner.SetupError{
			Kind:     runner.SchemaConflict,
			Scenario: scenario,
			Err:      fmt.Errorf("%s has no SQL interface", db.Name()),
		}
	}
	return sqlDB, nil
}

// CreateTables checks the backend is reachable and runs ddl in order. An
// existing table is a schema conflict.
func CreateTables(ctx context.Context, db database.SQLDriver, scenario string, ddl ...string) error {
	if err := db.Ping(ctx); err != nil {
		return &runner.SetupError{Kind: runner.BackendUnreachable, Scenario: scenario, Err: err}
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return &runner.SetupError{Kind: runner.SchemaConflict, Scenario: scenario, Err: err}
		}
	}
	return nil
}

// DropTables drops every table, continuing past failures.
func DropTables(ctx context.Context, db database.SQLDriver, tables ...string) error {
	var errs error
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// InsertRows writes rows with multi-row INSERT statements of at most batch
// rows each and returns the number of rows written.
func InsertRows(ctx context.Context, db database.SQLDriver, table string, columns []string, rows [][]interface{}, batch int) (int64, error) {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	var written int64
	for start := 0; start < len(rows); start += batch {
		end := start + batch
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		args := make([]interface{}, 0, len(chunk)*len(columns))
		for _, row := range chunk {
			args = append(args, row...)
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			table, strings.Join(columns, ", "), database.Placeholders(len(chunk), len(columns)))
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return written, err
		}
		written += int64(len(chunk))
	}
	return written, nil
}

// Count returns SELECT COUNT(*) over table.
func Count(ctx context.Context, db database.SQLDriver, table string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	return n, err
}
