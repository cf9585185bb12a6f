package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"database-benchmark/internal/capability"
)

// SQLiteDriver runs against an embedded database file. Writers are
// serialised on a single connection.
type SQLiteDriver struct {
	sqlBase
}

func (sd *SQLiteDriver) Name() string { return "sqlite" }

func (sd *SQLiteDriver) Connect(ctx context.Context, dsn string) error {
	db, err := sql.Open("sqlite3", sqliteDSN(dsn))
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}
	sd.db = db
	return nil
}

// sqliteDSN adds a busy timeout unless the caller set one.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000"
}

func (sd *SQLiteDriver) Reset(ctx context.Context) error {
	return sd.dropTables(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
}

func (sd *SQLiteDriver) IsDeadlock(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func (sd *SQLiteDriver) Capabilities() *capability.Registry {
	return capability.NewRegistry("sqlite",
		capability.Savepoints,
		capability.SerializableIsolation,
		capability.TransactionalDDL,
		capability.TableLocking,
		capability.FilteredAggregates,
		capability.StringAggregation,
		capability.JSONAggregation,
		capability.DistinctAggregates,
		capability.BasicCTE,
		capability.RecursiveCTE,
		capability.MaterializedCTE,
		capability.RankingFunctions,
		capability.OffsetFunctions,
		capability.AggregateWindows,
		capability.FrameClauses,
		capability.MultiRowInsert,
		capability.BulkUpdate,
		capability.Upsert,
		capability.Returning,
		capability.PreparedStatements,
		capability.PartialIndex,
		capability.ExpressionIndex,
		capability.CoveringIndex,
	)
}
