package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"database-benchmark/internal/capability"
)

const (
	mysqlDeadlock        = 1213
	mysqlLockWaitTimeout = 1205
)

type MySQLDriver struct {
	sqlBase
}

func (md *MySQLDriver) Name() string { return "mysql" }

func (md *MySQLDriver) Connect(ctx context.Context, dsn string) error {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return err
	}
	// timestamps scan into time.Time
	cfg.ParseTime = true
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return err
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}
	md.db = db
	return nil
}

func (md *MySQLDriver) Reset(ctx context.Context) error {
	if _, err := md.db.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return err
	}
	defer md.db.ExecContext(context.WithoutCancel(ctx), "SET FOREIGN_KEY_CHECKS = 1")
	return md.dropTables(ctx, "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE()")
}

func (md *MySQLDriver) IsDeadlock(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}
	return false
}

func (md *MySQLDriver) Capabilities() *capability.Registry {
	return capability.NewRegistry("mysql",
		capability.Savepoints,
		capability.SerializableIsolation,
		capability.ReadOnlyTransactions,
		capability.RowLevelLocking,
		capability.SkipLocked,
		capability.NoWait,
		capability.AdvisoryLocks,
		capability.TableLocking,
		capability.StringAggregation,
		capability.JSONAggregation,
		capability.StatisticalAggregates,
		capability.DistinctAggregates,
		capability.BasicCTE,
		capability.RecursiveCTE,
		capability.RankingFunctions,
		capability.OffsetFunctions,
		capability.AggregateWindows,
		capability.FrameClauses,
		capability.MultiRowInsert,
		capability.BulkUpdate,
		capability.Upsert,
		capability.Pooling,
		capability.PreparedStatements,
		capability.ConcurrentWriters,
		capability.SessionReset,
		capability.ExpressionIndex,
		capability.FullTextIndex,
		capability.CoveringIndex,
	)
}
