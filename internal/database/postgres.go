package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"database-benchmark/internal/capability"
	"database-benchmark/internal/instrument"
)

const pgDeadlockDetected = "40P01"

type PostgresDriver struct {
	pool    *pgxpool.Pool
	queries recorderSlot
}

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// queryTracer reports every statement pgx sends, including the BEGIN and
// COMMIT issued for transactions.
type queryTracer struct {
	slot *recorderSlot
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	t.slot.record(data.SQL, data.Args...)
	return ctx
}

func (t *queryTracer) TraceQueryEnd(context.Context, *pgx.Conn, pgx.TraceQueryEndData) {}

// pgRows adapts pgx.Rows, whose Close reports nothing.
type pgRows struct {
	pgx.Rows
}

func (r pgRows) Close() error {
	r.Rows.Close()
	return r.Rows.Err()
}

func (pd *PostgresDriver) Name() string { return "postgres" }

func (pd *PostgresDriver) Connect(ctx context.Context, dsn string) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return err
	}
	cfg.ConnConfig.Tracer = &queryTracer{slot: &pd.queries}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return err
	}
	pd.pool = pool
	return nil
}

func (pd *PostgresDriver) Close() error {
	if pd.pool != nil {
		pd.pool.Close()
	}
	return nil
}

func (pd *PostgresDriver) Ping(ctx context.Context) error {
	return pd.pool.Ping(ctx)
}

func (pd *PostgresDriver) Instrument(rec instrument.QueryRecorder) {
	pd.queries.set(rec)
}

func (pd *PostgresDriver) Reset(ctx context.Context) error {
	rows, err := pd.pool.Query(ctx, "SELECT tablename FROM pg_tables WHERE schemaname = 'public'")
	if err != nil {
		return err
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}

	for _, tableName := range tables {
		_, err = pd.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", pgx.Identifier{tableName}.Sanitize()))
		if err != nil {
			return err
		}
	}

	return nil
}

func (pd *PostgresDriver) querier(ctx context.Context) pgQuerier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pd.pool
}

func (pd *PostgresDriver) ExecuteTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := pd.pool.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback(ctx)
			panic(p) // re-panic after rollback
		} else if err != nil {
			tx.Rollback(ctx) // err is non-nil; don't change it
		} else {
			err = tx.Commit(ctx) // err is nil; if Commit returns error, update err
		}
	}()

	err = fn(context.WithValue(ctx, txKey{}, tx))
	return err
}

func (pd *PostgresDriver) ExecContext(ctx context.Context, query string, args ...interface{}) (int64, error) {
	tag, err := pd.querier(ctx).Exec(ctx, Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (pd *PostgresDriver) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	rows, err := pd.querier(ctx).Query(ctx, Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return pgRows{rows}, nil
}

func (pd *PostgresDriver) QueryRowContext(ctx context.Context, query string, args ...interface{}) Row {
	return pd.querier(ctx).QueryRow(ctx, Rebind(query), args...)
}

func (pd *PostgresDriver) IsDeadlock(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgDeadlockDetected
}

func (pd *PostgresDriver) Capabilities() *capability.Registry {
	return capability.NewRegistry("postgres",
		capability.Savepoints,
		capability.SerializableIsolation,
		capability.ReadOnlyTransactions,
		capability.TransactionalDDL,
		capability.RowLevelLocking,
		capability.SkipLocked,
		capability.NoWait,
		capability.AdvisoryLocks,
		capability.TableLocking,
		capability.FilteredAggregates,
		capability.StringAggregation,
		capability.JSONAggregation,
		capability.StatisticalAggregates,
		capability.DistinctAggregates,
		capability.BasicCTE,
		capability.RecursiveCTE,
		capability.MaterializedCTE,
		capability.WritableCTE,
		capability.RankingFunctions,
		capability.OffsetFunctions,
		capability.AggregateWindows,
		capability.FrameClauses,
		capability.MultiRowInsert,
		capability.BulkUpdate,
		capability.Upsert,
		capability.Returning,
		capability.CopyFrom,
		capability.Pooling,
		capability.PreparedStatements,
		capability.ConcurrentWriters,
		capability.SessionReset,
		capability.StatementCache,
		capability.PartialIndex,
		capability.ExpressionIndex,
		capability.FullTextIndex,
		capability.JSONIndex,
		capability.CoveringIndex,
	)
}
