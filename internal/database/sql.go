package database

import (
	"context"
	"database/sql"
	"fmt"

	"database-benchmark/internal/instrument"
)

type txKey struct{}

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqlBase implements the statement and transaction half of SQLDriver over
// database/sql.
type sqlBase struct {
	db      *sql.DB
	queries recorderSlot
}

func (b *sqlBase) querier(ctx context.Context) sqlQuerier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return b.db
}

func (b *sqlBase) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *sqlBase) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *sqlBase) Instrument(rec instrument.QueryRecorder) {
	b.queries.set(rec)
}

func (b *sqlBase) ExecuteTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	b.queries.record("BEGIN")
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			b.queries.record("ROLLBACK")
			_ = tx.Rollback()
			panic(p) // re-panic after rollback
		} else if err != nil {
			b.queries.record("ROLLBACK")
			_ = tx.Rollback() // err is non-nil; don't change it
		} else {
			b.queries.record("COMMIT")
			err = tx.Commit()
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, tx))
}

func (b *sqlBase) ExecContext(ctx context.Context, query string, args ...interface{}) (int64, error) {
	b.queries.record(query, args...)
	res, err := b.querier(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// not every statement reports affected rows
		return 0, nil
	}
	return n, nil
}

func (b *sqlBase) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	b.queries.record(query, args...)
	rows, err := b.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (b *sqlBase) QueryRowContext(ctx context.Context, query string, args ...interface{}) Row {
	b.queries.record(query, args...)
	return b.querier(ctx).QueryRowContext(ctx, query, args...)
}

// dropTables drops every table listed by listQuery.
func (b *sqlBase) dropTables(ctx context.Context, listQuery string) error {
	rows, err := b.db.QueryContext(ctx, listQuery)
	if err != nil {
		return err
	}
	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			rows.Close()
			return err
		}
		tables = append(tables, tableName)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, tableName := range tables {
		if _, err := b.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tableName)); err != nil {
			return err
		}
	}
	return nil
}
