package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The record store runs on either a pgx pool or a database/sql handle. These
// small interfaces cover what the queries need from both.

type rowScanner interface {
	Scan(dest ...any) error
}

type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

type queryer interface {
	query(ctx context.Context, q string, args ...any) (rowIterator, func(), error)
	queryRow(ctx context.Context, q string, args ...any) rowScanner
	exec(ctx context.Context, q string, args ...any) (int64, error)
}

type txn interface {
	queryer
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
}

type database interface {
	queryer
	begin(ctx context.Context) (txn, error)
	ping(ctx context.Context) error
	close()
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgxConn struct {
	q pgxQuerier
}

func (c pgxConn) query(ctx context.Context, q string, args ...any) (rowIterator, func(), error) {
	rows, err := c.q.Query(ctx, q, args...)
	if err != nil {
		return nil, nil, err
	}
	return rows, rows.Close, nil
}

func (c pgxConn) queryRow(ctx context.Context, q string, args ...any) rowScanner {
	return c.q.QueryRow(ctx, q, args...)
}

func (c pgxConn) exec(ctx context.Context, q string, args ...any) (int64, error) {
	tag, err := c.q.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type pgxDB struct {
	pgxConn
	pool *pgxpool.Pool
}

func newPgxDB(pool *pgxpool.Pool) *pgxDB {
	return &pgxDB{pgxConn: pgxConn{q: pool}, pool: pool}
}

func (d *pgxDB) begin(ctx context.Context) (txn, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return pgxTxn{pgxConn: pgxConn{q: tx}, tx: tx}, nil
}

func (d *pgxDB) ping(ctx context.Context) error { return d.pool.Ping(ctx) }

func (d *pgxDB) close() { d.pool.Close() }

type pgxTxn struct {
	pgxConn
	tx pgx.Tx
}

func (t pgxTxn) commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t pgxTxn) rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqlConn struct {
	q sqlQuerier
}

func (c sqlConn) query(ctx context.Context, q string, args ...any) (rowIterator, func(), error) {
	rows, err := c.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, nil, err
	}
	return rows, func() { _ = rows.Close() }, nil
}

func (c sqlConn) queryRow(ctx context.Context, q string, args ...any) rowScanner {
	return c.q.QueryRowContext(ctx, q, args...)
}

func (c sqlConn) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := c.q.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type sqlDB struct {
	sqlConn
	db *sql.DB
}

func newSQLDB(db *sql.DB) *sqlDB {
	return &sqlDB{sqlConn: sqlConn{q: db}, db: db}
}

func (d *sqlDB) begin(ctx context.Context) (txn, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return sqlTxn{sqlConn: sqlConn{q: tx}, tx: tx}, nil
}

func (d *sqlDB) ping(ctx context.Context) error { return d.db.PingContext(ctx) }

func (d *sqlDB) close() { _ = d.db.Close() }

type sqlTxn struct {
	sqlConn
	tx *sql.Tx
}

func (t sqlTxn) commit(context.Context) error   { return t.tx.Commit() }
func (t sqlTxn) rollback(context.Context) error { return t.tx.Rollback() }
