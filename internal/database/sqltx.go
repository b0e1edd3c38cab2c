package database

import (
	"context"
	"database/sql"
)

// SQLTx adapts *sql.Tx to Tx for drivers built on database/sql.
// mapErr translates native driver errors for the query helpers; the raw
// *sql.Tx stays reachable through Native for bulk transfers.
type SQLTx struct {
	tx     *sql.Tx
	mapErr func(error) error
}

// NewSQLTx wraps tx. A nil mapErr leaves errors untouched.
func NewSQLTx(tx *sql.Tx, mapErr func(error) error) *SQLTx {
	if mapErr == nil {
		mapErr = func(err error) error { return err }
	}
	return &SQLTx{tx: tx, mapErr: mapErr}
}

// Native returns the wrapped *sql.Tx.
func (t *SQLTx) Native() *sql.Tx { return t.tx }

func (t *SQLTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, t.mapErr(err)
	}
	return &SQLRows{rows: rows, mapErr: t.mapErr}, nil
}

func (t *SQLTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return &SQLRow{row: t.tx.QueryRowContext(ctx, query, args...), mapErr: t.mapErr}
}

func (t *SQLTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, t.mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, t.mapErr(err)
	}
	return n, nil
}

func (t *SQLTx) Commit(_ context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return t.mapErr(err)
	}
	return nil
}

func (t *SQLTx) Rollback(_ context.Context) error {
	if err := t.tx.Rollback(); err != nil {
		return t.mapErr(err)
	}
	return nil
}

// SQLRows wraps *sql.Rows to satisfy Rows.
type SQLRows struct {
	rows   *sql.Rows
	mapErr func(error) error
}

// NewSQLRows wraps rows with the given error mapper.
func NewSQLRows(rows *sql.Rows, mapErr func(error) error) *SQLRows {
	if mapErr == nil {
		mapErr = func(err error) error { return err }
	}
	return &SQLRows{rows: rows, mapErr: mapErr}
}

func (r *SQLRows) Next() bool { return r.rows.Next() }
func (r *SQLRows) Close()     { _ = r.rows.Close() }

func (r *SQLRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return r.mapErr(err)
	}
	return nil
}

func (r *SQLRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return r.mapErr(err)
	}
	return nil
}

// SQLRow wraps *sql.Row to satisfy Row.
type SQLRow struct {
	row    *sql.Row
	mapErr func(error) error
}

// NewSQLRow wraps row with the given error mapper.
func NewSQLRow(row *sql.Row, mapErr func(error) error) *SQLRow {
	if mapErr == nil {
		mapErr = func(err error) error { return err }
	}
	return &SQLRow{row: row, mapErr: mapErr}
}

func (r *SQLRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return r.mapErr(err)
	}
	return nil
}
