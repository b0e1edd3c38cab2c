// Package postgres implements the bulkhelpers driver contract on PostgreSQL
// via pgx v5: a pgxpool-backed database.DB, the single-query schema.Source
// and a COPY + MERGE bulk.Transferer.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/bulkhelpers/internal/database"
	"github.com/koustreak/bulkhelpers/internal/errs"
	"github.com/koustreak/bulkhelpers/internal/schema"
)

// Driver is a PostgreSQL implementation of database.DB backed by pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	poolCfg, err := buildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create connection pool", err)
	}

	d := &Driver{pool: pool}

	if err := d.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return d, nil
}

// --- database.DB implementation ---

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool. Call when the application shuts down.
func (d *Driver) Close() {
	d.pool.Close()
}

// Query executes a SQL statement that returns multiple rows.
func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgRows{rows: rows}, nil
}

// QueryRow executes a SQL statement expected to return at most one row.
func (d *Driver) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return &pgRow{row: d.pool.QueryRow(ctx, sql, args...)}
}

// Exec runs a statement outside any transaction, e.g. DDL.
func (d *Driver) Exec(ctx context.Context, sql string, args ...any) error {
	if _, err := d.pool.Exec(ctx, sql, args...); err != nil {
		return mapError(err, "exec failed")
	}
	return nil
}

// Begin starts a transaction. Pass it to bulk operations; the caller
// commits or rolls it back.
func (d *Driver) Begin(ctx context.Context) (database.Tx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err, "begin failed")
	}
	return &pgTx{tx: tx}, nil
}

// Pool returns the underlying pgxpool (for advanced use)
func (d *Driver) Pool() *pgxpool.Pool {
	return d.pool
}

// --- schema.Source implementation ---

// metadataQuery lists every base table outside the system schemas with its
// columns aggregated into one JSON array. Serial columns (nextval default)
// count as identity columns alongside GENERATED ... AS IDENTITY.
const metadataQuery = `
	SELECT t.table_schema::text,
	       t.table_name::text,
	       COALESCE(
	           json_agg(json_build_object(
	               'columnName',       c.column_name::text,
	               'ordinalPosition',  c.ordinal_position::int,
	               'dataType',         c.data_type::text,
	               'isIdentityColumn', c.is_identity = 'YES'
	                                   OR COALESCE(c.column_default LIKE 'nextval(%', false)
	           ) ORDER BY c.ordinal_position) FILTER (WHERE c.column_name IS NOT NULL),
	           '[]'::json
	       ) AS columns
	FROM information_schema.tables t
	LEFT JOIN information_schema.columns c
	       ON c.table_schema = t.table_schema
	      AND c.table_name   = t.table_name
	WHERE t.table_type = 'BASE TABLE'
	  AND t.table_schema NOT IN ('pg_catalog', 'information_schema')
	GROUP BY t.table_schema, t.table_name
	ORDER BY t.table_name, t.table_schema`

// LoadTableDefinitions implements schema.Source with one round trip.
func (d *Driver) LoadTableDefinitions(ctx context.Context) ([]*schema.TableDefinition, error) {
	rows, err := d.Query(ctx, metadataQuery)
	if err != nil {
		return nil, err
	}
	return schema.ScanTableDefinitions(rows)
}

// --- pgx type wrappers ---

// pgRows wraps pgx.Rows to satisfy database.Rows.
type pgRows struct{ rows pgx.Rows }

func (r *pgRows) Next() bool             { return r.rows.Next() }
func (r *pgRows) Scan(dest ...any) error { return mapError(r.rows.Scan(dest...), "scan failed") }
func (r *pgRows) Close()                 { r.rows.Close() }
func (r *pgRows) Err() error             { return mapError(r.rows.Err(), "row iteration failed") }

// pgRow wraps pgx.Row to satisfy database.Row.
type pgRow struct{ row pgx.Row }

func (r *pgRow) Scan(dest ...any) error { return mapError(r.row.Scan(dest...), "scan failed") }

// pgTx wraps pgx.Tx to satisfy database.Tx.
type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgRows{rows: rows}, nil
}

func (t *pgTx) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return &pgRow{row: t.tx.QueryRow(ctx, sql, args...)}
}

func (t *pgTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err, "exec failed")
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return mapError(t.tx.Commit(ctx), "commit failed")
}

func (t *pgTx) Rollback(ctx context.Context) error {
	return mapError(t.tx.Rollback(ctx), "rollback failed")
}
