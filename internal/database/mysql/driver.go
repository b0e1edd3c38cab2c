// Package mysql implements the bulkhelpers driver contract on MySQL 8 via
// go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"

	"github.com/koustreak/bulkhelpers/internal/database"
	"github.com/koustreak/bulkhelpers/internal/schema"
)

// Driver is a MySQL implementation of database.DB backed by database/sql.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	db *sql.DB
}

// New opens a MySQL connection pool using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	db, err := buildPool(cfg)
	if err != nil {
		return nil, err
	}

	d := &Driver{db: db}

	pingCtx, cancel := context.WithTimeout(ctx, withDefault(cfg.ConnectTimeout, defaultConnectTimeout))
	defer cancel()

	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return d, nil
}

// --- database.DB implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() {
	_ = d.db.Close()
}

func (d *Driver) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return database.NewSQLRows(rows, queryErr), nil
}

func (d *Driver) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return database.NewSQLRow(d.db.QueryRowContext(ctx, query, args...), queryErr)
}

// Exec runs a statement outside any transaction, e.g. DDL.
func (d *Driver) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return mapError(err, "exec failed")
	}
	return nil
}

func (d *Driver) Begin(ctx context.Context) (database.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err, "begin failed")
	}
	return database.NewSQLTx(tx, queryErr), nil
}

// --- schema.Source implementation ---

// metadataQuery lists the base tables of the connection's database with
// their columns as a JSON array. JSON_ARRAYAGG has no ORDER BY, so column
// order is restored from ordinalPosition when the definition is built.
const metadataQuery = `
	SELECT t.table_schema AS table_schema,
	       t.table_name   AS table_name,
	       COALESCE((
	           SELECT JSON_ARRAYAGG(JSON_OBJECT(
	                      'columnName',       c.column_name,
	                      'ordinalPosition',  c.ordinal_position,
	                      'dataType',         c.data_type,
	                      'isIdentityColumn', c.extra LIKE '%auto_increment%'))
	           FROM information_schema.columns c
	           WHERE c.table_schema = t.table_schema
	             AND c.table_name   = t.table_name
	       ), JSON_ARRAY()) AS columns
	FROM information_schema.tables t
	WHERE t.table_schema = DATABASE()
	  AND t.table_type   = 'BASE TABLE'
	ORDER BY t.table_name`

// LoadTableDefinitions implements schema.Source with one round trip.
func (d *Driver) LoadTableDefinitions(ctx context.Context) ([]*schema.TableDefinition, error) {
	rows, err := d.Query(ctx, metadataQuery)
	if err != nil {
		return nil, err
	}
	return schema.ScanTableDefinitions(rows)
}
