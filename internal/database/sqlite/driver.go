// Package sqlite implements the bulkhelpers driver contract on SQLite via
// mattn/go-sqlite3. SQLite has no bulk-copy path, so transfers run one
// prepared statement per row inside the caller's transaction and read
// identities back with RETURNING (SQLite 3.35+).
package sqlite

import (
	"context"
	"database/sql"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // register "sqlite3" driver

	"github.com/koustreak/bulkhelpers/internal/database"
	"github.com/koustreak/bulkhelpers/internal/errs"
	"github.com/koustreak/bulkhelpers/internal/schema"
)

// SQLite DSN parameters.
const (
	defaultBusyTimeout = "5000" // 5 seconds
	defaultJournalMode = "WAL"
	defaultSynchronous = "NORMAL"
)

// Driver is a SQLite implementation of database.DB, schema.Source and
// bulk.Transferer. Transactions take the write lock up front, so writers
// queue on the busy timeout instead of failing on upgrade.
type Driver struct {
	db *sql.DB
}

// New opens the database file named by cfg.DSN and pings it.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	db, err := sql.Open("sqlite3", buildDSN(cfg.DSN))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	// In-memory databases exist per connection. Load the schema catalog
	// before opening a transaction on one, or the load waits for the
	// connection the transaction holds; provider.Open does this.
	maxConns := int(cfg.MaxConns)
	if IsMemory(cfg.DSN) || maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)

	d := &Driver{db: db}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// IsMemory reports whether dsn names an in-memory database.
func IsMemory(dsn string) bool {
	return dsn == ":memory:" ||
		strings.HasPrefix(dsn, "file::memory:") ||
		strings.Contains(dsn, "mode=memory")
}

// buildDSN adds journal, busy-timeout and foreign-key parameters unless the
// DSN already carries its own query string.
func buildDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	params := url.Values{}
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")
	if !IsMemory(path) {
		params.Set("_journal_mode", defaultJournalMode)
		params.Set("_synchronous", defaultSynchronous)
	}
	return path + "?" + params.Encode()
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

// Exec runs a statement outside any transaction. It is used for DDL.
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

// metadataQuery returns every user table with its columns nested as a JSON
// array. SQLite has no identity columns as such; the rowid alias (a sole
// INTEGER PRIMARY KEY) plays that role.
const metadataQuery = `
	SELECT 'main' AS table_schema,
	       m.name AS table_name,
	       (SELECT json_group_array(json_object(
	                   'columnName',       p.name,
	                   'ordinalPosition',  p.cid + 1,
	                   'dataType',         lower(p.type),
	                   'isIdentityColumn', CASE
	                       WHEN p.pk = 1
	                        AND upper(p.type) = 'INTEGER'
	                        AND (SELECT count(*) FROM pragma_table_info(m.name) k WHERE k.pk > 0) = 1
	                       THEN 1 ELSE 0 END))
	          FROM (SELECT * FROM pragma_table_info(m.name) ORDER BY cid) p) AS columns
	FROM sqlite_master m
	WHERE m.type = 'table'
	  AND m.name NOT LIKE 'sqlite_%'
	ORDER BY m.name`

// LoadTableDefinitions implements schema.Source with one round trip.
func (d *Driver) LoadTableDefinitions(ctx context.Context) ([]*schema.TableDefinition, error) {
	rows, err := d.Query(ctx, metadataQuery)
	if err != nil {
		return nil, err
	}
	return schema.ScanTableDefinitions(rows)
}

func queryErr(err error) error {
	return mapError(err, "query failed")
}
