package mysql

import (
	"database/sql"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/bulkhelpers/internal/database"
	"github.com/koustreak/bulkhelpers/internal/errs"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
	defaultConnectTimeout  = 5 * time.Second
)

// buildPool parses cfg.DSN and returns a configured *sql.DB. parseTime is
// always enabled so DATETIME columns scan into time.Time.
func buildPool(cfg *database.Config) (*sql.DB, error) {
	mc, err := gomysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	mc.ParseTime = true
	if mc.Timeout == 0 {
		mc.Timeout = withDefault(cfg.ConnectTimeout, defaultConnectTimeout)
	}

	connector, err := gomysql.NewConnector(mc)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	db := sql.OpenDB(connector)

	maxOpen := int(cfg.MaxConns)
	if maxOpen == 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := int(cfg.MinConns)
	if maxIdle == 0 {
		maxIdle = defaultMaxIdleConns
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(withDefault(cfg.MaxConnLifetime, defaultConnMaxLifetime))
	db.SetConnMaxIdleTime(withDefault(cfg.MaxConnIdleTime, defaultConnMaxIdleTime))

	return db, nil
}

func withDefault(val, def time.Duration) time.Duration {
	if val <= 0 {
		return def
	}
	return val
}
