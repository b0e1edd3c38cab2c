// Package provider opens the configured driver and wires it into a schema
// catalog, so applications get everything bulk operations need from one
// call:
//
//	p, err := provider.Open(ctx, cfg, log)
//	if err != nil { ... }
//	defer p.Close()
//
//	orders, err := provider.NewEngine[Order](p, mapper)
//	tx, err := p.Begin(ctx)
//	out, err := orders.BulkInsert(ctx, batch, "orders", tx)
package provider

import (
	"context"
	"time"

	"github.com/koustreak/bulkhelpers/internal/bulk"
	"github.com/koustreak/bulkhelpers/internal/config"
	"github.com/koustreak/bulkhelpers/internal/database"
	"github.com/koustreak/bulkhelpers/internal/database/mysql"
	"github.com/koustreak/bulkhelpers/internal/database/postgres"
	"github.com/koustreak/bulkhelpers/internal/database/sqlite"
	"github.com/koustreak/bulkhelpers/internal/errs"
	"github.com/koustreak/bulkhelpers/internal/logger"
	"github.com/koustreak/bulkhelpers/internal/schema"
)

// Driver is what every database package provides.
type Driver interface {
	database.DB
	schema.Source
	bulk.Transferer
}

// Provider bundles an open driver with the schema catalog built from it.
type Provider struct {
	DB         database.DB
	Source     schema.Source
	Transferer bulk.Transferer
	Catalog    *schema.Catalog

	log *logger.Logger
}

// Open connects the driver named in cfg.Database and, when
// cfg.Catalog.Preload is set, loads the catalog before returning. A nil
// log discards output.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With().Str("driver", string(cfg.Database.Driver)).Logger()

	catalogCfg := cfg.Catalog
	if cfg.Database.Driver == database.DriverSQLite && sqlite.IsMemory(cfg.Database.DSN) && !catalogCfg.Preload {
		// The only connection is held by any open transaction, so a lazy
		// load from inside one could never run.
		log.Warn("in-memory sqlite database: preloading schema catalog")
		catalogCfg.Preload = true
	}

	drv, err := openDriver(ctx, &cfg.Database)
	if err != nil {
		log.ErrorWith("database connection failed", err, nil)
		return nil, err
	}
	return fromDriver(ctx, drv, catalogCfg, log)
}

// New wraps an already open driver. It is how tests and callers with their
// own connection setup get a Provider.
func New(ctx context.Context, drv Driver, catalog config.CatalogConfig, log *logger.Logger) (*Provider, error) {
	if log == nil {
		log = logger.Nop()
	}
	return fromDriver(ctx, drv, catalog, log)
}

func fromDriver(ctx context.Context, drv Driver, catalogCfg config.CatalogConfig, log *logger.Logger) (*Provider, error) {
	catalog := schema.NewCatalog(drv,
		schema.WithLogger(log),
		schema.WithLoadTimeout(catalogCfg.LoadTimeout))

	p := &Provider{
		DB:         drv,
		Source:     drv,
		Transferer: drv,
		Catalog:    catalog,
		log:        log,
	}

	if catalogCfg.Preload {
		loadCtx := ctx
		if catalogCfg.LoadTimeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(ctx, catalogCfg.LoadTimeout)
			defer cancel()
		}
		if err := p.Catalog.Load(loadCtx); err != nil {
			drv.Close()
			return nil, err
		}
	}

	log.Info("bulk provider ready")
	return p, nil
}

func openDriver(ctx context.Context, cfg *database.Config) (Driver, error) {
	var (
		drv Driver
		err error
	)
	switch cfg.Driver {
	case database.DriverPostgres:
		drv, err = postgres.New(ctx, cfg)
	case database.DriverMySQL:
		drv, err = mysql.New(ctx, cfg)
	case database.DriverSQLite:
		drv, err = sqlite.New(ctx, cfg)
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return drv, nil
}

// Begin opens a transaction for bulk operations.
func (p *Provider) Begin(ctx context.Context) (database.Tx, error) {
	return p.DB.Begin(ctx)
}

// Close releases the connection pool.
func (p *Provider) Close() {
	start := time.Now()
	p.DB.Close()
	p.log.DebugWith("bulk provider closed", map[string]interface{}{"duration": time.Since(start)})
}

// NewEngine builds an engine for T on the provider's catalog and driver,
// logging through the provider's logger.
func NewEngine[T any](p *Provider, mapper bulk.Mapper[T]) *bulk.Engine[T] {
	return bulk.New[T](p.Catalog, p.Transferer, mapper, bulk.WithLogger(p.log))
}
