// Package schema holds the process-wide catalog of table and column
// definitions that bulk operations resolve their mappings against.
//
// The catalog is built from a single metadata round trip, the first time it
// is needed, and is never refreshed afterwards: schema changes made while
// the process runs are not observed until restart.
//
// Usage:
//
//	catalog := schema.NewCatalog(driver, schema.WithLogger(log))
//	def, err := catalog.GetTableSchemaDefinition(ctx, "orders")
//	if err != nil { ... }      // metadata query failed
//	if def == nil { ... }      // no such table
package schema

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/koustreak/bulkhelpers/internal/errs"
	"github.com/koustreak/bulkhelpers/internal/logger"
)

// Source runs the structural metadata query. Implementations issue ONE
// query returning every table with its nested, ordinal-ordered column list.
type Source interface {
	LoadTableDefinitions(ctx context.Context) ([]*TableDefinition, error)
}

// Catalog maps table names to their definitions. It is safe for concurrent
// use; after the first successful load every read is lock-free.
type Catalog struct {
	source      Source
	log         *logger.Logger
	loadTimeout time.Duration

	group  singleflight.Group
	tables atomic.Pointer[tableIndex]
}

// tableIndex is the immutable multi-map published by a successful load.
type tableIndex struct {
	byName map[string][]*TableDefinition
	names  []string // distinct names in metadata order
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

// WithLoadTimeout bounds the metadata query itself. The query runs detached
// from the caller's cancellation, so without a timeout a hung database
// holds it open indefinitely.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Catalog) {
		c.loadTimeout = d
	}
}

// NewCatalog creates an unloaded catalog backed by src.
func NewCatalog(src Source, opts ...Option) *Catalog {
	c := &Catalog{source: src, log: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Loaded reports whether the catalog has been built.
func (c *Catalog) Loaded() bool {
	return c.tables.Load() != nil
}

// Load builds the catalog if it has not been built yet. Concurrent callers
// share a single metadata query; a caller whose ctx ends first stops
// waiting but does not cancel the shared load for the others. On failure
// the catalog stays unbuilt and the next call tries again.
func (c *Catalog) Load(ctx context.Context) error {
	if c.Loaded() {
		return nil
	}

	ch := c.group.DoChan("load", func() (any, error) {
		// A load that finished between our check and DoChan already
		// published; do not query twice.
		if c.Loaded() {
			return nil, nil
		}
		loadCtx := context.WithoutCancel(ctx)
		if c.loadTimeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, c.loadTimeout)
			defer cancel()
		}
		return nil, c.load(loadCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return errs.Wrap(errs.ErrKindTimeout, "waiting for schema catalog load", ctx.Err())
	}
}

func (c *Catalog) load(ctx context.Context) error {
	start := time.Now()

	defs, err := c.source.LoadTableDefinitions(ctx)
	if err != nil {
		c.log.ErrorWith("schema catalog load failed", err, nil)
		return errs.Wrap(errs.ErrKindLoadFailure, "schema metadata query failed", err)
	}

	idx := &tableIndex{byName: make(map[string][]*TableDefinition, len(defs))}
	for _, d := range defs {
		if d == nil {
			continue
		}
		name := d.TableName()
		if _, seen := idx.byName[name]; !seen {
			idx.names = append(idx.names, name)
		}
		idx.byName[name] = append(idx.byName[name], d)
	}

	c.tables.Store(idx)
	c.log.InfoWith("schema catalog loaded", map[string]interface{}{
		"tables":   len(defs),
		"duration": time.Since(start),
	})
	return nil
}

// GetTableSchemaDefinition resolves tableName, loading the catalog first if
// needed. It returns (nil, nil) when no table matches; an error is returned
// only when the catalog could not be loaded.
//
// Lookup is case-sensitive on the stored name. When several schemas hold a
// table with that name the first one in metadata order is returned. A name
// of the form "schema.table" that does not exist verbatim is matched
// against both parts, which lets callers disambiguate.
func (c *Catalog) GetTableSchemaDefinition(ctx context.Context, tableName string) (*TableDefinition, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return c.tables.Load().lookup(tableName), nil
}

// TableNames returns the distinct table names in metadata order.
func (c *Catalog) TableNames(ctx context.Context) ([]string, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	names := c.tables.Load().names
	out := make([]string, len(names))
	copy(out, names)
	return out, nil
}

func (idx *tableIndex) lookup(name string) *TableDefinition {
	if defs := idx.byName[name]; len(defs) > 0 {
		return defs[0]
	}

	schemaName, table, ok := strings.Cut(name, ".")
	if !ok {
		return nil
	}
	for _, d := range idx.byName[table] {
		if d.SchemaName() == schemaName {
			return d
		}
	}
	return nil
}
