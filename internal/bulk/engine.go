// Package bulk maps typed entity collections onto bulk insert, update and
// upsert transfers.
//
// The engine resolves the target table through the schema catalog, flattens
// every entity into a staged row tagged with its input position, hands the
// rows to the driver's Transferer inside the caller's transaction and writes
// the identities the database assigned back onto the entities, in input
// order.
//
// The engine never begins, commits or rolls back a transaction. A failed
// transfer leaves the caller's transaction for the caller to abort, which
// lets several bulk calls share one unit of work:
//
//	tx, _ := db.Begin(ctx)
//	orders, err := orderEngine.BulkInsert(ctx, orders, "orders", tx)
//	if err != nil {
//	    tx.Rollback(ctx)
//	    return err
//	}
//	lines, err := lineEngine.BulkInsert(ctx, lines, "order_lines", tx)
//	...
//	tx.Commit(ctx)
package bulk

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/koustreak/bulkhelpers/internal/database"
	"github.com/koustreak/bulkhelpers/internal/errs"
	"github.com/koustreak/bulkhelpers/internal/logger"
	"github.com/koustreak/bulkhelpers/internal/schema"
)

// TableResolver resolves a table name to its definition. *schema.Catalog
// satisfies it. A nil definition with a nil error means no such table.
type TableResolver interface {
	GetTableSchemaDefinition(ctx context.Context, tableName string) (*schema.TableDefinition, error)
}

// Engine performs bulk operations for entities of type T. It holds no
// per-call state and is safe for concurrent use.
type Engine[T any] struct {
	resolver TableResolver
	transfer Transferer
	mapper   Mapper[T]
	log      *logger.Logger
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	log *logger.Logger
}

// WithLogger sets the logger used for per-operation diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// New creates an engine for T.
func New[T any](resolver TableResolver, transfer Transferer, mapper Mapper[T], opts ...Option) *Engine[T] {
	o := options{log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine[T]{
		resolver: resolver,
		transfer: transfer,
		mapper:   mapper,
		log:      o.log,
	}
}

// GetTableSchemaDefinition resolves tableName through the engine's
// resolver.
func (e *Engine[T]) GetTableSchemaDefinition(ctx context.Context, tableName string) (*schema.TableDefinition, error) {
	return e.resolver.GetTableSchemaDefinition(ctx, tableName)
}

// BulkInsert inserts entities as new rows and returns them, in input order,
// with the identities the database assigned. Identity values already set on
// the entities are ignored.
func (e *Engine[T]) BulkInsert(ctx context.Context, entities []T, tableName string, tx database.Tx) ([]T, error) {
	return e.run(ctx, ModeInsert, entities, tableName, tx)
}

// BulkUpdate updates the rows whose identity matches each entity. Every
// entity must carry a distinct identity value and map the same columns;
// entities matching no row change nothing.
func (e *Engine[T]) BulkUpdate(ctx context.Context, entities []T, tableName string, tx database.Tx) ([]T, error) {
	return e.run(ctx, ModeUpdate, entities, tableName, tx)
}

// BulkInsertOrUpdate updates rows whose identity matches and inserts the
// rest, returning every entity with its identity set. Entities must map the
// same columns and no identity may appear twice in one call.
func (e *Engine[T]) BulkInsertOrUpdate(ctx context.Context, entities []T, tableName string, tx database.Tx) ([]T, error) {
	return e.run(ctx, ModeUpsert, entities, tableName, tx)
}

func (e *Engine[T]) run(ctx context.Context, mode Mode, entities []T, tableName string, tx database.Tx) ([]T, error) {
	if tx == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "transaction is required")
	}

	def, err := e.resolver.GetTableSchemaDefinition(ctx, tableName)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, errs.Newf(errs.ErrKindSchemaNotFound, "table %q is not in the schema catalog", tableName)
	}

	if len(entities) == 0 {
		return []T{}, nil
	}

	req, err := e.stage(mode, def, entities)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx, e.log)
	start := time.Now()
	assigned, err := e.transfer.Transfer(ctx, tx, req)
	if err != nil {
		log.WarnWith("bulk transfer failed", err, map[string]interface{}{
			"table": def.QualifiedName(),
			"mode":  mode.String(),
			"rows":  len(req.Rows),
		})
		return nil, err
	}
	log.DebugWith("bulk transfer complete", map[string]interface{}{
		"table":    def.QualifiedName(),
		"mode":     mode.String(),
		"rows":     len(req.Rows),
		"duration": time.Since(start),
	})

	return e.correlate(req, entities, assigned)
}

// stage flattens entities into rows. Nothing is sent if any entity fails
// to map.
//
// An insert stages a column one entity omits as NULL. Update and upsert
// would overwrite stored values that way, so there every entity must map
// the same columns and carry a distinct identity.
func (e *Engine[T]) stage(mode Mode, def *schema.TableDefinition, entities []T) (*TransferRequest, error) {
	identity, hasIdentity := def.IdentityColumn()
	if mode != ModeInsert && !hasIdentity {
		return nil, errs.Newf(errs.ErrKindIdentityMismatch,
			"%s on table %s needs an identity column", mode, def.QualifiedName())
	}

	req := &TransferRequest{Mode: mode, Table: def, Rows: make([]StagedRow, len(entities))}
	if hasIdentity {
		req.IdentityColumn = identity.Name
	}

	values := make([]map[string]any, len(entities))
	used := make(map[string]bool)
	var firstSet string
	seenIDs := make(map[string]int)

	for i, entity := range entities {
		fields, err := e.mapper.Fields(entity)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindColumnMapping, fmt.Sprintf("entity %d", i), err)
		}

		row := make(map[string]any, len(fields))
		mapped := 0
		for _, name := range sortedKeys(fields) {
			col, ok := def.FindColumnCaseInsensitive(name)
			if !ok {
				continue
			}
			if _, dup := row[col.Name]; dup {
				continue
			}
			row[col.Name] = fields[name]
			if !col.IsIdentity {
				mapped++
			}
		}
		if mapped == 0 {
			return nil, errs.Newf(errs.ErrKindColumnMapping,
				"entity %d maps no column of %s", i, def.QualifiedName())
		}

		if hasIdentity {
			id := row[identity.Name]
			switch {
			case mode == ModeInsert:
				delete(row, identity.Name)
			case isUnset(id) && mode == ModeUpdate:
				return nil, errs.Newf(errs.ErrKindIdentityMismatch,
					"entity %d has no value for identity column %s", i, identity.Name)
			case isUnset(id):
				row[identity.Name] = nil
			default:
				key := identityKey(id)
				if prev, dup := seenIDs[key]; dup {
					return nil, errs.Newf(errs.ErrKindIdentityMismatch,
						"entities %d and %d share identity %s", prev, i, key)
				}
				seenIDs[key] = i
			}
		}

		if mode != ModeInsert {
			set := columnSet(row, identity.Name)
			if i == 0 {
				firstSet = set
			} else if set != firstSet {
				return nil, errs.Newf(errs.ErrKindColumnMapping,
					"entity %d maps columns [%s] but entity 0 maps [%s]; %s needs one column set per batch",
					i, set, firstSet, mode)
			}
		}

		for col := range row {
			used[col] = true
		}
		values[i] = row
	}

	if mode != ModeInsert {
		used[identity.Name] = true
	}
	for _, col := range def.GetColumnNames(mode != ModeInsert) {
		if used[col] {
			req.Columns = append(req.Columns, col)
		}
	}

	for i, row := range values {
		staged := StagedRow{RowNumber: i, Values: make([]any, len(req.Columns))}
		for j, col := range req.Columns {
			staged.Values[j] = row[col]
		}
		req.Rows[i] = staged
	}
	return req, nil
}

// correlate writes assigned identities back by row number. The input slice
// is not modified; pointer entities are updated in place by the mapper.
func (e *Engine[T]) correlate(req *TransferRequest, entities []T, assigned []Assigned) ([]T, error) {
	out := make([]T, len(entities))
	copy(out, entities)

	if req.Mode == ModeUpdate || req.IdentityColumn == "" {
		return out, nil
	}

	if len(assigned) != len(entities) {
		return nil, errs.Newf(errs.ErrKindQueryFailed,
			"transfer returned %d identities for %d rows", len(assigned), len(entities))
	}

	seen := make([]bool, len(entities))
	for _, a := range assigned {
		if a.RowNumber < 0 || a.RowNumber >= len(entities) {
			return nil, errs.Newf(errs.ErrKindQueryFailed, "transfer returned unknown row number %d", a.RowNumber)
		}
		if seen[a.RowNumber] {
			return nil, errs.Newf(errs.ErrKindQueryFailed, "transfer returned row number %d twice", a.RowNumber)
		}
		seen[a.RowNumber] = true

		updated, err := e.mapper.WithIdentity(out[a.RowNumber], req.IdentityColumn, a.Identity)
		if err != nil {
			return nil, err
		}
		out[a.RowNumber] = updated
	}
	return out, nil
}

// columnSet lists the non-identity columns of row, sorted and joined.
func columnSet(row map[string]any, identity string) string {
	cols := make([]string, 0, len(row))
	for col := range row {
		if col != identity {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return strings.Join(cols, ", ")
}

// identityKey renders an identity value for duplicate detection.
func identityKey(v any) string {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	return fmt.Sprint(rv.Interface())
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
