package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/koustreak/bulkhelpers/internal/bulk"
	"github.com/koustreak/bulkhelpers/internal/database"
	"github.com/koustreak/bulkhelpers/internal/errs"
)

var dialect = database.DialectPostgres

// Transfer implements bulk.Transferer.
//
// Rows are COPYed into a temporary staging table shaped like the target
// plus a row-number column, then moved with one set-based statement.
// Insert and upsert use MERGE ... RETURNING, which needs PostgreSQL 17.
// tx must come from this driver's Begin.
func (d *Driver) Transfer(ctx context.Context, tx database.Tx, req *bulk.TransferRequest) ([]bulk.Assigned, error) {
	ptx, ok := tx.(*pgTx)
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "postgres transfer needs a postgres transaction, got %T", tx)
	}

	target := dialect.QualifiedName(req.Table.SchemaName(), req.Table.TableName())
	stage := stageName()

	for _, q := range buildStage(stage, target, req.Columns) {
		if _, err := ptx.tx.Exec(ctx, q); err != nil {
			return nil, err
		}
	}

	copyCols := append(append([]string{}, req.Columns...), bulk.RowNumberColumn)
	_, err := ptx.tx.CopyFrom(ctx, pgx.Identifier{stage}, copyCols,
		pgx.CopyFromSlice(len(req.Rows), func(i int) ([]any, error) {
			row := req.Rows[i]
			return append(append(make([]any, 0, len(row.Values)+1), row.Values...), row.RowNumber), nil
		}))
	if err != nil {
		return nil, err
	}

	var assigned []bulk.Assigned
	switch req.Mode {
	case bulk.ModeUpdate:
		_, err = ptx.tx.Exec(ctx, buildUpdate(target, stage, req.ValueColumns(), req.IdentityColumn))
	case bulk.ModeInsert:
		if req.IdentityColumn == "" {
			_, err = ptx.tx.Exec(ctx, buildPlainInsert(target, stage, req.Columns))
			break
		}
		assigned, err = collectAssigned(ctx, ptx.tx, buildMergeInsert(target, stage, req.Columns, req.IdentityColumn))
	case bulk.ModeUpsert:
		assigned, err = collectAssigned(ctx, ptx.tx, buildMergeUpsert(target, stage, req.ValueColumns(), req.IdentityColumn))
	default:
		err = errs.Newf(errs.ErrKindInvalidInput, "unsupported mode %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	if _, err := ptx.tx.Exec(ctx, "DROP TABLE "+dialect.QuoteIdent(stage)); err != nil {
		return nil, err
	}
	return assigned, nil
}

func collectAssigned(ctx context.Context, tx pgx.Tx, sql string) ([]bulk.Assigned, error) {
	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (bulk.Assigned, error) {
		var a bulk.Assigned
		err := row.Scan(&a.RowNumber, &a.Identity)
		return a, err
	})
}

// stageName returns a temp table name unique to this transfer.
func stageName() string {
	return "bulk_stage_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// buildStage creates an empty temp table with the target's column types
// plus the row-number column. ON COMMIT DROP covers transfers that fail
// before the explicit DROP.
func buildStage(stage, target string, cols []string) []string {
	s := dialect.QuoteIdent(stage)
	return []string{
		fmt.Sprintf("CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT %s FROM %s WITH NO DATA",
			s, dialect.QuoteIdents("", cols), target),
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s integer NOT NULL",
			s, dialect.QuoteIdent(bulk.RowNumberColumn)),
	}
}

func buildPlainInsert(target, stage string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		target, dialect.QuoteIdents("", cols), dialect.QuoteIdents("", cols), dialect.QuoteIdent(stage))
}

// buildMergeInsert inserts every staged row. MERGE is used instead of
// INSERT ... SELECT because only MERGE can return source columns, which is
// what ties each new identity to its row number.
func buildMergeInsert(target, stage string, cols []string, identity string) string {
	return fmt.Sprintf(`MERGE INTO %s AS t USING %s AS s ON FALSE
WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)
RETURNING s.%s, t.%s`,
		target, dialect.QuoteIdent(stage),
		dialect.QuoteIdents("", cols), dialect.QuoteIdents("s.", cols),
		dialect.QuoteIdent(bulk.RowNumberColumn), dialect.QuoteIdent(identity))
}

func buildUpdate(target, stage string, cols []string, identity string) string {
	id := dialect.QuoteIdent(identity)
	return fmt.Sprintf("UPDATE %s AS t SET %s FROM %s AS s WHERE t.%s = s.%s",
		target, setList(cols), dialect.QuoteIdent(stage), id, id)
}

// buildMergeUpsert updates rows whose identity matches. Unmatched rows are
// inserted, letting the database assign the identity when the staged one
// is NULL and keeping the caller's value otherwise.
func buildMergeUpsert(target, stage string, cols []string, identity string) string {
	id := dialect.QuoteIdent(identity)
	withID := append([]string{identity}, cols...)
	return fmt.Sprintf(`MERGE INTO %s AS t USING %s AS s ON t.%s = s.%s
WHEN MATCHED THEN UPDATE SET %s
WHEN NOT MATCHED AND s.%s IS NULL THEN INSERT (%s) VALUES (%s)
WHEN NOT MATCHED THEN INSERT (%s) OVERRIDING SYSTEM VALUE VALUES (%s)
RETURNING s.%s, t.%s`,
		target, dialect.QuoteIdent(stage), id, id,
		setList(cols),
		id, dialect.QuoteIdents("", cols), dialect.QuoteIdents("s.", cols),
		dialect.QuoteIdents("", withID), dialect.QuoteIdents("s.", withID),
		dialect.QuoteIdent(bulk.RowNumberColumn), id)
}

func setList(cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		q := dialect.QuoteIdent(c)
		sets[i] = q + " = s." + q
	}
	return strings.Join(sets, ", ")
}
