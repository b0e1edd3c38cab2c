package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/koustreak/bulkhelpers/internal/bulk"
	"github.com/koustreak/bulkhelpers/internal/database"
	"github.com/koustreak/bulkhelpers/internal/errs"
)

var dialect = database.DialectSQLite

// Transfer implements bulk.Transferer. tx must come from this driver's
// Begin.
func (d *Driver) Transfer(ctx context.Context, tx database.Tx, req *bulk.TransferRequest) ([]bulk.Assigned, error) {
	sqlTx, ok := tx.(*database.SQLTx)
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "sqlite transfer needs a sqlite transaction, got %T", tx)
	}
	native := sqlTx.Native()

	switch req.Mode {
	case bulk.ModeInsert:
		return insertRows(ctx, native, req, req.Rows)
	case bulk.ModeUpdate:
		return nil, updateRows(ctx, native, req)
	case bulk.ModeUpsert:
		return upsertRows(ctx, native, req)
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported mode %s", req.Mode)
	}
}

func insertRows(ctx context.Context, tx *sql.Tx, req *bulk.TransferRequest, rows []bulk.StagedRow) ([]bulk.Assigned, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := req.ValueColumns()
	stmt, err := tx.PrepareContext(ctx, buildInsert(target(req), cols, req.IdentityColumn))
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	valueIdx := indexes(req, cols)
	var out []bulk.Assigned
	for _, row := range rows {
		args := pick(row.Values, valueIdx)
		if req.IdentityColumn == "" {
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return nil, err
			}
			continue
		}
		var id any
		if err := stmt.QueryRowContext(ctx, args...).Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, bulk.Assigned{RowNumber: row.RowNumber, Identity: id})
	}
	return out, nil
}

func updateRows(ctx context.Context, tx *sql.Tx, req *bulk.TransferRequest) error {
	cols := req.ValueColumns()
	stmt, err := tx.PrepareContext(ctx, buildUpdate(target(req), cols, req.IdentityColumn))
	if err != nil {
		return err
	}
	defer stmt.Close()

	argIdx := append(indexes(req, cols), req.ColumnIndex(req.IdentityColumn))
	for _, row := range req.Rows {
		if _, err := stmt.ExecContext(ctx, pick(row.Values, argIdx)...); err != nil {
			return err
		}
	}
	return nil
}

// upsertRows inserts rows without an identity and merges the keyed ones
// with ON CONFLICT on the identity column.
func upsertRows(ctx context.Context, tx *sql.Tx, req *bulk.TransferRequest) ([]bulk.Assigned, error) {
	idIdx := req.ColumnIndex(req.IdentityColumn)

	var fresh, keyed []bulk.StagedRow
	for _, row := range req.Rows {
		if row.Values[idIdx] == nil {
			fresh = append(fresh, row)
		} else {
			keyed = append(keyed, row)
		}
	}

	out, err := insertRows(ctx, tx, req, fresh)
	if err != nil {
		return nil, err
	}
	if len(keyed) == 0 {
		return out, nil
	}

	stmt, err := tx.PrepareContext(ctx, buildUpsert(target(req), req.Columns, req.IdentityColumn))
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for _, row := range keyed {
		var id any
		if err := stmt.QueryRowContext(ctx, row.Values...).Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, bulk.Assigned{RowNumber: row.RowNumber, Identity: id})
	}
	return out, nil
}

func target(req *bulk.TransferRequest) string {
	return dialect.QualifiedName(req.Table.SchemaName(), req.Table.TableName())
}

func buildInsert(table string, cols []string, identity string) string {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, dialect.QuoteIdents("", cols), dialect.Placeholders(1, len(cols)))
	if identity != "" {
		q += " RETURNING " + dialect.QuoteIdent(identity)
	}
	return q
}

func buildUpdate(table string, cols []string, identity string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = dialect.QuoteIdent(c) + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		table, strings.Join(sets, ", "), dialect.QuoteIdent(identity))
}

func buildUpsert(table string, cols []string, identity string) string {
	var sets []string
	for _, c := range cols {
		if c == identity {
			continue
		}
		q := dialect.QuoteIdent(c)
		sets = append(sets, q+" = excluded."+q)
	}
	id := dialect.QuoteIdent(identity)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s RETURNING %s",
		table, dialect.QuoteIdents("", cols), dialect.Placeholders(1, len(cols)),
		id, strings.Join(sets, ", "), id)
}

func indexes(req *bulk.TransferRequest, cols []string) []int {
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = req.ColumnIndex(c)
	}
	return idx
}

func pick(values []any, idx []int) []any {
	out := make([]any, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}
