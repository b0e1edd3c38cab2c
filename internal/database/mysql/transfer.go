package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/koustreak/bulkhelpers/internal/bulk"
	"github.com/koustreak/bulkhelpers/internal/database"
	"github.com/koustreak/bulkhelpers/internal/errs"
)

var dialect = database.DialectMySQL

// Statement size limits. 65535 is the server's prepared-statement
// parameter limit.
const (
	maxPlaceholders = 65535
	maxChunkRows    = 1000
)

// Transfer implements bulk.Transferer with chunked multi-row statements.
//
// MySQL has no RETURNING. New identities are derived from LastInsertId,
// which reports the first value of a multi-row INSERT; the rest follow at
// @@auto_increment_increment steps. That holds for simple inserts under
// every innodb_autoinc_lock_mode. tx must come from this driver's Begin.
func (d *Driver) Transfer(ctx context.Context, tx database.Tx, req *bulk.TransferRequest) ([]bulk.Assigned, error) {
	sqlTx, ok := tx.(*database.SQLTx)
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "mysql transfer needs a mysql transaction, got %T", tx)
	}
	native := sqlTx.Native()

	switch req.Mode {
	case bulk.ModeInsert, bulk.ModeUpsert:
		var step int64 = 1
		if req.IdentityColumn != "" {
			if err := native.QueryRowContext(ctx, "SELECT @@SESSION.auto_increment_increment").Scan(&step); err != nil {
				return nil, err
			}
		}
		if req.Mode == bulk.ModeInsert {
			return insertRows(ctx, native, req, req.Rows, step)
		}
		return upsertRows(ctx, native, req, step)
	case bulk.ModeUpdate:
		return nil, updateRows(ctx, native, req)
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported mode %s", req.Mode)
	}
}

// execer is the part of *sql.Tx the row writers use.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertRows writes rows in chunks. step is @@auto_increment_increment.
func insertRows(ctx context.Context, tx execer, req *bulk.TransferRequest, rows []bulk.StagedRow, step int64) ([]bulk.Assigned, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := req.ValueColumns()
	idx := indexes(req, cols)

	var out []bulk.Assigned
	for _, chunk := range chunks(rows, len(cols)) {
		args := make([]any, 0, len(chunk)*len(cols))
		for _, row := range chunk {
			args = append(args, pick(row.Values, idx)...)
		}
		res, err := tx.ExecContext(ctx, buildInsert(target(req), cols, len(chunk)), args...)
		if err != nil {
			return nil, err
		}
		if req.IdentityColumn == "" {
			continue
		}
		first, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		for i, row := range chunk {
			out = append(out, bulk.Assigned{RowNumber: row.RowNumber, Identity: first + int64(i)*step})
		}
	}
	return out, nil
}

func updateRows(ctx context.Context, tx execer, req *bulk.TransferRequest) error {
	for _, chunk := range chunks(req.Rows, len(req.Columns)) {
		args := make([]any, 0, len(chunk)*len(req.Columns))
		for _, row := range chunk {
			args = append(args, row.Values...)
		}
		q := buildUpdate(target(req), req.Columns, req.ValueColumns(), req.IdentityColumn, len(chunk))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

// upsertRows inserts rows without an identity and writes keyed rows with
// ON DUPLICATE KEY UPDATE. A keyed row keeps its own identity whether it
// matched or not.
func upsertRows(ctx context.Context, tx execer, req *bulk.TransferRequest, step int64) ([]bulk.Assigned, error) {
	idIdx := req.ColumnIndex(req.IdentityColumn)

	var fresh, keyed []bulk.StagedRow
	for _, row := range req.Rows {
		if row.Values[idIdx] == nil {
			fresh = append(fresh, row)
		} else {
			keyed = append(keyed, row)
		}
	}

	out, err := insertRows(ctx, tx, req, fresh, step)
	if err != nil {
		return nil, err
	}

	for _, chunk := range chunks(keyed, len(req.Columns)) {
		args := make([]any, 0, len(chunk)*len(req.Columns))
		for _, row := range chunk {
			args = append(args, row.Values...)
		}
		q := buildUpsert(target(req), req.Columns, req.ValueColumns(), len(chunk))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return nil, err
		}
		for _, row := range chunk {
			out = append(out, bulk.Assigned{RowNumber: row.RowNumber, Identity: row.Values[idIdx]})
		}
	}
	return out, nil
}

func target(req *bulk.TransferRequest) string {
	return dialect.QualifiedName(req.Table.SchemaName(), req.Table.TableName())
}

// chunks splits rows so that no statement exceeds the placeholder limit.
func chunks(rows []bulk.StagedRow, width int) [][]bulk.StagedRow {
	size := maxChunkRows
	if width > 0 && maxPlaceholders/width < size {
		size = maxPlaceholders / width
	}
	var out [][]bulk.StagedRow
	for len(rows) > size {
		out = append(out, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}

func valuesList(width, n int) string {
	tuple := "(" + dialect.Placeholders(1, width) + ")"
	tuples := make([]string, n)
	for i := range tuples {
		tuples[i] = tuple
	}
	return strings.Join(tuples, ", ")
}

func buildInsert(table string, cols []string, n int) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		table, dialect.QuoteIdents("", cols), valuesList(len(cols), n))
}

// buildUpdate joins the target to the staged rows, inlined as a UNION ALL
// derived table whose columns follow all.
func buildUpdate(table string, all, values []string, identity string, n int) string {
	first := make([]string, len(all))
	for i, c := range all {
		first[i] = "? AS " + dialect.QuoteIdent(c)
	}
	selects := make([]string, n)
	selects[0] = "SELECT " + strings.Join(first, ", ")
	for i := 1; i < n; i++ {
		selects[i] = "SELECT " + dialect.Placeholders(1, len(all))
	}

	sets := make([]string, len(values))
	for i, c := range values {
		q := dialect.QuoteIdent(c)
		sets[i] = "t." + q + " = s." + q
	}
	id := dialect.QuoteIdent(identity)
	return fmt.Sprintf("UPDATE %s AS t JOIN (%s) AS s ON t.%s = s.%s SET %s",
		table, strings.Join(selects, " UNION ALL "), id, id, strings.Join(sets, ", "))
}

// buildUpsert uses the row alias form of ON DUPLICATE KEY UPDATE
// (MySQL 8.0.19+).
func buildUpsert(table string, all, values []string, n int) string {
	sets := make([]string, len(values))
	for i, c := range values {
		q := dialect.QuoteIdent(c)
		sets[i] = q + " = s." + q
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s AS s ON DUPLICATE KEY UPDATE %s",
		table, dialect.QuoteIdents("", all), valuesList(len(all), n), strings.Join(sets, ", "))
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
