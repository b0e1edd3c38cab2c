package bulk

import (
	"context"

	"github.com/koustreak/bulkhelpers/internal/database"
	"github.com/koustreak/bulkhelpers/internal/schema"
)

// RowNumberColumn names the synthetic correlation column drivers add to
// staged data. It never exists on a real table.
const RowNumberColumn = "bulk_row_number"

// Mode selects the write performed by a transfer.
type Mode int

const (
	ModeInsert Mode = iota
	ModeUpdate
	ModeUpsert
)

func (m Mode) String() string {
	switch m {
	case ModeInsert:
		return "insert"
	case ModeUpdate:
		return "update"
	case ModeUpsert:
		return "upsert"
	default:
		return "unknown"
	}
}

// StagedRow is one entity flattened to column values. RowNumber is the
// entity's index in the caller's input and is echoed back in Assigned.
type StagedRow struct {
	RowNumber int
	Values    []any // aligned with TransferRequest.Columns
}

// TransferRequest is everything a driver needs for one bulk transfer.
type TransferRequest struct {
	Mode  Mode
	Table *schema.TableDefinition

	// Columns are the target columns in ordinal order. They include the
	// identity column for ModeUpdate and ModeUpsert only.
	Columns []string

	// IdentityColumn is empty when the table has none.
	IdentityColumn string

	Rows []StagedRow
}

// ColumnIndex returns the position of name in Columns, or -1.
func (r *TransferRequest) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ValueColumns returns Columns without the identity column.
func (r *TransferRequest) ValueColumns() []string {
	out := make([]string, 0, len(r.Columns))
	for _, c := range r.Columns {
		if c != r.IdentityColumn {
			out = append(out, c)
		}
	}
	return out
}

// Assigned reports the identity a transfer produced for one staged row.
type Assigned struct {
	RowNumber int
	Identity  any
}

// Transferer is the bulk-transfer primitive a driver provides. It runs
// inside tx and must not commit or roll it back. Errors are returned as the
// driver produced them.
//
// For ModeInsert and ModeUpsert on a table with an identity column it
// returns one Assigned per staged row, in any order. For ModeUpdate it
// returns nil.
type Transferer interface {
	Transfer(ctx context.Context, tx database.Tx, req *TransferRequest) ([]Assigned, error)
}

// TransferFunc adapts a function to Transferer.
type TransferFunc func(ctx context.Context, tx database.Tx, req *TransferRequest) ([]Assigned, error)

func (f TransferFunc) Transfer(ctx context.Context, tx database.Tx, req *TransferRequest) ([]Assigned, error) {
	return f(ctx, tx, req)
}
