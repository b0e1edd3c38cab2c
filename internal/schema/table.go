package schema

import (
	"sort"
	"strings"
)

// TableDefinition describes one table: its columns in ordinal order, the
// identity column if any, and a case-insensitive column index.
//
// A TableDefinition is immutable after NewTableDefinition returns and is
// safe for concurrent reads.
type TableDefinition struct {
	schemaName string
	tableName  string
	columns    []ColumnDefinition
	identity   int // index into columns, -1 when absent
	nameIndex  map[string]ColumnDefinition
}

// NewTableDefinition builds a definition from the given columns. Columns
// are stable-sorted by ordinal position, so equal ordinals keep the order
// the metadata returned them in. The first column flagged as identity
// becomes the identity column; later flags are ignored. When two column
// names differ only by case, the first one in ordinal order wins the
// case-insensitive index.
func NewTableDefinition(schemaName, tableName string, columns []ColumnDefinition) *TableDefinition {
	cols := make([]ColumnDefinition, len(columns))
	copy(cols, columns)
	sort.SliceStable(cols, func(i, j int) bool {
		return cols[i].OrdinalPosition < cols[j].OrdinalPosition
	})

	t := &TableDefinition{
		schemaName: schemaName,
		tableName:  tableName,
		columns:    cols,
		identity:   -1,
		nameIndex:  make(map[string]ColumnDefinition, len(cols)),
	}

	for i, c := range cols {
		if c.IsIdentity && t.identity < 0 {
			t.identity = i
		}
		key := strings.ToLower(c.Name)
		if _, dup := t.nameIndex[key]; !dup {
			t.nameIndex[key] = c
		}
	}
	return t
}

// SchemaName returns the owning schema (e.g. "public", "dbo").
func (t *TableDefinition) SchemaName() string { return t.schemaName }

// TableName returns the unqualified table name.
func (t *TableDefinition) TableName() string { return t.tableName }

// QualifiedName returns "schema.table", or just the table when the schema
// is empty.
func (t *TableDefinition) QualifiedName() string {
	if t.schemaName == "" {
		return t.tableName
	}
	return t.schemaName + "." + t.tableName
}

// Columns returns a copy of the columns in ordinal order.
func (t *TableDefinition) Columns() []ColumnDefinition {
	out := make([]ColumnDefinition, len(t.columns))
	copy(out, t.columns)
	return out
}

// IdentityColumn returns the identity column.
func (t *TableDefinition) IdentityColumn() (ColumnDefinition, bool) {
	if t.identity < 0 {
		return ColumnDefinition{}, false
	}
	return t.columns[t.identity], true
}

// HasIdentity reports whether the table has an identity column.
func (t *TableDefinition) HasIdentity() bool { return t.identity >= 0 }

// GetColumnNames returns column names in ordinal order. With
// includeIdentity false the identity column is left out.
func (t *TableDefinition) GetColumnNames(includeIdentity bool) []string {
	names := make([]string, 0, len(t.columns))
	for i, c := range t.columns {
		if !includeIdentity && i == t.identity {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

// FindColumnCaseInsensitive looks a column up by name ignoring case.
func (t *TableDefinition) FindColumnCaseInsensitive(name string) (ColumnDefinition, bool) {
	c, ok := t.nameIndex[strings.ToLower(name)]
	return c, ok
}

func (t *TableDefinition) String() string {
	return t.tableName
}
