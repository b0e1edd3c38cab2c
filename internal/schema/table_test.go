package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersTable() *TableDefinition {
	return NewTableDefinition("dbo", "Orders", []ColumnDefinition{
		NewColumnDefinition("Id", 1, "int", true),
		NewColumnDefinition("CustomerId", 2, "int", false),
		NewColumnDefinition("Total", 3, "decimal", false),
	})
}

func TestTableDefinition_GetColumnNames(t *testing.T) {
	tbl := ordersTable()

	assert.Equal(t, []string{"Id", "CustomerId", "Total"}, tbl.GetColumnNames(true))
	assert.Equal(t, []string{"CustomerId", "Total"}, tbl.GetColumnNames(false))
}

func TestTableDefinition_GetColumnNames_NoIdentity(t *testing.T) {
	tbl := NewTableDefinition("public", "audit", []ColumnDefinition{
		NewColumnDefinition("At", 1, "timestamp", false),
		NewColumnDefinition("Message", 2, "text", false),
	})

	assert.False(t, tbl.HasIdentity())
	assert.Equal(t, tbl.GetColumnNames(true), tbl.GetColumnNames(false))
}

func TestTableDefinition_OrdersByOrdinal(t *testing.T) {
	tbl := NewTableDefinition("public", "t", []ColumnDefinition{
		NewColumnDefinition("c", 3, "int", false),
		NewColumnDefinition("a", 1, "int", true),
		NewColumnDefinition("b", 2, "int", false),
	})

	assert.Equal(t, []string{"a", "b", "c"}, tbl.GetColumnNames(true))
	assert.Equal(t, []string{"b", "c"}, tbl.GetColumnNames(false))

	cols := tbl.Columns()
	for i := 1; i < len(cols); i++ {
		assert.Less(t, cols[i-1].OrdinalPosition, cols[i].OrdinalPosition)
	}
}

func TestTableDefinition_FirstIdentityWins(t *testing.T) {
	tbl := NewTableDefinition("public", "t", []ColumnDefinition{
		NewColumnDefinition("A", 1, "int", true),
		NewColumnDefinition("B", 2, "int", true),
		NewColumnDefinition("C", 3, "int", false),
	})

	id, ok := tbl.IdentityColumn()
	require.True(t, ok)
	assert.Equal(t, "A", id.Name)
	assert.Equal(t, []string{"B", "C"}, tbl.GetColumnNames(false))
}

func TestTableDefinition_FindColumnCaseInsensitive(t *testing.T) {
	tbl := ordersTable()

	for _, name := range []string{"customerid", "CUSTOMERID", "CustomerId", "cUsToMeRiD"} {
		c, ok := tbl.FindColumnCaseInsensitive(name)
		require.True(t, ok, name)
		assert.Equal(t, "CustomerId", c.Name)
		assert.Equal(t, 2, c.OrdinalPosition)
	}

	_, ok := tbl.FindColumnCaseInsensitive("Customer_Id")
	assert.False(t, ok)
	_, ok = tbl.FindColumnCaseInsensitive("")
	assert.False(t, ok)
}

func TestTableDefinition_IndexCoversEveryColumn(t *testing.T) {
	tbl := ordersTable()
	for _, c := range tbl.Columns() {
		found, ok := tbl.FindColumnCaseInsensitive(c.Name)
		require.True(t, ok)
		assert.Equal(t, c, found)
	}
}

func TestTableDefinition_ZeroColumns(t *testing.T) {
	tbl := NewTableDefinition("public", "empty", nil)

	assert.Empty(t, tbl.Columns())
	assert.Empty(t, tbl.GetColumnNames(true))
	assert.False(t, tbl.HasIdentity())
}

func TestTableDefinition_ColumnsReturnsCopy(t *testing.T) {
	tbl := ordersTable()

	cols := tbl.Columns()
	cols[0].Name = "mutated"

	assert.Equal(t, "Id", tbl.Columns()[0].Name)
}

func TestTableDefinition_Names(t *testing.T) {
	tbl := ordersTable()
	assert.Equal(t, "dbo", tbl.SchemaName())
	assert.Equal(t, "Orders", tbl.TableName())
	assert.Equal(t, "dbo.Orders", tbl.QualifiedName())
	assert.Equal(t, "Orders", tbl.String())
	assert.Equal(t, "x", NewTableDefinition("", "x", nil).QualifiedName())
}
