package schema

import (
	"fmt"

	"github.com/koustreak/bulkhelpers/internal/database"
)

// ScanTableDefinitions reads the result of a metadata query whose rows are
// (table_schema, table_name, columns) with columns a JSON array. Rows are
// returned in result order; rows is closed before returning.
func ScanTableDefinitions(rows database.Rows) ([]*TableDefinition, error) {
	defer rows.Close()

	var defs []*TableDefinition
	for rows.Next() {
		var (
			schemaName, tableName string
			raw                   []byte
		)
		if err := rows.Scan(&schemaName, &tableName, &raw); err != nil {
			return nil, err
		}
		cols, err := ParseColumns(raw)
		if err != nil {
			return nil, fmt.Errorf("columns of %s.%s: %w", schemaName, tableName, err)
		}
		defs = append(defs, NewTableDefinition(schemaName, tableName, cols))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return defs, nil
}
