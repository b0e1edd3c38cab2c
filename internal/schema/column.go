package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ColumnDefinition describes a single column of a table. Values are
// immutable once constructed; the catalog hands out copies.
type ColumnDefinition struct {
	Name            string
	OrdinalPosition int // 1-based
	DataType        string
	IsIdentity      bool // value assigned by the engine on insert
}

// NewColumnDefinition builds a ColumnDefinition.
func NewColumnDefinition(name string, ordinal int, dataType string, isIdentity bool) ColumnDefinition {
	return ColumnDefinition{
		Name:            name,
		OrdinalPosition: ordinal,
		DataType:        dataType,
		IsIdentity:      isIdentity,
	}
}

func (c ColumnDefinition) String() string {
	return fmt.Sprintf("%s [%s]", c.Name, c.DataType)
}

// columnJSON is the wire shape of one element of the nested column list
// returned by every driver's metadata query.
type columnJSON struct {
	ColumnName       string   `json:"columnName"`
	OrdinalPosition  int      `json:"ordinalPosition"`
	DataType         string   `json:"dataType"`
	IsIdentityColumn jsonFlag `json:"isIdentityColumn"`
}

// jsonFlag accepts true/false, 0/1, "YES"/"NO" and null. Engines disagree
// on how a boolean expression is rendered inside a JSON aggregate.
type jsonFlag bool

func (f *jsonFlag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", "false", "0", `"0"`, `"NO"`, `"no"`, `""`:
		*f = false
		return nil
	case "true", "1", `"1"`, `"YES"`, `"yes"`:
		*f = true
		return nil
	}
	if n, err := strconv.ParseFloat(string(data), 64); err == nil {
		*f = n != 0
		return nil
	}
	return fmt.Errorf("invalid identity flag %s", data)
}

// ParseColumns decodes the nested JSON column list of one table.
// Empty input, "null" and "[]" all yield an empty, non-nil slice.
// Element order is preserved exactly as returned.
func ParseColumns(data []byte) ([]ColumnDefinition, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return []ColumnDefinition{}, nil
	}

	var raw []columnJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode column list: %w", err)
	}

	cols := make([]ColumnDefinition, 0, len(raw))
	for _, rc := range raw {
		cols = append(cols, NewColumnDefinition(rc.ColumnName, rc.OrdinalPosition, rc.DataType, bool(rc.IsIdentityColumn)))
	}
	return cols, nil
}
