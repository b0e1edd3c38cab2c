package database

import (
	"fmt"
	"strings"
)

// Dialect controls identifier quoting and placeholder style.
type Dialect int

const (
	// DialectPostgres uses "ident" quoting and $1, $2, … placeholders.
	DialectPostgres Dialect = iota

	// DialectMySQL uses `ident` quoting and ? placeholders.
	DialectMySQL

	// DialectSQLite uses "ident" quoting and ? placeholders.
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite"
	default:
		return "postgres"
	}
}

// QuoteIdent wraps a SQL identifier in the dialect's quote characters,
// doubling any embedded quote. Identifiers always come from the schema
// catalog, but quoting keeps reserved words and mixed case intact.
func (d Dialect) QuoteIdent(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName returns schema.table quoted for the dialect. An empty
// schema yields just the quoted table.
func (d Dialect) QualifiedName(schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

// QuoteIdents quotes every name and joins them with ", ". When prefix is
// non-empty each identifier is qualified with it (e.g. "s." + ident).
func (d Dialect) QuoteIdents(prefix string, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = prefix + d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// Placeholder returns the parameter placeholder for the 1-based idx.
// Postgres: $1, $2, …   MySQL / SQLite: ? (index is ignored)
func (d Dialect) Placeholder(idx int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", idx)
	}
	return "?"
}

// Placeholders returns n placeholders starting at 1-based start, joined
// with ", ".
func (d Dialect) Placeholders(start, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.Placeholder(start + i)
	}
	return strings.Join(ps, ", ")
}
