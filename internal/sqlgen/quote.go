package sqlgen

import (
	"strings"

	"github.com/simple-platform/grasql-sub001/schema"
)

// QuoteIdent double-quotes a Postgres identifier, doubling any embedded
// quote characters.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteTable renders a table reference, schema-qualified when one is set.
func QuoteTable(t schema.Table) string {
	if t.Schema == "" {
		return QuoteIdent(t.Name)
	}
	return QuoteIdent(t.Schema) + "." + QuoteIdent(t.Name)
}

// qualify renders an alias-qualified column reference. With an empty alias
// the bare quoted column is returned, which mutations rely on.
func qualify(alias, column string) string {
	if alias == "" {
		return QuoteIdent(column)
	}
	return QuoteIdent(alias) + "." + QuoteIdent(column)
}
