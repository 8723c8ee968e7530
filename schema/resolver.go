package schema

// ColumnAttribute names a single piece of column metadata requested through
// ResolveColumnAttribute.
type ColumnAttribute string

const (
	// AttrSQLType requests the column's SQL type name (see ParseColumnType).
	AttrSQLType ColumnAttribute = "sql_type"
	// AttrRequired requests whether the column is NOT NULL without a default.
	AttrRequired ColumnAttribute = "required"
	// AttrDefault requests the column's default value, nil when absent.
	AttrDefault ColumnAttribute = "default"
)

// ResolverFuncs is the host-implemented capability set consumed during
// schema resolution. The ctx argument is the opaque value supplied by the
// caller of GenerateSQL; the engine passes it through verbatim and never
// interprets it.
//
// Each lookup reports absence through its ok result rather than an error:
// an error (or panic) means the host itself failed, and is surfaced as a
// SchemaError with the cause preserved.
type ResolverFuncs struct {
	// ResolveTable maps a root field name to a table.
	ResolveTable func(name string, ctx any) (Table, bool, error)

	// ResolveRelationship maps a child field name under a parent table to a
	// relationship.
	ResolveRelationship func(field string, parent Table, ctx any) (Relationship, bool, error)

	// ResolveColumns lists the column names of a table.
	ResolveColumns func(table Table, ctx any) ([]string, error)

	// ResolveColumnAttribute fetches one attribute of one column.
	ResolveColumnAttribute func(attr ColumnAttribute, column string, table Table, ctx any) (any, error)
}

// MissingOperations reports the names of unset capability operations, in
// declaration order. Completeness is checked once at initialization, before
// any query is compiled.
func (r ResolverFuncs) MissingOperations() []string {
	var missing []string
	if r.ResolveTable == nil {
		missing = append(missing, "resolve_table")
	}
	if r.ResolveRelationship == nil {
		missing = append(missing, "resolve_relationship")
	}
	if r.ResolveColumns == nil {
		missing = append(missing, "resolve_columns")
	}
	if r.ResolveColumnAttribute == nil {
		missing = append(missing, "resolve_column_attribute")
	}
	return missing
}
