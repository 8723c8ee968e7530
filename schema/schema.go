// Package schema defines the host-facing schema types and the resolver
// capability through which table, relationship and column metadata is
// discovered at compile time. The engine never inspects a database itself;
// everything it knows about the relational schema flows through the
// ResolverFuncs supplied at initialization.
package schema

import "fmt"

// Table identifies a relational table. Value type; equality is by
// (Schema, Name).
type Table struct {
	// Schema is the database schema (namespace) the table lives in.
	Schema string
	// Name is the table name.
	Name string
	// TypeName is the externally visible GraphQL type name, when the host
	// exposes one. It does not participate in equality.
	TypeName string
}

// Key returns the canonical identity of the table.
func (t Table) Key() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

func (t Table) String() string { return t.Key() }

// Cardinality classifies a relationship's direction and multiplicity.
type Cardinality int

const (
	// HasMany is a one-to-many relationship from source to target.
	HasMany Cardinality = iota
	// BelongsTo is a many-to-one relationship from source to target.
	BelongsTo
	// ManyToMany routes through a join table.
	ManyToMany
)

func (c Cardinality) String() string {
	switch c {
	case HasMany:
		return "has_many"
	case BelongsTo:
		return "belongs_to"
	case ManyToMany:
		return "many_to_many"
	}
	return fmt.Sprintf("cardinality(%d)", int(c))
}

// Relationship describes a directional link from a source table to a target
// table. It is resolved once per (parent table, field) pair and cached.
type Relationship struct {
	Source        Table
	Target        Table
	SourceColumns []string
	TargetColumns []string
	Cardinality   Cardinality

	// JoinTable and the join column mappings are set only for ManyToMany.
	// JoinSourceColumns pair with SourceColumns, JoinTargetColumns with
	// TargetColumns.
	JoinTable         *Table
	JoinSourceColumns []string
	JoinTargetColumns []string
}

// ColumnType is the closed set of SQL type tags the generator understands.
// Values outside the closed set are carried as TypeUnknown and exempt from
// variable type checking.
type ColumnType int

const (
	TypeUnknown ColumnType = iota
	TypeInteger
	TypeFloat
	TypeString
	TypeBoolean
	TypeTimestamp
	TypeJSON
	TypeUUID
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeBoolean:
		return "boolean"
	case TypeTimestamp:
		return "timestamp"
	case TypeJSON:
		return "json"
	case TypeUUID:
		return "uuid"
	}
	return "unknown"
}

// ParseColumnType maps a host-supplied type name onto the closed tag set.
func ParseColumnType(name string) ColumnType {
	switch name {
	case "integer", "int", "bigint", "smallint", "serial", "bigserial":
		return TypeInteger
	case "float", "double", "real", "numeric", "decimal":
		return TypeFloat
	case "string", "text", "varchar", "char":
		return TypeString
	case "boolean", "bool":
		return TypeBoolean
	case "timestamp", "timestamptz", "date", "time":
		return TypeTimestamp
	case "json", "jsonb":
		return TypeJSON
	case "uuid":
		return TypeUUID
	}
	return TypeUnknown
}

// Column carries the metadata the generator needs for one column. It is
// fetched lazily through the resolver's attribute lookup.
type Column struct {
	Name     string
	Type     ColumnType
	Required bool
	Default  any
}
