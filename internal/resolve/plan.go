package resolve

import (
	"github.com/simple-platform/grasql-sub001/internal/arena"
	"github.com/simple-platform/grasql-sub001/internal/gqlparse"
	"github.com/simple-platform/grasql-sub001/schema"
)

// TargetKind tags what a resolved selection is bound to.
type TargetKind uint8

const (
	// TargetTable is a root selection over a table.
	TargetTable TargetKind = iota
	// TargetRelationship is a nested selection reached through a relationship.
	TargetRelationship
	// TargetColumn is a scalar leaf.
	TargetColumn
	// TargetAggregateRoot is an aggregate-suffixed field.
	TargetAggregateRoot
	// TargetAggregate is the computed-functions container under an aggregate root.
	TargetAggregate
	// TargetAggregateFunc is one requested aggregate function.
	TargetAggregateFunc
	// TargetNodes is the row-list selection under an aggregate root.
	TargetNodes
	// TargetReturning is a mutation's RETURNING shape.
	TargetReturning
	// TargetAffectedRows binds to the statement's affected-row count.
	TargetAffectedRows
)

// MutationKind classifies a mutation root field.
type MutationKind uint8

const (
	MutationNone MutationKind = iota
	MutationInsert
	MutationUpdate
	MutationDelete
)

// ResolvedNode binds one selection to its schema target. Trees of
// ResolvedNodes are arena-allocated and owned by a single compile request.
type ResolvedNode struct {
	Name      string
	Alias     string
	Arguments []gqlparse.Argument

	Kind     TargetKind
	Mutation MutationKind

	// Table is the table context of the node: the resolved table for roots,
	// the relationship target for nested selections.
	Table schema.Table
	// Rel is set for TargetRelationship, and for nested aggregate roots.
	Rel *schema.Relationship
	// Column is set for TargetColumn.
	Column string
	// Func and FuncColumns are set for TargetAggregateFunc.
	Func        string
	FuncColumns []string

	Children []arena.Ref
}

// ResponseKey is the alias when present, otherwise the field name.
func (n *ResolvedNode) ResponseKey() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

// Arg returns the named argument value, if supplied.
func (n *ResolvedNode) Arg(name string) (gqlparse.Value, bool) {
	for _, a := range n.Arguments {
		if a.Name == name {
			return a.Value, true
		}
	}
	return gqlparse.Value{}, false
}

// Plan is the resolved form of one query, ready for SQL generation.
type Plan struct {
	Operation gqlparse.OperationKind
	Variables []gqlparse.VariableDef
	Roots     []arena.Ref
	Nodes     *arena.Arena[ResolvedNode]

	// columns holds lazily fetched column metadata, keyed by table key then
	// column name. Populated only for columns the query actually touches.
	columns map[string]map[string]schema.Column
}

// Node dereferences a node ref.
func (p *Plan) Node(r arena.Ref) *ResolvedNode {
	return p.Nodes.At(r)
}

// ColumnMeta returns the fetched metadata for a column, when the resolution
// pass needed it.
func (p *Plan) ColumnMeta(t schema.Table, column string) (schema.Column, bool) {
	cols, ok := p.columns[t.Key()]
	if !ok {
		return schema.Column{}, false
	}
	col, ok := cols[column]
	return col, ok
}

// ColumnType returns the SQL type tag for a column, TypeUnknown when the
// resolution pass did not fetch it.
func (p *Plan) ColumnType(t schema.Table, column string) schema.ColumnType {
	col, ok := p.ColumnMeta(t, column)
	if !ok {
		return schema.TypeUnknown
	}
	return col.Type
}

func (p *Plan) recordColumn(t schema.Table, col schema.Column) {
	key := t.Key()
	cols, ok := p.columns[key]
	if !ok {
		cols = make(map[string]schema.Column)
		p.columns[key] = cols
	}
	if _, exists := cols[col.Name]; !exists {
		cols[col.Name] = col
	}
}

// VariableDef returns the declaration for a variable name.
func (p *Plan) VariableDef(name string) (gqlparse.VariableDef, bool) {
	for _, v := range p.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return gqlparse.VariableDef{}, false
}
