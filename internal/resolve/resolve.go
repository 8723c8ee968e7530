// Package resolve walks a normalized selection tree and binds every field to
// a table, relationship or column through the host resolver capability. All
// lookups are cached with the same TTL/size-bounded single-flight discipline
// as the parse cache, because resolver calls cross into host logic with
// non-trivial cost.
package resolve

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	graerr "github.com/simple-platform/grasql-sub001/gqlerrors"
	"github.com/simple-platform/grasql-sub001/internal/arena"
	"github.com/simple-platform/grasql-sub001/internal/gqlparse"
	"github.com/simple-platform/grasql-sub001/internal/observability"
	"github.com/simple-platform/grasql-sub001/schema"
)

// Options configures the resolution engine.
type Options struct {
	AggregateFieldSuffix    string
	AggregateNodesFieldName string
	// PrimaryKeyArgumentName is the argument treated as an equality filter
	// on the column of the same name, "id" by convention.
	PrimaryKeyArgumentName string
	InsertPrefix           string
	UpdatePrefix           string
	DeletePrefix           string
	// PaginationAliases maps relay-style argument names onto "limit"/"offset".
	PaginationAliases map[string]string
	CacheSize         int
	CacheTTL          time.Duration
}

// Engine is the schema resolution engine. Safe for unbounded concurrent use;
// the produced Plans are exclusively owned by their requests.
type Engine struct {
	opts     Options
	resolver schema.ResolverFuncs

	tables  *expirable.LRU[string, schema.Table]
	rels    *expirable.LRU[string, schema.Relationship]
	columns *expirable.LRU[string, map[string]struct{}]
	attrs   *expirable.LRU[string, any]

	group   singleflight.Group
	metrics *observability.Metrics

	reservedArgs map[string]struct{}
}

// NewEngine builds a resolution engine. metrics may be nil.
func NewEngine(opts Options, resolver schema.ResolverFuncs, metrics *observability.Metrics) *Engine {
	reserved := map[string]struct{}{
		"where":    {},
		"order_by": {},
		"limit":    {},
		"offset":   {},
		"objects":  {},
		"_set":     {},
	}
	for alias := range opts.PaginationAliases {
		reserved[alias] = struct{}{}
	}
	return &Engine{
		opts:         opts,
		resolver:     resolver,
		tables:       expirable.NewLRU[string, schema.Table](opts.CacheSize, nil, opts.CacheTTL),
		rels:         expirable.NewLRU[string, schema.Relationship](opts.CacheSize, nil, opts.CacheTTL),
		columns:      expirable.NewLRU[string, map[string]struct{}](opts.CacheSize, nil, opts.CacheTTL),
		attrs:        expirable.NewLRU[string, any](opts.CacheSize, nil, opts.CacheTTL),
		metrics:      metrics,
		reservedArgs: reserved,
	}
}

// Resolve binds every selection of pq against the schema. rctx is the opaque
// host context, passed through to every resolver call uninterpreted.
func (e *Engine) Resolve(ctx context.Context, pq *gqlparse.ParsedQuery, rctx any) (*Plan, error) {
	plan := &Plan{
		Operation: pq.OperationKind,
		Variables: pq.Variables,
		Nodes:     arena.New[ResolvedNode](pq.Nodes.Len()),
		columns:   make(map[string]map[string]schema.Column),
	}

	for _, rootRef := range pq.Roots {
		sel := pq.Nodes.At(rootRef)
		ref, err := e.resolveRoot(ctx, pq, sel, plan, rctx)
		if err != nil {
			return nil, err
		}
		plan.Roots = append(plan.Roots, ref)
	}
	return plan, nil
}

func (e *Engine) resolveRoot(ctx context.Context, pq *gqlparse.ParsedQuery, sel *gqlparse.SelectionNode, plan *Plan, rctx any) (arena.Ref, error) {
	if pq.OperationKind == gqlparse.OperationMutation {
		return e.resolveMutationRoot(ctx, pq, sel, plan, rctx)
	}

	if base, ok := e.aggregateBase(sel.Name); ok {
		table, err := e.lookupTable(ctx, base, rctx)
		if err != nil {
			return arena.Nil, err
		}
		return e.resolveAggregateRoot(ctx, pq, sel, plan, table, nil, rctx)
	}

	table, err := e.lookupTable(ctx, sel.Name, rctx)
	if err != nil {
		return arena.Nil, err
	}
	return e.resolveTableSelection(ctx, pq, sel, plan, table, TargetTable, nil, rctx)
}

// aggregateBase strips the configured aggregate suffix, reporting whether
// the field takes the aggregate path.
func (e *Engine) aggregateBase(field string) (string, bool) {
	suffix := e.opts.AggregateFieldSuffix
	if suffix == "" || !strings.HasSuffix(field, suffix) || len(field) == len(suffix) {
		return "", false
	}
	return strings.TrimSuffix(field, suffix), true
}

// resolveTableSelection resolves a selection whose context is a table: its
// argument columns, then each child as relationship, aggregate or column.
func (e *Engine) resolveTableSelection(
	ctx context.Context,
	pq *gqlparse.ParsedQuery,
	sel *gqlparse.SelectionNode,
	plan *Plan,
	table schema.Table,
	kind TargetKind,
	rel *schema.Relationship,
	rctx any,
) (arena.Ref, error) {
	node := ResolvedNode{
		Name:      sel.Name,
		Alias:     sel.Alias,
		Arguments: sel.Arguments,
		Kind:      kind,
		Table:     table,
		Rel:       rel,
	}

	if err := e.resolveArguments(ctx, sel, plan, table, rctx); err != nil {
		return arena.Nil, err
	}

	for _, childRef := range sel.Children {
		child := pq.Nodes.At(childRef)
		ref, err := e.resolveChild(ctx, pq, child, plan, table, rctx)
		if err != nil {
			return arena.Nil, err
		}
		node.Children = append(node.Children, ref)
	}

	return plan.Nodes.Alloc(node), nil
}

func (e *Engine) resolveChild(ctx context.Context, pq *gqlparse.ParsedQuery, sel *gqlparse.SelectionNode, plan *Plan, parent schema.Table, rctx any) (arena.Ref, error) {
	// Leaf fields bind as columns, validated against the column listing.
	if len(sel.Children) == 0 {
		return e.resolveColumnLeaf(ctx, sel, plan, parent, rctx)
	}

	if base, ok := e.aggregateBase(sel.Name); ok {
		rel, found, err := e.lookupRelationship(ctx, base, parent, rctx)
		if err != nil {
			return arena.Nil, err
		}
		if !found {
			return arena.Nil, &graerr.SchemaError{Kind: graerr.SchemaUnresolvedField, Field: sel.Name}
		}
		return e.resolveAggregateRoot(ctx, pq, sel, plan, rel.Target, &rel, rctx)
	}

	rel, found, err := e.lookupRelationship(ctx, sel.Name, parent, rctx)
	if err != nil {
		return arena.Nil, err
	}
	if !found {
		return arena.Nil, &graerr.SchemaError{Kind: graerr.SchemaUnresolvedField, Field: sel.Name}
	}
	relCopy := rel
	return e.resolveTableSelection(ctx, pq, sel, plan, rel.Target, TargetRelationship, &relCopy, rctx)
}

func (e *Engine) resolveColumnLeaf(ctx context.Context, sel *gqlparse.SelectionNode, plan *Plan, table schema.Table, rctx any) (arena.Ref, error) {
	if err := e.verifyColumn(ctx, plan, table, sel.Name, false, rctx); err != nil {
		return arena.Nil, err
	}
	return plan.Nodes.Alloc(ResolvedNode{
		Name:   sel.Name,
		Alias:  sel.Alias,
		Kind:   TargetColumn,
		Table:  table,
		Column: sel.Name,
	}), nil
}

// verifyColumn checks membership in the table's column listing and fetches
// the column metadata the generator will need.
func (e *Engine) verifyColumn(ctx context.Context, plan *Plan, table schema.Table, column string, withDefaults bool, rctx any) error {
	cols, err := e.lookupColumns(ctx, table, rctx)
	if err != nil {
		return err
	}
	if _, ok := cols[column]; !ok {
		return &graerr.SchemaError{Kind: graerr.SchemaUnresolvedField, Field: column}
	}
	meta, err := e.fetchColumn(ctx, table, column, withDefaults, rctx)
	if err != nil {
		return err
	}
	plan.recordColumn(table, meta)
	return nil
}

func (e *Engine) resolveAggregateRoot(ctx context.Context, pq *gqlparse.ParsedQuery, sel *gqlparse.SelectionNode, plan *Plan, table schema.Table, rel *schema.Relationship, rctx any) (arena.Ref, error) {
	node := ResolvedNode{
		Name:      sel.Name,
		Alias:     sel.Alias,
		Arguments: sel.Arguments,
		Kind:      TargetAggregateRoot,
		Table:     table,
		Rel:       rel,
	}

	if err := e.resolveArguments(ctx, sel, plan, table, rctx); err != nil {
		return arena.Nil, err
	}

	for _, childRef := range sel.Children {
		child := pq.Nodes.At(childRef)
		switch child.Name {
		case "aggregate":
			ref, err := e.resolveAggregateFuncs(ctx, pq, child, plan, table, rctx)
			if err != nil {
				return arena.Nil, err
			}
			node.Children = append(node.Children, ref)
		case e.opts.AggregateNodesFieldName:
			ref, err := e.resolveTableSelection(ctx, pq, child, plan, table, TargetNodes, nil, rctx)
			if err != nil {
				return arena.Nil, err
			}
			node.Children = append(node.Children, ref)
		default:
			return arena.Nil, &graerr.SchemaError{Kind: graerr.SchemaUnresolvedField, Field: child.Name}
		}
	}

	return plan.Nodes.Alloc(node), nil
}

var aggregateFuncs = map[string]struct{}{
	"count": {},
	"sum":   {},
	"avg":   {},
	"max":   {},
	"min":   {},
}

// resolveAggregateFuncs binds the computed-function requests of an
// `aggregate` container. Functions bind against the parent table without
// per-row column resolution; only the columns named under sum/avg/min/max
// are verified.
func (e *Engine) resolveAggregateFuncs(ctx context.Context, pq *gqlparse.ParsedQuery, sel *gqlparse.SelectionNode, plan *Plan, table schema.Table, rctx any) (arena.Ref, error) {
	node := ResolvedNode{
		Name:  sel.Name,
		Alias: sel.Alias,
		Kind:  TargetAggregate,
		Table: table,
	}

	for _, childRef := range sel.Children {
		fn := pq.Nodes.At(childRef)
		if _, ok := aggregateFuncs[fn.Name]; !ok {
			return arena.Nil, &graerr.SchemaError{Kind: graerr.SchemaUnresolvedField, Field: fn.Name}
		}
		fnNode := ResolvedNode{
			Name:  fn.Name,
			Alias: fn.Alias,
			Kind:  TargetAggregateFunc,
			Table: table,
			Func:  fn.Name,
		}
		for _, colRef := range fn.Children {
			colSel := pq.Nodes.At(colRef)
			if err := e.verifyColumn(ctx, plan, table, colSel.Name, false, rctx); err != nil {
				return arena.Nil, err
			}
			fnNode.FuncColumns = append(fnNode.FuncColumns, colSel.Name)
		}
		node.Children = append(node.Children, plan.Nodes.Alloc(fnNode))
	}

	return plan.Nodes.Alloc(node), nil
}

func (e *Engine) resolveMutationRoot(ctx context.Context, pq *gqlparse.ParsedQuery, sel *gqlparse.SelectionNode, plan *Plan, rctx any) (arena.Ref, error) {
	kind := MutationInsert
	tableField := sel.Name
	switch {
	case e.opts.InsertPrefix != "" && strings.HasPrefix(sel.Name, e.opts.InsertPrefix):
		tableField = strings.TrimPrefix(sel.Name, e.opts.InsertPrefix)
	case e.opts.UpdatePrefix != "" && strings.HasPrefix(sel.Name, e.opts.UpdatePrefix):
		kind = MutationUpdate
		tableField = strings.TrimPrefix(sel.Name, e.opts.UpdatePrefix)
	case e.opts.DeletePrefix != "" && strings.HasPrefix(sel.Name, e.opts.DeletePrefix):
		kind = MutationDelete
		tableField = strings.TrimPrefix(sel.Name, e.opts.DeletePrefix)
	}

	table, err := e.lookupTable(ctx, tableField, rctx)
	if err != nil {
		return arena.Nil, err
	}

	node := ResolvedNode{
		Name:      sel.Name,
		Alias:     sel.Alias,
		Arguments: sel.Arguments,
		Kind:      TargetTable,
		Mutation:  kind,
		Table:     table,
	}

	if err := e.resolveMutationArguments(ctx, sel, plan, table, rctx); err != nil {
		return arena.Nil, err
	}

	for _, childRef := range sel.Children {
		child := pq.Nodes.At(childRef)
		switch child.Name {
		case "returning":
			ref, err := e.resolveTableSelection(ctx, pq, child, plan, table, TargetReturning, nil, rctx)
			if err != nil {
				return arena.Nil, err
			}
			node.Children = append(node.Children, ref)
		case "affected_rows":
			node.Children = append(node.Children, plan.Nodes.Alloc(ResolvedNode{
				Name:  child.Name,
				Alias: child.Alias,
				Kind:  TargetAffectedRows,
				Table: table,
			}))
		default:
			return arena.Nil, &graerr.SchemaError{Kind: graerr.SchemaUnresolvedField, Field: child.Name}
		}
	}

	return plan.Nodes.Alloc(node), nil
}

// resolveArguments validates the columns referenced by a selection's
// arguments and fetches their metadata. Pagination values are left for the
// generator, which owns the argument-shape errors.
func (e *Engine) resolveArguments(ctx context.Context, sel *gqlparse.SelectionNode, plan *Plan, table schema.Table, rctx any) error {
	for _, arg := range sel.Arguments {
		switch arg.Name {
		case "where":
			if err := e.resolveWhereColumns(ctx, arg.Value, plan, table, rctx); err != nil {
				return err
			}
		case "order_by":
			if err := e.resolveOrderByColumns(ctx, arg.Value, plan, table, rctx); err != nil {
				return err
			}
		case "limit", "offset", "objects", "_set":
			// handled elsewhere
		case e.opts.PrimaryKeyArgumentName:
			if err := e.verifyColumn(ctx, plan, table, arg.Name, false, rctx); err != nil {
				return err
			}
		default:
			if _, isAlias := e.opts.PaginationAliases[arg.Name]; isAlias {
				continue
			}
			// Any other scalar argument is a direct equality filter on the
			// column of the same name, same as the primary-key argument.
			if err := e.verifyColumn(ctx, plan, table, arg.Name, false, rctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) resolveWhereColumns(ctx context.Context, v gqlparse.Value, plan *Plan, table schema.Table, rctx any) error {
	if v.Kind != gqlparse.ValueObject {
		// Variable-valued filters carry no inspectable columns here; the
		// generator materializes them once the bindings are available.
		return nil
	}
	for _, field := range v.Fields {
		switch field.Name {
		case "_and", "_or":
			for _, item := range field.Value.List {
				if err := e.resolveWhereColumns(ctx, item, plan, table, rctx); err != nil {
					return err
				}
			}
			// A single object is accepted where a list is expected.
			if field.Value.Kind == gqlparse.ValueObject {
				if err := e.resolveWhereColumns(ctx, field.Value, plan, table, rctx); err != nil {
					return err
				}
			}
		case "_not":
			if err := e.resolveWhereColumns(ctx, field.Value, plan, table, rctx); err != nil {
				return err
			}
		default:
			if err := e.verifyColumn(ctx, plan, table, field.Name, false, rctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) resolveOrderByColumns(ctx context.Context, v gqlparse.Value, plan *Plan, table schema.Table, rctx any) error {
	entries := v.List
	if v.Kind == gqlparse.ValueObject {
		entries = []gqlparse.Value{v}
	}
	for _, entry := range entries {
		for _, field := range entry.Fields {
			if err := e.verifyColumn(ctx, plan, table, field.Name, false, rctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) resolveMutationArguments(ctx context.Context, sel *gqlparse.SelectionNode, plan *Plan, table schema.Table, rctx any) error {
	for _, arg := range sel.Arguments {
		switch arg.Name {
		case "objects":
			for _, obj := range arg.Value.List {
				for _, field := range obj.Fields {
					if err := e.verifyColumn(ctx, plan, table, field.Name, true, rctx); err != nil {
						return err
					}
				}
			}
		case "_set":
			for _, field := range arg.Value.Fields {
				if err := e.verifyColumn(ctx, plan, table, field.Name, false, rctx); err != nil {
					return err
				}
			}
		case "where":
			if err := e.resolveWhereColumns(ctx, arg.Value, plan, table, rctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Purge drops every cached resolution result. Used on re-initialization.
func (e *Engine) Purge() {
	e.tables.Purge()
	e.rels.Purge()
	e.columns.Purge()
	e.attrs.Purge()
}
