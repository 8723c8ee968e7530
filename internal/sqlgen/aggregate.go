package sqlgen

import (
	"fmt"

	graerr "github.com/simple-platform/grasql-sub001/gqlerrors"
	"github.com/simple-platform/grasql-sub001/internal/resolve"
)

// Aggregate selections compile to a single statement: the filtered, ordered
// and paginated base rows are wrapped as a subquery, and both the aggregate
// functions and the json row list aggregate over that one row source, so the
// two views can never disagree on filtering.

// aggregateSelect compiles a top-level aggregate root into a row-returning
// SELECT with one output column per requested sub-selection.
func (g *generator) aggregateSelect(n *resolve.ResolvedNode) (fragment, error) {
	alias := g.nextAlias()

	base, err := g.baseSubquery(n, n.Table, alias, nil)
	if err != nil {
		return fragment{}, err
	}

	ctx := &selCtx{}
	cols := make([]fragment, 0, len(n.Children))
	for _, ref := range n.Children {
		child := g.plan.Node(ref)
		expr, err := g.aggregateChildExpr(child, alias, ctx)
		if err != nil {
			return fragment{}, err
		}
		cols = append(cols, frag(expr.sql+" AS "+QuoteIdent(child.ResponseKey()), expr.args...))
	}

	selected := joinFragments(cols, ", ")
	out := fragment{sql: "SELECT " + selected.sql, args: selected.args}
	out.sql += " FROM (" + base.sql + ") AS " + QuoteIdent(alias)
	out.args = append(out.args, base.args...)
	for _, j := range ctx.joins {
		out.sql += " " + j.sql
		out.args = append(out.args, j.args...)
	}
	return out, nil
}

// aggregateJSONExpr compiles an aggregate selection into a correlated scalar
// subselect shaping both views as one json object. Used for nested aggregate
// fields and composite multi-root statements.
func (g *generator) aggregateJSONExpr(n *resolve.ResolvedNode, parentAlias string) (fragment, error) {
	alias := g.nextAlias()

	corr, err := g.correlation(n.Rel, parentAlias, alias)
	if err != nil {
		return fragment{}, err
	}
	base, err := g.baseSubquery(n, n.Table, alias, corr)
	if err != nil {
		return fragment{}, err
	}

	ctx := &selCtx{}
	pairs := make([]pair, 0, len(n.Children))
	for _, ref := range n.Children {
		child := g.plan.Node(ref)
		expr, err := g.aggregateChildExpr(child, alias, ctx)
		if err != nil {
			return fragment{}, err
		}
		pairs = append(pairs, pair{key: child.ResponseKey(), expr: expr})
	}
	obj := g.jsonObject(pairs)

	out := fragment{sql: "(SELECT " + obj.sql, args: obj.args}
	out.sql += " FROM (" + base.sql + ") AS " + QuoteIdent(alias)
	out.args = append(out.args, base.args...)
	for _, j := range ctx.joins {
		out.sql += " " + j.sql
		out.args = append(out.args, j.args...)
	}
	out.sql += ")"
	return out, nil
}

func (g *generator) aggregateChildExpr(n *resolve.ResolvedNode, alias string, ctx *selCtx) (fragment, error) {
	switch n.Kind {
	case resolve.TargetAggregate:
		pairs := make([]pair, 0, len(n.Children))
		for _, ref := range n.Children {
			fn := g.plan.Node(ref)
			expr, err := g.aggregateFuncExpr(fn, alias)
			if err != nil {
				return fragment{}, err
			}
			pairs = append(pairs, pair{key: fn.ResponseKey(), expr: expr})
		}
		return g.jsonObject(pairs), nil
	case resolve.TargetNodes:
		// Both views aggregate over one shared row source, so filtering or
		// paginating nodes on its own would let the two disagree.
		if len(n.Arguments) > 0 {
			return fragment{}, &graerr.GenError{
				Kind:    graerr.GenInvalidArgument,
				Name:    n.Name,
				Message: fmt.Sprintf("field %q takes no arguments; set them on the aggregate field", n.Name),
			}
		}
		pairs, err := g.fieldPairs(n, alias, ctx)
		if err != nil {
			return fragment{}, err
		}
		obj := g.jsonObject(pairs)
		return frag("coalesce(json_agg("+obj.sql+"), '[]')", obj.args...), nil
	}
	return fragment{}, &graerr.GenError{
		Kind:    graerr.GenInvalidArgument,
		Name:    n.Name,
		Message: fmt.Sprintf("field %q is not valid under an aggregate selection", n.Name),
	}
}

// aggregateFuncExpr renders one requested function. count without columns is
// count(*); column-taking functions shape one entry per column.
func (g *generator) aggregateFuncExpr(n *resolve.ResolvedNode, alias string) (fragment, error) {
	if len(n.FuncColumns) == 0 {
		if n.Func != "count" {
			return fragment{}, &graerr.GenError{
				Kind:    graerr.GenInvalidArgument,
				Name:    n.Func,
				Message: fmt.Sprintf("aggregate function %q requires at least one column", n.Func),
			}
		}
		return frag("count(*)"), nil
	}

	pairs := make([]pair, 0, len(n.FuncColumns))
	for _, col := range n.FuncColumns {
		pairs = append(pairs, pair{
			key:  col,
			expr: frag(n.Func + "(" + qualify(alias, col) + ")"),
		})
	}
	return g.jsonObject(pairs), nil
}
