// Package sqlgen compiles resolved query plans into Postgres statements.
// Parameters bind as $N placeholders in left-to-right emission order and are
// never reordered after generation.
package sqlgen

import (
	sq "github.com/Masterminds/squirrel"

	graerr "github.com/simple-platform/grasql-sub001/gqlerrors"
	"github.com/simple-platform/grasql-sub001/internal/gqlparse"
	"github.com/simple-platform/grasql-sub001/internal/resolve"
)

// Options configures generation.
type Options struct {
	// PaginationAliases maps relay-style argument names ("first") onto
	// "limit" or "offset".
	PaginationAliases map[string]string
}

// Statement is one generated SQL statement with its ordered parameters.
type Statement struct {
	SQL    string
	Params []any
	// WantsAffectedRows marks a mutation whose selection requested the
	// affected-row count, which the executor reads from the driver result
	// rather than a column.
	WantsAffectedRows bool
}

// Generator turns plans into statements. Stateless and safe for concurrent
// use; per-request state lives in a private generator instance.
type Generator struct {
	opts Options
}

// NewGenerator builds a generator.
func NewGenerator(opts Options) *Generator {
	return &Generator{opts: opts}
}

type generator struct {
	plan   *resolve.Plan
	vars   map[string]any
	opts   Options
	aliasN int
}

// Generate compiles one plan against a set of variable bindings.
func (gen *Generator) Generate(plan *resolve.Plan, variables map[string]any) (Statement, error) {
	g := &generator{plan: plan, vars: variables, opts: gen.opts}

	if plan.Operation == gqlparse.OperationMutation {
		return g.generateMutation()
	}
	return g.generateQuery()
}

func (g *generator) generateQuery() (Statement, error) {
	if len(g.plan.Roots) == 1 {
		root := g.plan.Node(g.plan.Roots[0])
		var (
			f   fragment
			err error
		)
		if root.Kind == resolve.TargetAggregateRoot {
			f, err = g.aggregateSelect(root)
		} else {
			f, err = g.rowSelect(root)
		}
		if err != nil {
			return Statement{}, err
		}
		return finish(f, false)
	}

	// Multiple roots compile to one composite statement with a scalar json
	// column per root, so a single round trip serves the whole document.
	cols := make([]fragment, 0, len(g.plan.Roots))
	for _, ref := range g.plan.Roots {
		root := g.plan.Node(ref)
		var (
			expr fragment
			err  error
		)
		if root.Kind == resolve.TargetAggregateRoot {
			expr, err = g.aggregateJSONExpr(root, "")
		} else {
			expr, err = g.jsonListExpr(root, "")
		}
		if err != nil {
			return Statement{}, err
		}
		cols = append(cols, frag(expr.sql+" AS "+QuoteIdent(root.ResponseKey()), expr.args...))
	}
	selected := joinFragments(cols, ", ")
	return finish(frag("SELECT "+selected.sql, selected.args...), false)
}

func (g *generator) generateMutation() (Statement, error) {
	if len(g.plan.Roots) != 1 {
		return Statement{}, &graerr.GenError{
			Kind:    graerr.GenInvalidArgument,
			Message: "a mutation document must contain exactly one root field",
		}
	}
	root := g.plan.Node(g.plan.Roots[0])
	f, wantsAffected, err := g.mutationStatement(root)
	if err != nil {
		return Statement{}, err
	}
	return finish(f, wantsAffected)
}

// finish converts the accumulated ?-style placeholders to $N form.
func finish(f fragment, wantsAffected bool) (Statement, error) {
	sql, err := sq.Dollar.ReplacePlaceholders(f.sql)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: sql, Params: f.args, WantsAffectedRows: wantsAffected}, nil
}
