package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	graerr "github.com/simple-platform/grasql-sub001/gqlerrors"
	"github.com/simple-platform/grasql-sub001/internal/gqlparse"
	"github.com/simple-platform/grasql-sub001/internal/resolve"
	"github.com/simple-platform/grasql-sub001/schema"
)

// fragment is a piece of SQL text with its ordered parameters. Fragments are
// concatenated left to right, so parameter order always tracks placeholder
// order in the final statement.
type fragment struct {
	sql  string
	args []any
}

func frag(sql string, args ...any) fragment {
	return fragment{sql: sql, args: args}
}

func fromSqlizer(s sq.Sqlizer) (fragment, error) {
	sql, args, err := s.ToSql()
	if err != nil {
		return fragment{}, err
	}
	return fragment{sql: sql, args: args}, nil
}

func joinFragments(parts []fragment, sep string) fragment {
	out := fragment{}
	for i, p := range parts {
		if i > 0 {
			out.sql += sep
		}
		out.sql += p.sql
		out.args = append(out.args, p.args...)
	}
	return out
}

// pair is one key/expression entry destined for a select list or a
// json_build_object call.
type pair struct {
	key  string
	expr fragment
}

// selCtx accumulates the LEFT JOINs contributed by singular relationships
// while a selection's field expressions are built.
type selCtx struct {
	joins []fragment
}

func (g *generator) nextAlias() string {
	a := fmt.Sprintf("t%d", g.aliasN)
	g.aliasN++
	return a
}

// fieldPairs builds one key/expression pair per child of a table selection.
// Singular relationships join into ctx; list relationships and nested
// aggregates become correlated subselects referencing alias.
func (g *generator) fieldPairs(n *resolve.ResolvedNode, alias string, ctx *selCtx) ([]pair, error) {
	pairs := make([]pair, 0, len(n.Children))
	for _, ref := range n.Children {
		child := g.plan.Node(ref)
		switch child.Kind {
		case resolve.TargetColumn:
			pairs = append(pairs, pair{
				key:  child.ResponseKey(),
				expr: frag(qualify(alias, child.Column)),
			})
		case resolve.TargetRelationship:
			expr, err := g.relationshipExpr(child, alias, ctx)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, pair{key: child.ResponseKey(), expr: expr})
		case resolve.TargetAggregateRoot:
			expr, err := g.aggregateJSONExpr(child, alias)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, pair{key: child.ResponseKey(), expr: expr})
		default:
			return nil, &graerr.GenError{
				Kind:    graerr.GenInvalidArgument,
				Name:    child.Name,
				Message: fmt.Sprintf("field %q cannot be selected here", child.Name),
			}
		}
	}
	return pairs, nil
}

func (g *generator) relationshipExpr(n *resolve.ResolvedNode, parentAlias string, ctx *selCtx) (fragment, error) {
	if n.Rel == nil {
		return fragment{}, &graerr.GenError{
			Kind:    graerr.GenInvalidArgument,
			Name:    n.Name,
			Message: fmt.Sprintf("field %q resolved without a relationship", n.Name),
		}
	}
	if n.Rel.Cardinality == schema.BelongsTo {
		return g.belongsToExpr(n, parentAlias, ctx)
	}
	return g.jsonListExpr(n, parentAlias)
}

// belongsToExpr joins the singular target onto the enclosing select and
// shapes it as a json object.
func (g *generator) belongsToExpr(n *resolve.ResolvedNode, parentAlias string, ctx *selCtx) (fragment, error) {
	rel := n.Rel
	alias := g.nextAlias()

	on := make([]fragment, 0, len(rel.TargetColumns)+1)
	for i, tc := range rel.TargetColumns {
		on = append(on, frag(qualify(alias, tc)+" = "+qualify(parentAlias, rel.SourceColumns[i])))
	}
	if whereArg, ok := n.Arg("where"); ok {
		pred, err := g.wherePred(whereArg, alias, n.Table)
		if err != nil {
			return fragment{}, err
		}
		if pred != nil {
			f, err := fromSqlizer(pred)
			if err != nil {
				return fragment{}, err
			}
			on = append(on, f)
		}
	}

	join := joinFragments(on, " AND ")
	ctx.joins = append(ctx.joins, frag(
		"LEFT JOIN "+QuoteTable(n.Table)+" AS "+QuoteIdent(alias)+" ON "+join.sql,
		join.args...,
	))

	pairs, err := g.fieldPairs(n, alias, ctx)
	if err != nil {
		return fragment{}, err
	}
	return g.jsonObject(pairs), nil
}

// jsonObject renders json_build_object over key/expression pairs.
func (g *generator) jsonObject(pairs []pair) fragment {
	parts := make([]fragment, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, frag("'"+p.key+"', "+p.expr.sql, p.expr.args...))
	}
	inner := joinFragments(parts, ", ")
	return frag("json_build_object("+inner.sql+")", inner.args...)
}

// jsonListExpr compiles a list selection into a correlated subselect
// aggregating rows as a json array. With a nil relationship (top-level
// composite roots) no correlation predicate is emitted.
func (g *generator) jsonListExpr(n *resolve.ResolvedNode, parentAlias string) (fragment, error) {
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
	pairs, err := g.fieldPairs(n, alias, ctx)
	if err != nil {
		return fragment{}, err
	}
	obj := g.jsonObject(pairs)

	out := fragment{}
	out.sql = "coalesce((SELECT json_agg(" + obj.sql + ") FROM (" + base.sql + ") AS " + QuoteIdent(alias)
	out.args = append(out.args, obj.args...)
	out.args = append(out.args, base.args...)
	for _, j := range ctx.joins {
		out.sql += " " + j.sql
		out.args = append(out.args, j.args...)
	}
	out.sql += "), '[]')"
	return out, nil
}

// correlation builds the predicates tying a child selection's rows to its
// parent row. ManyToMany routes through the join table with EXISTS.
func (g *generator) correlation(rel *schema.Relationship, parentAlias, alias string) ([]fragment, error) {
	if rel == nil {
		return nil, nil
	}
	if rel.Cardinality == schema.ManyToMany {
		if rel.JoinTable == nil {
			return nil, &graerr.GenError{
				Kind:    graerr.GenInvalidArgument,
				Message: "many-to-many relationship without a join table",
			}
		}
		jt := g.nextAlias()
		preds := make([]string, 0, len(rel.JoinSourceColumns)+len(rel.JoinTargetColumns))
		for i, jc := range rel.JoinSourceColumns {
			preds = append(preds, qualify(jt, jc)+" = "+qualify(parentAlias, rel.SourceColumns[i]))
		}
		for i, jc := range rel.JoinTargetColumns {
			preds = append(preds, qualify(jt, jc)+" = "+qualify(alias, rel.TargetColumns[i]))
		}
		return []fragment{frag(
			"EXISTS (SELECT 1 FROM " + QuoteTable(*rel.JoinTable) + " AS " + QuoteIdent(jt) +
				" WHERE " + strings.Join(preds, " AND ") + ")",
		)}, nil
	}

	corr := make([]fragment, 0, len(rel.TargetColumns))
	for i, tc := range rel.TargetColumns {
		corr = append(corr, frag(qualify(alias, tc)+" = "+qualify(parentAlias, rel.SourceColumns[i])))
	}
	return corr, nil
}

// baseSubquery builds the filtered, ordered, paginated row source a list or
// aggregate selection draws from. Aggregate siblings reuse it wholesale so
// both views share one predicate set.
func (g *generator) baseSubquery(n *resolve.ResolvedNode, table schema.Table, alias string, corr []fragment) (fragment, error) {
	out := frag("SELECT * FROM " + QuoteTable(table) + " AS " + QuoteIdent(alias))

	where := append([]fragment{}, corr...)
	pred, err := g.selectionPred(n, alias, table)
	if err != nil {
		return fragment{}, err
	}
	if pred != nil {
		f, err := fromSqlizer(pred)
		if err != nil {
			return fragment{}, err
		}
		where = append(where, f)
	}
	if len(where) > 0 {
		combined := joinFragments(where, " AND ")
		out.sql += " WHERE " + combined.sql
		out.args = append(out.args, combined.args...)
	}

	order, err := g.orderByClause(n, alias)
	if err != nil {
		return fragment{}, err
	}
	out.sql += order

	page, err := g.paginationClause(n)
	if err != nil {
		return fragment{}, err
	}
	out.sql += page.sql
	out.args = append(out.args, page.args...)
	return out, nil
}

// orderByClause renders the order_by argument as a multi-key ORDER BY,
// preserving the given key precedence.
func (g *generator) orderByClause(n *resolve.ResolvedNode, alias string) (string, error) {
	v, ok := n.Arg("order_by")
	if !ok {
		return "", nil
	}
	if v.Kind == gqlparse.ValueVar {
		return g.varOrderBy(v.Str, alias)
	}
	entries := v.List
	if v.Kind == gqlparse.ValueObject {
		entries = []gqlparse.Value{v}
	}

	var keys []string
	for _, entry := range entries {
		if entry.Kind != gqlparse.ValueObject {
			return "", &graerr.GenError{
				Kind:    graerr.GenInvalidArgument,
				Name:    "order_by",
				Message: "order_by entries must be objects of column: direction",
			}
		}
		for _, field := range entry.Fields {
			dir, err := orderDirection(field.Value)
			if err != nil {
				return "", err
			}
			keys = append(keys, qualify(alias, field.Name)+" "+dir)
		}
	}
	if len(keys) == 0 {
		return "", nil
	}
	return " ORDER BY " + strings.Join(keys, ", "), nil
}

// varOrderBy renders an order_by bound through a variable: a list of
// objects, or a single object. Keys within one entry sort alphabetically
// since JSON decoding loses the source key order.
func (g *generator) varOrderBy(name, alias string) (string, error) {
	val, ok := g.vars[name]
	if !ok {
		return "", &graerr.GenError{Kind: graerr.GenMissingVariable, Name: name}
	}

	var entries []map[string]any
	switch t := val.(type) {
	case map[string]any:
		entries = []map[string]any{t}
	case []any:
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return "", &graerr.GenError{
					Kind:    graerr.GenVariableTypeMismatch,
					Name:    name,
					Message: "order_by entries must be objects of column: direction",
				}
			}
			entries = append(entries, m)
		}
	default:
		return "", &graerr.GenError{
			Kind:    graerr.GenVariableTypeMismatch,
			Name:    name,
			Message: "order_by entries must be objects of column: direction",
		}
	}

	var keys []string
	for _, entry := range entries {
		cols := make([]string, 0, len(entry))
		for col := range entry {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			dirName, _ := entry[col].(string)
			dir, ok := directionSQL(dirName)
			if !ok {
				return "", &graerr.GenError{
					Kind:    graerr.GenInvalidArgument,
					Name:    "order_by",
					Message: fmt.Sprintf("unknown sort direction %q", entry[col]),
				}
			}
			keys = append(keys, qualify(alias, col)+" "+dir)
		}
	}
	if len(keys) == 0 {
		return "", nil
	}
	return " ORDER BY " + strings.Join(keys, ", "), nil
}

func orderDirection(v gqlparse.Value) (string, error) {
	name := v.Str
	if v.Kind != gqlparse.ValueEnum && v.Kind != gqlparse.ValueString {
		name = ""
	}
	if dir, ok := directionSQL(name); ok {
		return dir, nil
	}
	return "", &graerr.GenError{
		Kind:    graerr.GenInvalidArgument,
		Name:    "order_by",
		Message: fmt.Sprintf("unknown sort direction %q", v.Str),
	}
}

func directionSQL(name string) (string, bool) {
	switch name {
	case "asc":
		return "ASC", true
	case "desc":
		return "DESC", true
	case "asc_nulls_first":
		return "ASC NULLS FIRST", true
	case "asc_nulls_last":
		return "ASC NULLS LAST", true
	case "desc_nulls_first":
		return "DESC NULLS FIRST", true
	case "desc_nulls_last":
		return "DESC NULLS LAST", true
	}
	return "", false
}

// paginationClause renders LIMIT/OFFSET from either the canonical
// limit/offset arguments or the configured relay-style aliases. Mixing the
// two styles in one selection is rejected.
func (g *generator) paginationClause(n *resolve.ResolvedNode) (fragment, error) {
	var limit, offset *gqlparse.Value
	canonical, aliased := false, false

	for i, arg := range n.Arguments {
		switch arg.Name {
		case "limit":
			canonical = true
			limit = &n.Arguments[i].Value
		case "offset":
			canonical = true
			offset = &n.Arguments[i].Value
		default:
			target, ok := g.opts.PaginationAliases[arg.Name]
			if !ok {
				continue
			}
			aliased = true
			switch target {
			case "limit":
				limit = &n.Arguments[i].Value
			case "offset":
				offset = &n.Arguments[i].Value
			}
		}
	}
	if canonical && aliased {
		return fragment{}, &graerr.GenError{
			Kind:    graerr.GenConflictingPagination,
			Message: "limit/offset cannot be combined with relay-style arguments",
		}
	}

	out := fragment{}
	if limit != nil {
		v, err := g.intArg("limit", *limit)
		if err != nil {
			return fragment{}, err
		}
		out.sql += " LIMIT ?"
		out.args = append(out.args, v)
	}
	if offset != nil {
		v, err := g.intArg("offset", *offset)
		if err != nil {
			return fragment{}, err
		}
		out.sql += " OFFSET ?"
		out.args = append(out.args, v)
	}
	return out, nil
}

// rowSelect compiles a single root table selection into a plain
// row-returning SELECT.
func (g *generator) rowSelect(n *resolve.ResolvedNode) (fragment, error) {
	alias := g.nextAlias()

	ctx := &selCtx{}
	pairs, err := g.fieldPairs(n, alias, ctx)
	if err != nil {
		return fragment{}, err
	}

	out := fragment{sql: "SELECT "}
	for i, p := range pairs {
		if i > 0 {
			out.sql += ", "
		}
		out.sql += p.expr.sql + " AS " + QuoteIdent(p.key)
		out.args = append(out.args, p.expr.args...)
	}
	out.sql += " FROM " + QuoteTable(n.Table) + " AS " + QuoteIdent(alias)
	for _, j := range ctx.joins {
		out.sql += " " + j.sql
		out.args = append(out.args, j.args...)
	}

	pred, err := g.selectionPred(n, alias, n.Table)
	if err != nil {
		return fragment{}, err
	}
	if pred != nil {
		f, err := fromSqlizer(pred)
		if err != nil {
			return fragment{}, err
		}
		out.sql += " WHERE " + f.sql
		out.args = append(out.args, f.args...)
	}

	order, err := g.orderByClause(n, alias)
	if err != nil {
		return fragment{}, err
	}
	out.sql += order

	page, err := g.paginationClause(n)
	if err != nil {
		return fragment{}, err
	}
	out.sql += page.sql
	out.args = append(out.args, page.args...)
	return out, nil
}
