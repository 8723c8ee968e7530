package sqlgen

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	graerr "github.com/simple-platform/grasql-sub001/gqlerrors"
	"github.com/simple-platform/grasql-sub001/internal/gqlparse"
	"github.com/simple-platform/grasql-sub001/internal/resolve"
)

func (g *generator) mutationStatement(n *resolve.ResolvedNode) (fragment, bool, error) {
	returning, wantsAffected, err := g.returningClause(n)
	if err != nil {
		return fragment{}, false, err
	}

	var f fragment
	switch n.Mutation {
	case resolve.MutationInsert:
		f, err = g.insertStatement(n, returning)
	case resolve.MutationUpdate:
		f, err = g.updateStatement(n, returning)
	case resolve.MutationDelete:
		f, err = g.deleteStatement(n, returning)
	default:
		err = &graerr.GenError{
			Kind:    graerr.GenInvalidArgument,
			Name:    n.Name,
			Message: fmt.Sprintf("field %q is not a mutation root", n.Name),
		}
	}
	if err != nil {
		return fragment{}, false, err
	}
	return f, wantsAffected, nil
}

// returningClause renders the RETURNING list from the mutation's `returning`
// sub-selection, and reports whether affected_rows was requested.
func (g *generator) returningClause(n *resolve.ResolvedNode) (string, bool, error) {
	clause := ""
	wantsAffected := false
	for _, ref := range n.Children {
		child := g.plan.Node(ref)
		switch child.Kind {
		case resolve.TargetAffectedRows:
			wantsAffected = true
		case resolve.TargetReturning:
			for i, colRef := range child.Children {
				col := g.plan.Node(colRef)
				if col.Kind != resolve.TargetColumn {
					return "", false, &graerr.GenError{
						Kind:    graerr.GenInvalidArgument,
						Name:    col.Name,
						Message: fmt.Sprintf("returning supports columns only, got %q", col.Name),
					}
				}
				if i == 0 {
					clause = "RETURNING "
				} else {
					clause += ", "
				}
				clause += QuoteIdent(col.Column) + " AS " + QuoteIdent(col.ResponseKey())
			}
		}
	}
	return clause, wantsAffected, nil
}

// insertStatement compiles an `objects` list into one multi-row
// parameterized INSERT. The column list is the first-seen-order union across
// all rows; a row missing a column falls back to the column default.
func (g *generator) insertStatement(n *resolve.ResolvedNode, returning string) (fragment, error) {
	objectsArg, ok := n.Arg("objects")
	if !ok {
		return fragment{}, &graerr.GenError{
			Kind:    graerr.GenInvalidArgument,
			Name:    n.Name,
			Message: "insert requires an objects argument",
		}
	}
	rows := objectsArg.List
	if objectsArg.Kind == gqlparse.ValueObject {
		rows = []gqlparse.Value{objectsArg}
	}
	if len(rows) == 0 {
		return fragment{}, &graerr.GenError{
			Kind:    graerr.GenInvalidArgument,
			Name:    n.Name,
			Message: "insert requires at least one object",
		}
	}

	var columns []string
	seen := make(map[string]struct{})
	for _, row := range rows {
		for _, field := range row.Fields {
			if _, dup := seen[field.Name]; !dup {
				seen[field.Name] = struct{}{}
				columns = append(columns, field.Name)
			}
		}
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdent(c)
	}
	builder := sq.Insert(QuoteTable(n.Table)).Columns(quoted...)

	for _, row := range rows {
		vals := make([]any, 0, len(columns))
		for _, col := range columns {
			v, present := row.Field(col)
			if !present {
				vals = append(vals, sq.Expr("DEFAULT"))
				continue
			}
			val, err := g.resolveValue(v, g.plan.ColumnType(n.Table, col))
			if err != nil {
				return fragment{}, err
			}
			vals = append(vals, val)
		}
		builder = builder.Values(vals...)
	}

	if returning != "" {
		builder = builder.Suffix(returning)
	}
	return fromSqlizer(builder)
}

func (g *generator) updateStatement(n *resolve.ResolvedNode, returning string) (fragment, error) {
	setArg, ok := n.Arg("_set")
	if !ok || setArg.Kind != gqlparse.ValueObject || len(setArg.Fields) == 0 {
		return fragment{}, &graerr.GenError{
			Kind:    graerr.GenInvalidArgument,
			Name:    n.Name,
			Message: "update requires a non-empty _set argument",
		}
	}

	builder := sq.Update(QuoteTable(n.Table))
	for _, field := range setArg.Fields {
		val, err := g.resolveValue(field.Value, g.plan.ColumnType(n.Table, field.Name))
		if err != nil {
			return fragment{}, err
		}
		builder = builder.Set(QuoteIdent(field.Name), val)
	}

	if whereArg, ok := n.Arg("where"); ok {
		pred, err := g.wherePred(whereArg, "", n.Table)
		if err != nil {
			return fragment{}, err
		}
		if pred != nil {
			builder = builder.Where(pred)
		}
	}
	if returning != "" {
		builder = builder.Suffix(returning)
	}
	return fromSqlizer(builder)
}

func (g *generator) deleteStatement(n *resolve.ResolvedNode, returning string) (fragment, error) {
	builder := sq.Delete(QuoteTable(n.Table))
	if whereArg, ok := n.Arg("where"); ok {
		pred, err := g.wherePred(whereArg, "", n.Table)
		if err != nil {
			return fragment{}, err
		}
		if pred != nil {
			builder = builder.Where(pred)
		}
	}
	if returning != "" {
		builder = builder.Suffix(returning)
	}
	return fromSqlizer(builder)
}
