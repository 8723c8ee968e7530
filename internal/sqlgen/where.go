package sqlgen

import (
	"sort"

	sq "github.com/Masterminds/squirrel"

	graerr "github.com/simple-platform/grasql-sub001/gqlerrors"
	"github.com/simple-platform/grasql-sub001/internal/gqlparse"
	"github.com/simple-platform/grasql-sub001/internal/resolve"
	"github.com/simple-platform/grasql-sub001/schema"
)

// notPred negates a predicate with explicit parentheses.
type notPred struct {
	inner sq.Sqlizer
}

func (n notPred) ToSql() (string, []any, error) {
	s, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + s + ")", args, nil
}

// wherePred compiles a `where` argument value into a predicate over the
// aliased table. Returns nil when the value holds no conditions. A variable
// reference is materialized from the bindings and compiled the same way.
func (g *generator) wherePred(v gqlparse.Value, alias string, table schema.Table) (sq.Sqlizer, error) {
	if v.Kind == gqlparse.ValueVar {
		return g.varWherePred(v.Str, alias, table)
	}
	if v.Kind != gqlparse.ValueObject || len(v.Fields) == 0 {
		return nil, nil
	}

	conj := make(sq.And, 0, len(v.Fields))
	for _, field := range v.Fields {
		switch field.Name {
		case "_and", "_or":
			items := field.Value.List
			if field.Value.Kind == gqlparse.ValueObject {
				items = []gqlparse.Value{field.Value}
			}
			parts := make([]sq.Sqlizer, 0, len(items))
			for _, item := range items {
				p, err := g.wherePred(item, alias, table)
				if err != nil {
					return nil, err
				}
				if p != nil {
					parts = append(parts, p)
				}
			}
			if len(parts) == 0 {
				continue
			}
			if field.Name == "_and" {
				conj = append(conj, sq.And(parts))
			} else {
				conj = append(conj, sq.Or(parts))
			}
		case "_not":
			p, err := g.wherePred(field.Value, alias, table)
			if err != nil {
				return nil, err
			}
			if p != nil {
				conj = append(conj, notPred{inner: p})
			}
		default:
			p, err := g.columnPred(field.Name, field.Value, alias, table)
			if err != nil {
				return nil, err
			}
			if p != nil {
				conj = append(conj, p)
			}
		}
	}
	return unwrap(conj), nil
}

// columnPred compiles the operator object attached to one column. A bare
// scalar is shorthand for equality.
func (g *generator) columnPred(column string, v gqlparse.Value, alias string, table schema.Table) (sq.Sqlizer, error) {
	ref := qualify(alias, column)
	colType := g.plan.ColumnType(table, column)

	if v.Kind != gqlparse.ValueObject {
		val, err := g.resolveValue(v, colType)
		if err != nil {
			return nil, err
		}
		return sq.Eq{ref: val}, nil
	}

	conj := make(sq.And, 0, len(v.Fields))
	for _, op := range v.Fields {
		pred, err := g.operatorPred(op.Name, ref, op.Value, colType)
		if err != nil {
			return nil, err
		}
		conj = append(conj, pred)
	}
	return unwrap(conj), nil
}

// unwrap strips the redundant parentheses a one-element conjunction would
// otherwise emit.
func unwrap(conj sq.And) sq.Sqlizer {
	switch len(conj) {
	case 0:
		return nil
	case 1:
		return conj[0]
	}
	return conj
}

func (g *generator) operatorPred(op, ref string, v gqlparse.Value, colType schema.ColumnType) (sq.Sqlizer, error) {
	if op == "_is_null" {
		isNull, err := g.boolArg(op, v)
		if err != nil {
			return nil, err
		}
		if isNull {
			return sq.Eq{ref: nil}, nil
		}
		return sq.NotEq{ref: nil}, nil
	}

	val, err := g.resolveValue(v, colType)
	if err != nil {
		return nil, err
	}
	return opPred(op, ref, val)
}

func opPred(op, ref string, val any) (sq.Sqlizer, error) {
	switch op {
	case "_eq":
		return sq.Eq{ref: val}, nil
	case "_neq":
		return sq.NotEq{ref: val}, nil
	case "_gt":
		return sq.Gt{ref: val}, nil
	case "_gte":
		return sq.GtOrEq{ref: val}, nil
	case "_lt":
		return sq.Lt{ref: val}, nil
	case "_lte":
		return sq.LtOrEq{ref: val}, nil
	case "_like":
		return sq.Like{ref: val}, nil
	case "_ilike":
		return sq.ILike{ref: val}, nil
	case "_in":
		return sq.Eq{ref: toList(val)}, nil
	case "_nin":
		return sq.NotEq{ref: toList(val)}, nil
	}
	return nil, &graerr.GenError{Kind: graerr.GenUnknownOperator, Name: op}
}

func toList(val any) []any {
	if list, ok := val.([]any); ok {
		return list
	}
	return []any{val}
}

// varWherePred compiles a filter bound through a variable. The binding must
// be an object; anything else would silently widen the statement to every
// row, which is never acceptable for a filter.
func (g *generator) varWherePred(name, alias string, table schema.Table) (sq.Sqlizer, error) {
	val, ok := g.vars[name]
	if !ok {
		return nil, &graerr.GenError{Kind: graerr.GenMissingVariable, Name: name}
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, &graerr.GenError{
			Kind:    graerr.GenVariableTypeMismatch,
			Name:    name,
			Message: "filter variables must be objects",
		}
	}
	return g.mapPred(name, m, alias, table)
}

// mapPred mirrors wherePred over a JSON-decoded filter object. Keys are
// walked in sorted order because decoding loses the source order an inline
// object keeps, and predicate and parameter order must stay deterministic.
func (g *generator) mapPred(varName string, m map[string]any, alias string, table schema.Table) (sq.Sqlizer, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conj := make(sq.And, 0, len(keys))
	for _, k := range keys {
		switch k {
		case "_and", "_or":
			items, err := filterList(varName, m[k])
			if err != nil {
				return nil, err
			}
			parts := make([]sq.Sqlizer, 0, len(items))
			for _, item := range items {
				p, err := g.mapPred(varName, item, alias, table)
				if err != nil {
					return nil, err
				}
				if p != nil {
					parts = append(parts, p)
				}
			}
			if len(parts) == 0 {
				continue
			}
			if k == "_and" {
				conj = append(conj, sq.And(parts))
			} else {
				conj = append(conj, sq.Or(parts))
			}
		case "_not":
			inner, ok := m[k].(map[string]any)
			if !ok {
				return nil, &graerr.GenError{
					Kind:    graerr.GenVariableTypeMismatch,
					Name:    varName,
					Message: "_not takes an object",
				}
			}
			p, err := g.mapPred(varName, inner, alias, table)
			if err != nil {
				return nil, err
			}
			if p != nil {
				conj = append(conj, notPred{inner: p})
			}
		default:
			p, err := g.mapColumnPred(varName, k, m[k], alias, table)
			if err != nil {
				return nil, err
			}
			if p != nil {
				conj = append(conj, p)
			}
		}
	}
	return unwrap(conj), nil
}

// filterList accepts a list of filter objects, or a single object where a
// list is expected.
func filterList(varName string, v any) ([]map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, &graerr.GenError{
					Kind:    graerr.GenVariableTypeMismatch,
					Name:    varName,
					Message: "boolean combinators take objects",
				}
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, &graerr.GenError{
		Kind:    graerr.GenVariableTypeMismatch,
		Name:    varName,
		Message: "boolean combinators take objects",
	}
}

func (g *generator) mapColumnPred(varName, column string, v any, alias string, table schema.Table) (sq.Sqlizer, error) {
	ref := qualify(alias, column)
	colType := g.plan.ColumnType(table, column)

	m, ok := v.(map[string]any)
	if !ok {
		if err := checkVariableType(varName, v, colType); err != nil {
			return nil, err
		}
		return sq.Eq{ref: v}, nil
	}

	ops := make([]string, 0, len(m))
	for op := range m {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	conj := make(sq.And, 0, len(ops))
	for _, op := range ops {
		if op == "_is_null" {
			isNull, ok := m[op].(bool)
			if !ok {
				return nil, &graerr.GenError{
					Kind:    graerr.GenInvalidArgument,
					Name:    op,
					Message: "operator \"_is_null\" takes a boolean operand",
				}
			}
			if isNull {
				conj = append(conj, sq.Eq{ref: nil})
			} else {
				conj = append(conj, sq.NotEq{ref: nil})
			}
			continue
		}
		if err := checkVariableType(varName, m[op], colType); err != nil {
			return nil, err
		}
		pred, err := opPred(op, ref, m[op])
		if err != nil {
			return nil, err
		}
		conj = append(conj, pred)
	}
	return unwrap(conj), nil
}

// selectionPred combines the where argument and any direct equality
// arguments (primary-key style lookups) of a selection into one predicate.
func (g *generator) selectionPred(n *resolve.ResolvedNode, alias string, table schema.Table) (sq.Sqlizer, error) {
	conj := sq.And{}
	for _, arg := range n.Arguments {
		switch arg.Name {
		case "where":
			p, err := g.wherePred(arg.Value, alias, table)
			if err != nil {
				return nil, err
			}
			if p != nil {
				conj = append(conj, p)
			}
		case "order_by", "limit", "offset", "objects", "_set":
		default:
			if _, isAlias := g.opts.PaginationAliases[arg.Name]; isAlias {
				continue
			}
			val, err := g.resolveValue(arg.Value, g.plan.ColumnType(table, arg.Name))
			if err != nil {
				return nil, err
			}
			conj = append(conj, sq.Eq{qualify(alias, arg.Name): val})
		}
	}
	return unwrap(conj), nil
}
