package resolve

import (
	"context"
	"fmt"

	graerr "github.com/simple-platform/grasql-sub001/gqlerrors"
	"github.com/simple-platform/grasql-sub001/schema"
)

// Lookup helpers around the host resolver capability. Every call site goes
// through a bounded single-flight cache, and the callback itself runs behind
// a recover barrier so a throwing host never corrupts engine state: the
// failing key's slot stays unpopulated and the failure is replayed to every
// waiter, any of whom may retry.

const (
	keyTable        = "t"
	keyRelationship = "r"
	keyColumns      = "c"
	keyAttribute    = "a"
)

func cacheKey(parts ...string) string {
	key := parts[0]
	for _, p := range parts[1:] {
		key += "\x00" + p
	}
	return key
}

func resolverFailed(field string, cause error) error {
	return &graerr.SchemaError{Kind: graerr.SchemaResolverFailed, Field: field, Cause: cause}
}

// callGuarded invokes fn with panics converted into errors.
func callGuarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	return fn()
}

func (e *Engine) lookupTable(ctx context.Context, name string, rctx any) (schema.Table, error) {
	key := cacheKey(keyTable, name)
	if t, ok := e.tables.Get(key); ok {
		e.metrics.ResolveCacheLookup(ctx, "table", true)
		return t, nil
	}
	e.metrics.ResolveCacheLookup(ctx, "table", false)

	v, err, shared := e.group.Do(key, func() (any, error) {
		if t, ok := e.tables.Get(key); ok {
			return t, nil
		}
		var (
			table schema.Table
			found bool
		)
		callErr := callGuarded(func() error {
			var err error
			table, found, err = e.resolver.ResolveTable(name, rctx)
			return err
		})
		e.metrics.ResolverCall(ctx, "resolve_table", callErr != nil)
		if callErr != nil {
			return nil, resolverFailed(name, callErr)
		}
		if !found {
			return nil, &graerr.SchemaError{Kind: graerr.SchemaUnresolvedField, Field: name}
		}
		e.tables.Add(key, table)
		return table, nil
	})
	if shared {
		e.metrics.SharedFlight(ctx, "table")
	}
	if err != nil {
		return schema.Table{}, err
	}
	return v.(schema.Table), nil
}

func (e *Engine) lookupRelationship(ctx context.Context, field string, parent schema.Table, rctx any) (schema.Relationship, bool, error) {
	key := cacheKey(keyRelationship, parent.Key(), field)
	if rel, ok := e.rels.Get(key); ok {
		e.metrics.ResolveCacheLookup(ctx, "relationship", true)
		return rel, true, nil
	}
	e.metrics.ResolveCacheLookup(ctx, "relationship", false)

	v, err, shared := e.group.Do(key, func() (any, error) {
		if rel, ok := e.rels.Get(key); ok {
			return rel, nil
		}
		var (
			rel   schema.Relationship
			found bool
		)
		callErr := callGuarded(func() error {
			var err error
			rel, found, err = e.resolver.ResolveRelationship(field, parent, rctx)
			return err
		})
		e.metrics.ResolverCall(ctx, "resolve_relationship", callErr != nil)
		if callErr != nil {
			return nil, resolverFailed(field, callErr)
		}
		if !found {
			// Absence is an ordinary outcome here: the caller falls back to
			// column binding. Not cached, and not an error.
			return nil, errRelationshipNotFound
		}
		if err := validRelationship(rel); err != nil {
			return nil, resolverFailed(field, err)
		}
		e.rels.Add(key, rel)
		return rel, nil
	})
	if shared {
		e.metrics.SharedFlight(ctx, "relationship")
	}
	if err == errRelationshipNotFound {
		return schema.Relationship{}, false, nil
	}
	if err != nil {
		return schema.Relationship{}, false, err
	}
	return v.(schema.Relationship), true, nil
}

var errRelationshipNotFound = fmt.Errorf("relationship not found")

// validRelationship rejects column mappings whose halves do not pair up,
// before a malformed host answer can reach the generator.
func validRelationship(rel schema.Relationship) error {
	if len(rel.SourceColumns) == 0 || len(rel.SourceColumns) != len(rel.TargetColumns) {
		return fmt.Errorf("relationship maps %d source columns to %d target columns",
			len(rel.SourceColumns), len(rel.TargetColumns))
	}
	if rel.Cardinality == schema.ManyToMany {
		if rel.JoinTable == nil {
			return fmt.Errorf("many-to-many relationship without a join table")
		}
		if len(rel.JoinSourceColumns) != len(rel.SourceColumns) ||
			len(rel.JoinTargetColumns) != len(rel.TargetColumns) {
			return fmt.Errorf("join table maps %d/%d columns against %d source and %d target",
				len(rel.JoinSourceColumns), len(rel.JoinTargetColumns),
				len(rel.SourceColumns), len(rel.TargetColumns))
		}
	}
	return nil
}

func (e *Engine) lookupColumns(ctx context.Context, table schema.Table, rctx any) (map[string]struct{}, error) {
	key := cacheKey(keyColumns, table.Key())
	if cols, ok := e.columns.Get(key); ok {
		e.metrics.ResolveCacheLookup(ctx, "columns", true)
		return cols, nil
	}
	e.metrics.ResolveCacheLookup(ctx, "columns", false)

	v, err, shared := e.group.Do(key, func() (any, error) {
		if cols, ok := e.columns.Get(key); ok {
			return cols, nil
		}
		var names []string
		callErr := callGuarded(func() error {
			var err error
			names, err = e.resolver.ResolveColumns(table, rctx)
			return err
		})
		e.metrics.ResolverCall(ctx, "resolve_columns", callErr != nil)
		if callErr != nil {
			return nil, resolverFailed(table.Name, callErr)
		}
		cols := make(map[string]struct{}, len(names))
		for _, n := range names {
			cols[n] = struct{}{}
		}
		e.columns.Add(key, cols)
		return cols, nil
	})
	if shared {
		e.metrics.SharedFlight(ctx, "columns")
	}
	if err != nil {
		return nil, err
	}
	return v.(map[string]struct{}), nil
}

func (e *Engine) lookupAttribute(ctx context.Context, attr schema.ColumnAttribute, column string, table schema.Table, rctx any) (any, error) {
	key := cacheKey(keyAttribute, table.Key(), column, string(attr))
	if v, ok := e.attrs.Get(key); ok {
		e.metrics.ResolveCacheLookup(ctx, "attribute", true)
		return v, nil
	}
	e.metrics.ResolveCacheLookup(ctx, "attribute", false)

	v, err, shared := e.group.Do(key, func() (any, error) {
		if v, ok := e.attrs.Get(key); ok {
			return v, nil
		}
		var value any
		callErr := callGuarded(func() error {
			var err error
			value, err = e.resolver.ResolveColumnAttribute(attr, column, table, rctx)
			return err
		})
		e.metrics.ResolverCall(ctx, "resolve_column_attribute", callErr != nil)
		if callErr != nil {
			return nil, resolverFailed(column, callErr)
		}
		e.attrs.Add(key, value)
		return value, nil
	})
	if shared {
		e.metrics.SharedFlight(ctx, "attribute")
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// fetchColumn pulls the SQL type for a column, and when withDefaults is set
// also the required flag and default value (needed only for inserts).
func (e *Engine) fetchColumn(ctx context.Context, table schema.Table, column string, withDefaults bool, rctx any) (schema.Column, error) {
	col := schema.Column{Name: column}

	raw, err := e.lookupAttribute(ctx, schema.AttrSQLType, column, table, rctx)
	if err != nil {
		return schema.Column{}, err
	}
	switch t := raw.(type) {
	case string:
		col.Type = schema.ParseColumnType(t)
	case schema.ColumnType:
		col.Type = t
	}

	if withDefaults {
		rawReq, err := e.lookupAttribute(ctx, schema.AttrRequired, column, table, rctx)
		if err != nil {
			return schema.Column{}, err
		}
		if req, ok := rawReq.(bool); ok {
			col.Required = req
		}
		rawDef, err := e.lookupAttribute(ctx, schema.AttrDefault, column, table, rctx)
		if err != nil {
			return schema.Column{}, err
		}
		col.Default = rawDef
	}
	return col, nil
}
