package grasql_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	grasql "github.com/simple-platform/grasql-sub001"
	"github.com/simple-platform/grasql-sub001/gqlerrors"
	"github.com/simple-platform/grasql-sub001/schema"
)

var (
	usersTable = schema.Table{Schema: "public", Name: "users"}
	postsTable = schema.Table{Schema: "public", Name: "posts"}
)

// testResolver is an in-memory host resolver with call counters.
type testResolver struct {
	tableCalls atomic.Int64
	panicOn    string
}

func (r *testResolver) funcs() schema.ResolverFuncs {
	columns := map[string][]string{
		"users": {"id", "name", "email"},
		"posts": {"id", "title", "user_id"},
	}
	types := map[string]string{
		"id": "integer", "name": "text", "email": "text",
		"title": "text", "user_id": "integer",
	}
	return schema.ResolverFuncs{
		ResolveTable: func(name string, _ any) (schema.Table, bool, error) {
			r.tableCalls.Add(1)
			if name == r.panicOn {
				panic("schema registry unavailable")
			}
			switch name {
			case "users", "user":
				return usersTable, true, nil
			case "posts":
				return postsTable, true, nil
			}
			return schema.Table{}, false, nil
		},
		ResolveRelationship: func(field string, parent schema.Table, _ any) (schema.Relationship, bool, error) {
			if parent.Name == "users" && field == "posts" {
				return schema.Relationship{
					Source: usersTable, Target: postsTable,
					SourceColumns: []string{"id"}, TargetColumns: []string{"user_id"},
					Cardinality: schema.HasMany,
				}, true, nil
			}
			return schema.Relationship{}, false, nil
		},
		ResolveColumns: func(table schema.Table, _ any) ([]string, error) {
			cols, ok := columns[table.Name]
			if !ok {
				return nil, fmt.Errorf("unknown table %s", table.Key())
			}
			return cols, nil
		},
		ResolveColumnAttribute: func(attr schema.ColumnAttribute, column string, _ schema.Table, _ any) (any, error) {
			switch attr {
			case schema.AttrSQLType:
				return types[column], nil
			case schema.AttrRequired:
				return column == "id", nil
			case schema.AttrDefault:
				return nil, nil
			}
			return nil, fmt.Errorf("unknown attribute %q", attr)
		},
	}
}

func testConfig(r *testResolver) grasql.Config {
	cfg := grasql.DefaultConfig()
	cfg.Resolver = r.funcs()
	return cfg
}

func TestPackageLevelRequiresInitialize(t *testing.T) {
	_, err := grasql.ParseQuery(context.Background(), "{ users { id } }")
	require.ErrorIs(t, err, gqlerrors.ErrNotInitialized)

	_, err = grasql.GenerateSQL(context.Background(), "{ users { id } }", nil, nil)
	require.ErrorIs(t, err, gqlerrors.ErrNotInitialized)
}

func TestSimpleSelection(t *testing.T) {
	e, err := grasql.New(testConfig(&testResolver{}))
	require.NoError(t, err)

	stmt, err := e.GenerateSQL(context.Background(), "{ users { id name } }", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "t0"."id" AS "id", "t0"."name" AS "name" FROM "public"."users" AS "t0"`, stmt.SQL)
	assert.Empty(t, stmt.Params)
}

func TestPrimaryKeyVariableLookup(t *testing.T) {
	e, err := grasql.New(testConfig(&testResolver{}))
	require.NoError(t, err)

	stmt, err := e.GenerateSQL(context.Background(),
		`query GetUser($id: ID!) { user(id: $id) { id name email } }`,
		map[string]any{"id": 123}, nil)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `WHERE "t0"."id" = $1`)
	require.Len(t, stmt.Params, 1)
	assert.Equal(t, 123, stmt.Params[0])
}

func TestNestedListSelection(t *testing.T) {
	e, err := grasql.New(testConfig(&testResolver{}))
	require.NoError(t, err)

	stmt, err := e.GenerateSQL(context.Background(),
		"{ users { id posts { title } } }", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "json_agg(")
	assert.Contains(t, stmt.SQL, `"t1"."user_id" = "t0"."id"`)
}

func TestAggregateSuffixIsConfigurable(t *testing.T) {
	e, err := grasql.New(testConfig(&testResolver{}))
	require.NoError(t, err)
	ctx := context.Background()

	stmt, err := e.GenerateSQL(ctx,
		"{ users_aggregate { aggregate { count } nodes { id } } }", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "count(*)")
	assert.Contains(t, stmt.SQL, "json_agg(")

	// A different suffix changes which field takes the aggregate path: the
	// default-suffixed field now misses table resolution entirely.
	cfg := testConfig(&testResolver{})
	cfg.AggregateFieldSuffix = "Agg"
	custom, err := grasql.New(cfg)
	require.NoError(t, err)

	stmt, err = custom.GenerateSQL(ctx,
		"{ usersAgg { aggregate { count } nodes { id } } }", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "count(*)")

	_, err = custom.GenerateSQL(ctx,
		"{ users_aggregate { aggregate { count } } }", nil, nil)
	var se *gqlerrors.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, gqlerrors.SchemaUnresolvedField, se.Kind)
}

func TestIncompleteResolverFailsInitialize(t *testing.T) {
	cfg := testConfig(&testResolver{})
	cfg.Resolver.ResolveColumns = nil

	_, err := grasql.New(cfg)
	var ce *gqlerrors.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, gqlerrors.ConfigIncompleteResolver, ce.Kind)
	assert.Equal(t, []string{"resolve_columns"}, ce.Missing)
}

func TestResolverPanicSurfacesCause(t *testing.T) {
	e, err := grasql.New(testConfig(&testResolver{panicOn: "users"}))
	require.NoError(t, err)

	_, err = e.GenerateSQL(context.Background(), "{ users { id } }", nil, nil)
	var se *gqlerrors.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, gqlerrors.SchemaResolverFailed, se.Kind)
	assert.Contains(t, err.Error(), "schema registry unavailable")
}

func TestParseIsIdempotent(t *testing.T) {
	e, err := grasql.New(testConfig(&testResolver{}))
	require.NoError(t, err)
	ctx := context.Background()
	const text = `{ users(where: {name: {_eq: "ada"}}) { id posts { title } } }`

	first, err := e.ParseQuery(ctx, text)
	require.NoError(t, err)
	second, err := e.ParseQuery(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, first.Handle, second.Handle)
	assert.Equal(t, grasql.OperationQuery, first.OperationKind)
	assert.False(t, first.Named)

	a, err := e.GenerateSQL(ctx, text, nil, nil)
	require.NoError(t, err)
	b, err := e.GenerateSQL(ctx, first.Handle, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, a.SQL, b.SQL)
	assert.Equal(t, a.Params, b.Params)
}

func TestExpiredHandleIsNotFound(t *testing.T) {
	cfg := testConfig(&testResolver{})
	cfg.CacheTTL = 20 * time.Millisecond
	e, err := grasql.New(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := e.ParseQuery(ctx, "{ users { id } }")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	_, ok := e.LookupQuery(res.Handle)
	assert.False(t, ok)
	_, err = e.GenerateSQL(ctx, res.Handle, nil, nil)
	require.ErrorIs(t, err, gqlerrors.ErrNotFound)

	// Raw text still compiles and re-issues the same content handle.
	again, err := e.ParseQuery(ctx, "{ users { id } }")
	require.NoError(t, err)
	assert.Equal(t, res.Handle, again.Handle)
}

func TestConcurrentCompilesShareResolverWork(t *testing.T) {
	r := &testResolver{}
	e, err := grasql.New(testConfig(r))
	require.NoError(t, err)

	const workers = 24
	var wg sync.WaitGroup
	sqls := make([]string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stmt, err := e.GenerateSQL(context.Background(), "{ users { id name } }", nil, nil)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			sqls[i] = stmt.SQL
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Equal(t, sqls[0], sqls[i])
	}
	// The table lookup for "users" collapses to one host call no matter how
	// many workers raced.
	assert.Equal(t, int64(1), r.tableCalls.Load())
}

func TestMutationEndToEnd(t *testing.T) {
	e, err := grasql.New(testConfig(&testResolver{}))
	require.NoError(t, err)

	stmt, err := e.GenerateSQL(context.Background(), `mutation {
		insert_users(objects: [{name: "ada", email: "ada@x"}]) {
			affected_rows
			returning { id }
		}
	}`, nil, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stmt.SQL, `INSERT INTO "public"."users"`), stmt.SQL)
	assert.Contains(t, stmt.SQL, `RETURNING "id" AS "id"`)
	assert.True(t, stmt.WantsAffectedRows)
	assert.Equal(t, []any{"ada", "ada@x"}, stmt.Params)
}

func TestReinitializeReplacesEngine(t *testing.T) {
	require.NoError(t, grasql.Initialize(testConfig(&testResolver{})))
	ctx := context.Background()

	res, err := grasql.ParseQuery(ctx, "{ users { id } }")
	require.NoError(t, err)
	require.NotEmpty(t, res.Handle)

	// The new engine has fresh caches, so the old handle no longer resolves
	// directly, while the same text compiles to the same handle.
	require.NoError(t, grasql.Initialize(testConfig(&testResolver{})))
	_, err = grasql.GenerateSQL(ctx, res.Handle, nil, nil)
	require.ErrorIs(t, err, gqlerrors.ErrNotFound)

	again, err := grasql.ParseQuery(ctx, "{ users { id } }")
	require.NoError(t, err)
	assert.Equal(t, res.Handle, again.Handle)
}

func TestConfigValidation(t *testing.T) {
	cfg := testConfig(&testResolver{})
	cfg.MaxCacheSize = 0
	_, err := grasql.New(cfg)
	var ce *gqlerrors.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, gqlerrors.ConfigInvalidValue, ce.Kind)
	assert.Equal(t, "MaxCacheSize", ce.Field)

	cfg = testConfig(&testResolver{})
	cfg.CacheTTL = 0
	_, err = grasql.New(cfg)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "CacheTTL", ce.Field)

	cfg = testConfig(&testResolver{})
	cfg.PaginationAliases = map[string]string{"first": "cursor"}
	_, err = grasql.New(cfg)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "PaginationAliases", ce.Field)
}

func TestUnresolvedRootField(t *testing.T) {
	e, err := grasql.New(testConfig(&testResolver{}))
	require.NoError(t, err)

	_, err = e.GenerateSQL(context.Background(), "{ customers { id } }", nil, nil)
	var se *gqlerrors.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, gqlerrors.SchemaUnresolvedField, se.Kind)
	assert.Equal(t, "customers", se.Field)
}
