package sqlgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	graerr "github.com/simple-platform/grasql-sub001/gqlerrors"
	"github.com/simple-platform/grasql-sub001/internal/gqlparse"
	"github.com/simple-platform/grasql-sub001/internal/intern"
	"github.com/simple-platform/grasql-sub001/internal/resolve"
	"github.com/simple-platform/grasql-sub001/schema"
)

var (
	usersTable    = schema.Table{Schema: "public", Name: "users"}
	postsTable    = schema.Table{Schema: "public", Name: "posts"}
	tagsTable     = schema.Table{Schema: "public", Name: "tags"}
	postTagsTable = schema.Table{Schema: "public", Name: "post_tags"}
)

var testColumns = map[string][]string{
	"users":     {"id", "name", "email", "created_at"},
	"posts":     {"id", "title", "user_id", "views"},
	"tags":      {"id", "label"},
	"post_tags": {"post_id", "tag_id"},
}

var testTypes = map[string]string{
	"id": "integer", "name": "text", "email": "text", "created_at": "timestamptz",
	"title": "text", "user_id": "integer", "views": "integer",
	"label": "text", "post_id": "integer", "tag_id": "integer",
}

func testResolver() schema.ResolverFuncs {
	return schema.ResolverFuncs{
		ResolveTable: func(name string, _ any) (schema.Table, bool, error) {
			switch name {
			case "users", "user":
				return usersTable, true, nil
			case "posts":
				return postsTable, true, nil
			case "tags":
				return tagsTable, true, nil
			}
			return schema.Table{}, false, nil
		},
		ResolveRelationship: func(field string, parent schema.Table, _ any) (schema.Relationship, bool, error) {
			switch {
			case parent.Name == "users" && field == "posts":
				return schema.Relationship{
					Source: usersTable, Target: postsTable,
					SourceColumns: []string{"id"}, TargetColumns: []string{"user_id"},
					Cardinality: schema.HasMany,
				}, true, nil
			case parent.Name == "posts" && field == "author":
				return schema.Relationship{
					Source: postsTable, Target: usersTable,
					SourceColumns: []string{"user_id"}, TargetColumns: []string{"id"},
					Cardinality: schema.BelongsTo,
				}, true, nil
			case parent.Name == "posts" && field == "tags":
				jt := postTagsTable
				return schema.Relationship{
					Source: postsTable, Target: tagsTable,
					SourceColumns: []string{"id"}, TargetColumns: []string{"id"},
					Cardinality:       schema.ManyToMany,
					JoinTable:         &jt,
					JoinSourceColumns: []string{"post_id"},
					JoinTargetColumns: []string{"tag_id"},
				}, true, nil
			}
			return schema.Relationship{}, false, nil
		},
		ResolveColumns: func(table schema.Table, _ any) ([]string, error) {
			cols, ok := testColumns[table.Name]
			if !ok {
				return nil, fmt.Errorf("unknown table %s", table.Key())
			}
			return cols, nil
		},
		ResolveColumnAttribute: func(attr schema.ColumnAttribute, column string, _ schema.Table, _ any) (any, error) {
			switch attr {
			case schema.AttrSQLType:
				return testTypes[column], nil
			case schema.AttrRequired:
				return column == "id", nil
			case schema.AttrDefault:
				return nil, nil
			}
			return nil, fmt.Errorf("unknown attribute %q", attr)
		},
	}
}

func compile(t *testing.T, text string, vars map[string]any) (Statement, error) {
	t.Helper()
	pq, err := gqlparse.Parse(text, gqlparse.Options{Interner: intern.NewInterner()})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	engine := resolve.NewEngine(resolve.Options{
		AggregateFieldSuffix:    "_aggregate",
		AggregateNodesFieldName: "nodes",
		PrimaryKeyArgumentName:  "id",
		InsertPrefix:            "insert_",
		UpdatePrefix:            "update_",
		DeletePrefix:            "delete_",
		PaginationAliases:       map[string]string{"first": "limit"},
		CacheSize:               64,
		CacheTTL:                time.Minute,
	}, testResolver(), nil)
	plan, err := engine.Resolve(context.Background(), pq, nil)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	return NewGenerator(Options{
		PaginationAliases: map[string]string{"first": "limit"},
	}).Generate(plan, vars)
}

func mustCompile(t *testing.T, text string, vars map[string]any) Statement {
	t.Helper()
	stmt, err := compile(t, text, vars)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	return stmt
}

func TestPlainSelect(t *testing.T) {
	stmt := mustCompile(t, `{ users { id name } }`, nil)

	want := `SELECT "t0"."id" AS "id", "t0"."name" AS "name" FROM "public"."users" AS "t0"`
	if stmt.SQL != want {
		t.Fatalf("SQL:\n got %s\nwant %s", stmt.SQL, want)
	}
	if len(stmt.Params) != 0 {
		t.Fatalf("expected zero params, got %v", stmt.Params)
	}
}

func TestPrimaryKeyLookup(t *testing.T) {
	stmt := mustCompile(t,
		`query GetUser($id: ID!) { user(id: $id) { id name email } }`,
		map[string]any{"id": 123})

	if !strings.Contains(stmt.SQL, `WHERE "t0"."id" = $1`) {
		t.Fatalf("missing equality predicate: %s", stmt.SQL)
	}
	if len(stmt.Params) != 1 || stmt.Params[0] != 123 {
		t.Fatalf("expected params [123], got %v", stmt.Params)
	}
}

func TestHasManyCompilesToCorrelatedSubselect(t *testing.T) {
	stmt := mustCompile(t, `{ users { id posts { id title } } }`, nil)

	if !strings.Contains(stmt.SQL, "json_agg(json_build_object('id', \"t1\".\"id\", 'title', \"t1\".\"title\"))") {
		t.Fatalf("nested list shape missing: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, `"t1"."user_id" = "t0"."id"`) {
		t.Fatalf("correlation predicate missing: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, "coalesce(") {
		t.Fatalf("empty list default missing: %s", stmt.SQL)
	}
}

func TestBelongsToCompilesToJoin(t *testing.T) {
	stmt := mustCompile(t, `{ posts { id author { name } } }`, nil)

	if !strings.Contains(stmt.SQL, `LEFT JOIN "public"."users" AS "t1" ON "t1"."id" = "t0"."user_id"`) {
		t.Fatalf("belongs_to join missing: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, `json_build_object('name', "t1"."name") AS "author"`) {
		t.Fatalf("singular object shape missing: %s", stmt.SQL)
	}
}

func TestManyToManyRoutesThroughJoinTable(t *testing.T) {
	stmt := mustCompile(t, `{ posts { id tags { label } } }`, nil)

	if !strings.Contains(stmt.SQL, `"public"."post_tags"`) {
		t.Fatalf("join table missing: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, "EXISTS (SELECT 1 FROM") {
		t.Fatalf("join table correlation missing: %s", stmt.SQL)
	}
}

func TestAggregateSharesPredicates(t *testing.T) {
	stmt := mustCompile(t,
		`{ users_aggregate(where: {name: {_eq: "ada"}}) { aggregate { count } nodes { id } } }`, nil)

	if !strings.Contains(stmt.SQL, "count(*)") {
		t.Fatalf("count missing: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, "json_agg(") {
		t.Fatalf("nodes list missing: %s", stmt.SQL)
	}
	// One shared base subquery carries the filter for both views.
	if strings.Count(stmt.SQL, `"t0"."name" = $1`) != 1 {
		t.Fatalf("filter should bind exactly once: %s", stmt.SQL)
	}
	if len(stmt.Params) != 1 || stmt.Params[0] != "ada" {
		t.Fatalf("params %v", stmt.Params)
	}
}

func TestAggregateFunctionColumns(t *testing.T) {
	stmt := mustCompile(t,
		`{ posts_aggregate { aggregate { count sum { views } max { views } } } }`, nil)

	if !strings.Contains(stmt.SQL, `sum("t0"."views")`) || !strings.Contains(stmt.SQL, `max("t0"."views")`) {
		t.Fatalf("function columns missing: %s", stmt.SQL)
	}
}

func TestOperators(t *testing.T) {
	stmt := mustCompile(t, `{ users(where: {
		_or: [{name: {_ilike: "a%"}}, {email: {_is_null: true}}],
		_not: {id: {_in: [1, 2, 3]}},
		created_at: {_gte: "2024-01-01"}
	}) { id } }`, nil)

	for _, want := range []string{"ILIKE", "IS NULL", "NOT (", "IN ($", ">= $"} {
		if !strings.Contains(stmt.SQL, want) {
			t.Fatalf("missing %q in: %s", want, stmt.SQL)
		}
	}
	if len(stmt.Params) != 5 {
		t.Fatalf("expected 5 params, got %v", stmt.Params)
	}
}

func TestUnknownOperator(t *testing.T) {
	_, err := compile(t, `{ users(where: {name: {_matches: "a"}}) { id } }`, nil)

	var ge *graerr.GenError
	if !errors.As(err, &ge) || ge.Kind != graerr.GenUnknownOperator || ge.Name != "_matches" {
		t.Fatalf("expected unknown operator error, got %v", err)
	}
}

func TestOrderByPreservesKeyOrder(t *testing.T) {
	stmt := mustCompile(t,
		`{ users(order_by: [{name: asc}, {id: desc}]) { id } }`, nil)

	if !strings.Contains(stmt.SQL, `ORDER BY "t0"."name" ASC, "t0"."id" DESC`) {
		t.Fatalf("order keys reordered: %s", stmt.SQL)
	}
}

func TestPagination(t *testing.T) {
	stmt := mustCompile(t, `{ users(limit: 10, offset: 20) { id } }`, nil)
	if !strings.Contains(stmt.SQL, "LIMIT $1 OFFSET $2") {
		t.Fatalf("pagination missing: %s", stmt.SQL)
	}
	if len(stmt.Params) != 2 || stmt.Params[0] != int64(10) || stmt.Params[1] != int64(20) {
		t.Fatalf("params %v", stmt.Params)
	}

	relay := mustCompile(t, `{ users(first: 5) { id } }`, nil)
	if !strings.Contains(relay.SQL, "LIMIT $1") {
		t.Fatalf("relay alias not mapped: %s", relay.SQL)
	}
}

func TestConflictingPagination(t *testing.T) {
	_, err := compile(t, `{ users(limit: 10, first: 5) { id } }`, nil)

	var ge *graerr.GenError
	if !errors.As(err, &ge) || ge.Kind != graerr.GenConflictingPagination {
		t.Fatalf("expected pagination conflict, got %v", err)
	}
}

func TestMissingVariable(t *testing.T) {
	_, err := compile(t,
		`query Q($q: String) { users(where: {name: {_eq: $q}}) { id } }`, nil)

	var ge *graerr.GenError
	if !errors.As(err, &ge) || ge.Kind != graerr.GenMissingVariable || ge.Name != "q" {
		t.Fatalf("expected missing variable, got %v", err)
	}
}

func TestVariableTypeMismatch(t *testing.T) {
	_, err := compile(t,
		`query Q($id: ID!) { user(id: $id) { id } }`,
		map[string]any{"id": true})

	var ge *graerr.GenError
	if !errors.As(err, &ge) || ge.Kind != graerr.GenVariableTypeMismatch {
		t.Fatalf("expected type mismatch, got %v", err)
	}

	// JSON-decoded integral floats are accepted for integer columns.
	if _, err := compile(t,
		`query Q($id: ID!) { user(id: $id) { id } }`,
		map[string]any{"id": float64(7)}); err != nil {
		t.Fatalf("integral float rejected: %v", err)
	}
}

func TestParamsFollowPlaceholderOrder(t *testing.T) {
	stmt := mustCompile(t,
		`{ users(where: {name: {_eq: "a"}, email: {_neq: "b"}}, limit: 3) { id } }`, nil)

	if len(stmt.Params) != 3 {
		t.Fatalf("expected 3 params, got %v", stmt.Params)
	}
	want := []any{"a", "b", int64(3)}
	for i := range want {
		if stmt.Params[i] != want[i] {
			t.Fatalf("param %d out of order: got %v want %v (%s)", i, stmt.Params[i], want[i], stmt.SQL)
		}
	}
	for i := range want {
		if !strings.Contains(stmt.SQL, fmt.Sprintf("$%d", i+1)) {
			t.Fatalf("placeholder $%d missing: %s", i+1, stmt.SQL)
		}
	}
}

func TestCompositeMultiRootStatement(t *testing.T) {
	stmt := mustCompile(t, `{ users { id } posts { title } }`, nil)

	if !strings.HasPrefix(stmt.SQL, "SELECT coalesce((SELECT json_agg(") {
		t.Fatalf("composite shape missing: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, `AS "users"`) || !strings.Contains(stmt.SQL, `AS "posts"`) {
		t.Fatalf("root response keys missing: %s", stmt.SQL)
	}
}

func TestInsertMultiRow(t *testing.T) {
	stmt := mustCompile(t, `mutation {
		insert_users(objects: [{name: "a", email: "a@x"}, {name: "b"}]) {
			affected_rows
			returning { id name }
		}
	}`, nil)

	if !strings.HasPrefix(stmt.SQL, `INSERT INTO "public"."users" ("name","email") VALUES `) {
		t.Fatalf("insert shape: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, "($1,$2),($3,DEFAULT)") {
		t.Fatalf("row values: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, `RETURNING "id" AS "id", "name" AS "name"`) {
		t.Fatalf("returning clause: %s", stmt.SQL)
	}
	if !stmt.WantsAffectedRows {
		t.Fatal("affected_rows request lost")
	}
	if len(stmt.Params) != 3 {
		t.Fatalf("params %v", stmt.Params)
	}
}

func TestUpdateWithSetAndWhere(t *testing.T) {
	stmt := mustCompile(t, `mutation {
		update_users(where: {id: {_eq: 7}}, _set: {name: "z", email: "z@x"}) {
			affected_rows
		}
	}`, nil)

	if !strings.HasPrefix(stmt.SQL, `UPDATE "public"."users" SET "name" = $1, "email" = $2 WHERE`) {
		t.Fatalf("update shape: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, `"id" = $3`) {
		t.Fatalf("where placeholder order: %s", stmt.SQL)
	}
	if !stmt.WantsAffectedRows {
		t.Fatal("affected_rows request lost")
	}
}

func TestDeleteWithReturning(t *testing.T) {
	stmt := mustCompile(t, `mutation {
		delete_users(where: {email: {_is_null: true}}) { returning { id } }
	}`, nil)

	if !strings.HasPrefix(stmt.SQL, `DELETE FROM "public"."users" WHERE`) {
		t.Fatalf("delete shape: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, `"email" IS NULL`) {
		t.Fatalf("null predicate: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, `RETURNING "id" AS "id"`) {
		t.Fatalf("returning clause: %s", stmt.SQL)
	}
	if stmt.WantsAffectedRows {
		t.Fatal("affected_rows reported without being requested")
	}
}

func TestAliasesShapeOutput(t *testing.T) {
	stmt := mustCompile(t, `{ users { userId: id fullName: name } }`, nil)

	if !strings.Contains(stmt.SQL, `"t0"."id" AS "userId"`) || !strings.Contains(stmt.SQL, `"t0"."name" AS "fullName"`) {
		t.Fatalf("aliases not applied: %s", stmt.SQL)
	}
}

func TestVariableWhereFilter(t *testing.T) {
	stmt := mustCompile(t,
		`query Q($w: users_bool_exp!) { users(where: $w) { id } }`,
		map[string]any{"w": map[string]any{"name": map[string]any{"_eq": "ada"}}})

	if !strings.Contains(stmt.SQL, `WHERE "t0"."name" = $1`) {
		t.Fatalf("variable filter not applied: %s", stmt.SQL)
	}
	if len(stmt.Params) != 1 || stmt.Params[0] != "ada" {
		t.Fatalf("params %v", stmt.Params)
	}
}

func TestVariableWhereOnDelete(t *testing.T) {
	stmt := mustCompile(t,
		`mutation D($w: users_bool_exp!) { delete_users(where: $w) { affected_rows } }`,
		map[string]any{"w": map[string]any{"id": map[string]any{"_eq": 7}}})

	want := `DELETE FROM "public"."users" WHERE "id" = $1`
	if stmt.SQL != want {
		t.Fatalf("SQL:\n got %s\nwant %s", stmt.SQL, want)
	}
	if len(stmt.Params) != 1 || stmt.Params[0] != 7 {
		t.Fatalf("params %v", stmt.Params)
	}
	if !stmt.WantsAffectedRows {
		t.Fatal("affected_rows request lost")
	}
}

func TestVariableWhereCombinators(t *testing.T) {
	stmt := mustCompile(t,
		`query Q($w: users_bool_exp!) { users(where: $w) { id } }`,
		map[string]any{"w": map[string]any{
			"_or": []any{
				map[string]any{"name": map[string]any{"_ilike": "a%"}},
				map[string]any{"_not": map[string]any{"email": map[string]any{"_is_null": true}}},
			},
		}})

	if !strings.Contains(stmt.SQL, `"t0"."name" ILIKE $1 OR NOT ("t0"."email" IS NULL)`) {
		t.Fatalf("combinator shape: %s", stmt.SQL)
	}
	if len(stmt.Params) != 1 || stmt.Params[0] != "a%" {
		t.Fatalf("params %v", stmt.Params)
	}
}

func TestVariableWhereMustBeBound(t *testing.T) {
	_, err := compile(t,
		`query Q($w: users_bool_exp!) { users(where: $w) { id } }`, nil)

	var genErr *graerr.GenError
	if !errors.As(err, &genErr) || genErr.Kind != graerr.GenMissingVariable {
		t.Fatalf("expected missing-variable error, got %v", err)
	}
}

func TestVariableWhereMustBeObject(t *testing.T) {
	_, err := compile(t,
		`mutation D($w: users_bool_exp!) { delete_users(where: $w) { affected_rows } }`,
		map[string]any{"w": "everything"})

	var genErr *graerr.GenError
	if !errors.As(err, &genErr) || genErr.Kind != graerr.GenVariableTypeMismatch {
		t.Fatalf("expected type-mismatch error, got %v", err)
	}
}

func TestVariableOrderBy(t *testing.T) {
	stmt := mustCompile(t,
		`query Q($o: [users_order_by!]) { users(order_by: $o, limit: 5) { id } }`,
		map[string]any{"o": []any{map[string]any{"name": "desc"}}})

	if !strings.Contains(stmt.SQL, `ORDER BY "t0"."name" DESC LIMIT $1`) {
		t.Fatalf("variable order_by not applied: %s", stmt.SQL)
	}
}

func TestAggregateNodesRejectsOwnArguments(t *testing.T) {
	_, err := compile(t,
		`{ users_aggregate(limit: 3) { aggregate { count } nodes(limit: 1) { id } } }`, nil)

	var genErr *graerr.GenError
	if !errors.As(err, &genErr) || genErr.Kind != graerr.GenInvalidArgument {
		t.Fatalf("expected invalid-argument error, got %v", err)
	}
	if !strings.Contains(err.Error(), "nodes") {
		t.Fatalf("error should name the nodes field: %v", err)
	}
}
