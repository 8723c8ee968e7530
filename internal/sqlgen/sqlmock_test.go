package sqlgen

import (
	"database/sql/driver"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

// The generated statements go through database/sql unchanged, so a mock
// driver verifies that the SQL text and the bound parameters line up.

func TestStatementsRoundTripThroughDatabaseSQL(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	stmt := mustCompile(t,
		`{ users(where: {name: {_eq: "ada"}}, limit: 2) { id name } }`, nil)

	args := make([]driver.Value, len(stmt.Params))
	for i, p := range stmt.Params {
		args[i] = p
	}
	mock.ExpectQuery(stmt.SQL).
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "ada"))

	rows, err := db.Query(stmt.SQL, stmt.Params...)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	defer rows.Close()

	if !rows.Next() {
		t.Fatal("expected one row")
	}
	var (
		id   int64
		name string
	)
	if err := rows.Scan(&id, &name); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if id != 1 || name != "ada" {
		t.Fatalf("unexpected row (%d, %q)", id, name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMutationRoundTripReportsAffectedRows(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	stmt := mustCompile(t,
		`mutation { update_users(where: {id: {_eq: 7}}, _set: {name: "z"}) { affected_rows } }`, nil)
	if !stmt.WantsAffectedRows {
		t.Fatal("affected_rows request lost")
	}

	args := make([]driver.Value, len(stmt.Params))
	for i, p := range stmt.Params {
		args[i] = p
	}
	mock.ExpectExec(stmt.SQL).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := db.Exec(stmt.SQL, stmt.Params...)
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil || affected != 1 {
		t.Fatalf("affected rows (%d, %v)", affected, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
