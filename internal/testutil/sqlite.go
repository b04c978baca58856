package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// OpenSQLite creates an empty SQLite database file under t.TempDir() with
// foreign keys enforced and returns the handle and the file path. The handle
// is closed when the test ends.
func OpenSQLite(t testing.TB, name string) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".db")
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("opening sqlite %s: %v", path, err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("pinging sqlite %s: %v", path, err)
	}
	t.Cleanup(func() { db.Close() })
	return db, path
}

// Exec runs each statement on db, failing the test on the first error.
func Exec(t testing.TB, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

// CountRows returns the number of rows in table.
func CountRows(t testing.TB, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "` + table + `"`).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}
