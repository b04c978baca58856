package crmschema

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/crmv2/crmv2/internal/migrate"
)

// Dialect selects the SQL flavour spoken by a connection.
type Dialect int

const (
	DialectUnknown Dialect = iota
	DialectPostgres
	DialectSQLite
	DialectMySQL
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectSQLite:
		return "sqlite"
	case DialectMySQL:
		return "mysql"
	default:
		return "unknown"
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectSQLite:
		return "sqlite"
	case DialectMySQL:
		return "mysql"
	default:
		return ""
	}
}

// Placeholder renders the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Placeholders renders count comma-separated bind parameters starting at start.
func (d Dialect) Placeholders(start, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.Placeholder(start + i)
	}
	return strings.Join(parts, ", ")
}

// Quote quotes an identifier for the dialect.
func (d Dialect) Quote(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return QuoteIdent(name)
}

// QuoteIdent quotes a SQL identifier with double quotes, which both Postgres
// and SQLite accept.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral quotes a string as a SQL literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// InsertSQL builds a single-row INSERT for table and columns.
func (d Dialect) InsertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table), strings.Join(quoted, ", "), d.Placeholders(1, len(columns)))
}

// DialectFor maps a connection string to a dialect and a driver DSN.
// MySQL URLs are handled by the legacy adapter, which owns the MySQL driver.
func DialectFor(url string) (Dialect, string, error) {
	switch migrate.DetectSource(url) {
	case migrate.SourcePostgres:
		return DialectPostgres, url, nil
	case migrate.SourceSQLite:
		return DialectSQLite, SQLiteDSN(migrate.SQLitePath(url), false), nil
	case migrate.SourceMySQL:
		return DialectMySQL, url, nil
	default:
		return DialectUnknown, "", fmt.Errorf("unsupported database URL %q (expected postgres://, mysql://, sqlite:// or a file path)",
			migrate.RedactURL(url))
	}
}

// SQLiteDSN builds a modernc.org/sqlite DSN with foreign keys enforced.
func SQLiteDSN(path string, readOnly bool) string {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if readOnly {
		dsn += "&mode=ro"
	}
	return dsn
}

// OpenTarget opens and pings the crmv2 database behind url.
// Only Postgres and SQLite are valid targets.
func OpenTarget(ctx context.Context, url string) (*sql.DB, Dialect, error) {
	d, dsn, err := DialectFor(url)
	if err != nil {
		return nil, DialectUnknown, err
	}
	if d != DialectPostgres && d != DialectSQLite {
		return nil, DialectUnknown, fmt.Errorf("%s is not supported as a crmv2 target database", d)
	}
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, DialectUnknown, fmt.Errorf("opening target database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, DialectUnknown, fmt.Errorf("connecting to target database: %w", err)
	}
	return db, d, nil
}
