package crmschema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SchemaInspector answers structural questions about the live schema. The
// evolution steps consult it before every change so that re-running a step
// against an already-evolved table is a no-op.
type SchemaInspector interface {
	TableExists(ctx context.Context, table string) (bool, error)
	ColumnExists(ctx context.Context, table, column string) (bool, error)
	// ColumnNullable fails when the column does not exist.
	ColumnNullable(ctx context.Context, table, column string) (bool, error)
	IndexExists(ctx context.Context, table, index string) (bool, error)
}

// ErrColumnNotFound is returned by ColumnNullable for a missing column.
var ErrColumnNotFound = errors.New("column not found")

// NewInspector returns the SchemaInspector for d running queries on q.
func NewInspector(d Dialect, q Querier) SchemaInspector {
	switch d {
	case DialectSQLite:
		return &sqliteInspector{q: q}
	case DialectMySQL:
		return &mysqlInspector{q: q}
	default:
		return &pgInspector{q: q}
	}
}

func queryBool(ctx context.Context, q Querier, query string, args ...any) (bool, error) {
	var ok bool
	if err := q.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// pgInspector reads information_schema and pg_indexes for the current schema.
type pgInspector struct{ q Querier }

func (i *pgInspector) TableExists(ctx context.Context, table string) (bool, error) {
	ok, err := queryBool(ctx, i.q,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1)`, table)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return ok, nil
}

func (i *pgInspector) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	ok, err := queryBool(ctx, i.q,
		`SELECT EXISTS (SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2)`,
		table, column)
	if err != nil {
		return false, fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	return ok, nil
}

func (i *pgInspector) ColumnNullable(ctx context.Context, table, column string) (bool, error) {
	var nullable string
	err := i.q.QueryRowContext(ctx,
		`SELECT is_nullable FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`,
		table, column).Scan(&nullable)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%s.%s: %w", table, column, ErrColumnNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("checking nullability of %s.%s: %w", table, column, err)
	}
	return nullable == "YES", nil
}

func (i *pgInspector) IndexExists(ctx context.Context, table, index string) (bool, error) {
	ok, err := queryBool(ctx, i.q,
		`SELECT EXISTS (SELECT 1 FROM pg_indexes
			WHERE schemaname = current_schema() AND tablename = $1 AND indexname = $2)`,
		table, index)
	if err != nil {
		return false, fmt.Errorf("checking index %s: %w", index, err)
	}
	return ok, nil
}

// sqliteInspector reads sqlite_master and pragma_table_info.
type sqliteInspector struct{ q Querier }

func (i *sqliteInspector) TableExists(ctx context.Context, table string) (bool, error) {
	ok, err := queryBool(ctx, i.q,
		`SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`, table)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return ok, nil
}

func (i *sqliteInspector) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	ok, err := queryBool(ctx, i.q,
		`SELECT EXISTS (SELECT 1 FROM pragma_table_info(?) WHERE name = ?)`, table, column)
	if err != nil {
		return false, fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	return ok, nil
}

func (i *sqliteInspector) ColumnNullable(ctx context.Context, table, column string) (bool, error) {
	var notNull int
	err := i.q.QueryRowContext(ctx,
		`SELECT "notnull" FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&notNull)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%s.%s: %w", table, column, ErrColumnNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("checking nullability of %s.%s: %w", table, column, err)
	}
	return notNull == 0, nil
}

func (i *sqliteInspector) IndexExists(ctx context.Context, table, index string) (bool, error) {
	ok, err := queryBool(ctx, i.q,
		`SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name = ?)`,
		table, index)
	if err != nil {
		return false, fmt.Errorf("checking index %s: %w", index, err)
	}
	return ok, nil
}

// mysqlInspector reads information_schema for the connection's database.
// It only serves the legacy adapter, which never alters the schema.
type mysqlInspector struct{ q Querier }

func (i *mysqlInspector) TableExists(ctx context.Context, table string) (bool, error) {
	ok, err := queryBool(ctx, i.q,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables
			WHERE table_schema = DATABASE() AND table_name = ?)`, table)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return ok, nil
}

func (i *mysqlInspector) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	ok, err := queryBool(ctx, i.q,
		`SELECT EXISTS (SELECT 1 FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?)`,
		table, column)
	if err != nil {
		return false, fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	return ok, nil
}

func (i *mysqlInspector) ColumnNullable(ctx context.Context, table, column string) (bool, error) {
	var nullable string
	err := i.q.QueryRowContext(ctx,
		`SELECT is_nullable FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`,
		table, column).Scan(&nullable)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%s.%s: %w", table, column, ErrColumnNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("checking nullability of %s.%s: %w", table, column, err)
	}
	return nullable == "YES", nil
}

func (i *mysqlInspector) IndexExists(ctx context.Context, table, index string) (bool, error) {
	ok, err := queryBool(ctx, i.q,
		`SELECT EXISTS (SELECT 1 FROM information_schema.statistics
			WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?)`,
		table, index)
	if err != nil {
		return false, fmt.Errorf("checking index %s: %w", index, err)
	}
	return ok, nil
}
