// Package evolution holds the versioned, reversible schema changes that turn
// the dealership-shaped crmv2 schema into the company-shaped one. Every step
// inspects the live schema before changing it, so re-running a step against a
// table it already evolved does nothing destructive.
package evolution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crmv2/crmv2/internal/crmschema"
)

// DefaultFallbackID is the organization (and company) id assigned to rows
// whose owner cannot be derived during a backfill.
const DefaultFallbackID = 3

// Direction selects the forward or reverse half of a step.
type Direction int

const (
	DirectionUp Direction = iota
	DirectionDown
)

func (d Direction) String() string {
	if d == DirectionDown {
		return "down"
	}
	return "up"
}

// Step is one named schema change with its reverse.
type Step struct {
	Version int64
	Name    string
	Up      func(ctx context.Context, env *Env) error
	Down    func(ctx context.Context, env *Env) error
}

// Env is what a step runs against: a transaction, an inspector bound to that
// transaction and the backfill fallbacks.
type Env struct {
	Tx        crmschema.Querier
	Inspector crmschema.SchemaInspector
	// FallbackOrganizationID backfills dealerships.organization_id when the
	// owner has no current organization.
	FallbackOrganizationID int64
	// FallbackCompanyID backfills company_id where dealership_id is null.
	FallbackCompanyID int64
	Logger            *slog.Logger
}

// RemainingNullsError stops a step before it tightens a column to NOT NULL
// while rows still hold NULL after the backfill.
type RemainingNullsError struct {
	Table  string
	Column string
	Count  int64
}

func (e *RemainingNullsError) Error() string {
	return fmt.Sprintf("cannot enforce non-null %s.%s: %d rows could not be backfilled", e.Table, e.Column, e.Count)
}

func (e *Env) exec(ctx context.Context, query string, args ...any) error {
	if _, err := e.Tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing %q: %w", firstWords(query), err)
	}
	return nil
}

// requireNoNulls counts NULLs left in table.column and fails closed.
func (e *Env) requireNoNulls(ctx context.Context, table, column string) error {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", crmschema.QuoteIdent(table), crmschema.QuoteIdent(column))
	if err := e.Tx.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return fmt.Errorf("counting nulls in %s.%s: %w", table, column, err)
	}
	if n > 0 {
		return &RemainingNullsError{Table: table, Column: column, Count: n}
	}
	return nil
}

// setNotNull tightens table.column unless it already is NOT NULL.
func (e *Env) setNotNull(ctx context.Context, table, column string) error {
	nullable, err := e.Inspector.ColumnNullable(ctx, table, column)
	if err != nil {
		return err
	}
	if !nullable {
		return nil
	}
	return e.exec(ctx, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL",
		crmschema.QuoteIdent(table), crmschema.QuoteIdent(column)))
}

// dropNotNull relaxes table.column if it exists and is NOT NULL.
func (e *Env) dropNotNull(ctx context.Context, table, column string) error {
	ok, err := e.Inspector.ColumnExists(ctx, table, column)
	if err != nil || !ok {
		return err
	}
	nullable, err := e.Inspector.ColumnNullable(ctx, table, column)
	if err != nil || nullable {
		return err
	}
	return e.exec(ctx, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL",
		crmschema.QuoteIdent(table), crmschema.QuoteIdent(column)))
}

func (e *Env) dropColumn(ctx context.Context, table, column string) error {
	ok, err := e.Inspector.ColumnExists(ctx, table, column)
	if err != nil || !ok {
		return err
	}
	return e.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
		crmschema.QuoteIdent(table), crmschema.QuoteIdent(column)))
}

// createIndex creates a composite index under the given name if no index of
// that name exists.
func (e *Env) createIndex(ctx context.Context, table, name string, columns ...string) error {
	ok, err := e.Inspector.IndexExists(ctx, table, name)
	if err != nil || ok {
		return err
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = crmschema.QuoteIdent(c)
	}
	return e.exec(ctx, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
		crmschema.QuoteIdent(name), crmschema.QuoteIdent(table), strings.Join(quoted, ", ")))
}

func (e *Env) dropIndex(ctx context.Context, table, name string) error {
	ok, err := e.Inspector.IndexExists(ctx, table, name)
	if err != nil || !ok {
		return err
	}
	return e.exec(ctx, "DROP INDEX "+crmschema.QuoteIdent(name))
}

// firstWords shortens a statement for error messages.
func firstWords(q string) string {
	const limit = 60
	q = strings.Join(strings.Fields(q), " ")
	if len(q) <= limit {
		return q
	}
	return q[:limit] + "..."
}
