package crmmigrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/crmv2/crmv2/internal/crmschema"
)

// Truncate empties the target tables in its own transaction and returns the
// tables it emptied. Migrate with Fresh set does the same inside the
// migration transaction.
func (m *Migrator) Truncate(ctx context.Context) ([]string, error) {
	tx, err := m.target.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	tables, err := truncate(ctx, tx, m.dialect)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing truncation: %w", err)
	}
	return tables, nil
}

// truncate empties every existing table of crmschema.TruncationOrder.
// Tables absent from the target (dealerships after schema evolution) are
// skipped.
//
// Postgres truncates all tables in one statement so references among them
// are never checked mid-way. SQLite deletes table by table in that order,
// children before parents, so every delete passes its foreign key checks
// immediately and the steps that follow keep write-time enforcement.
func truncate(ctx context.Context, tx *sql.Tx, d crmschema.Dialect) ([]string, error) {
	insp := crmschema.NewInspector(d, tx)
	var tables []string
	for _, t := range crmschema.TruncationOrder {
		ok, err := insp.TableExists(ctx, t)
		if err != nil {
			return nil, err
		}
		if ok {
			tables = append(tables, t)
		}
	}
	if len(tables) == 0 {
		return nil, nil
	}

	switch d {
	case crmschema.DialectPostgres:
		quoted := make([]string, len(tables))
		for i, t := range tables {
			quoted[i] = crmschema.QuoteIdent(t)
		}
		q := "TRUNCATE TABLE " + strings.Join(quoted, ", ") + " RESTART IDENTITY"
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return nil, fmt.Errorf("truncating tables: %w", err)
		}
	default:
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+crmschema.QuoteIdent(t)); err != nil {
				return nil, fmt.Errorf("emptying %s: %w", t, err)
			}
		}
	}
	return tables, nil
}
