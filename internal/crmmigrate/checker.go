package crmmigrate

import (
	"context"
	"fmt"

	"github.com/crmv2/crmv2/internal/crmschema"
)

// Checker answers whether a row is already present in the target. During a
// run it queries the open migration transaction, so it sees rows inserted by
// earlier steps.
type Checker interface {
	Exists(ctx context.Context, table string, id int64) (bool, error)
	PairExists(ctx context.Context, table, colA string, a int64, colB string, b int64) (bool, error)
}

type txChecker struct {
	q       crmschema.Querier
	dialect crmschema.Dialect
}

// NewChecker returns a Checker running on q.
func NewChecker(q crmschema.Querier, d crmschema.Dialect) Checker {
	return &txChecker{q: q, dialect: d}
}

func (c *txChecker) Exists(ctx context.Context, table string, id int64) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = %s)",
		crmschema.QuoteIdent(table), c.dialect.Placeholder(1))
	var ok bool
	if err := c.q.QueryRowContext(ctx, query, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking %s %d: %w", table, id, err)
	}
	return ok, nil
}

func (c *txChecker) PairExists(ctx context.Context, table, colA string, a int64, colB string, b int64) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = %s AND %s = %s)",
		crmschema.QuoteIdent(table),
		crmschema.QuoteIdent(colA), c.dialect.Placeholder(1),
		crmschema.QuoteIdent(colB), c.dialect.Placeholder(2))
	var ok bool
	if err := c.q.QueryRowContext(ctx, query, a, b).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking %s (%d, %d): %w", table, a, b, err)
	}
	return ok, nil
}
