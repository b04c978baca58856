package evolution

import (
	"context"
	"fmt"

	"github.com/crmv2/crmv2/internal/crmschema"
)

// relocation moves a table's owner reference from dealership_id to
// company_id. Forward and reverse are the same procedure with the two
// columns swapped.
type relocation struct {
	table string
	// onDelete is the referential action of both foreign keys.
	onDelete string
	// indexWith is the second column of the composite owner index, if the
	// table has one.
	indexWith string
}

// reference is one side of a relocation: the column and the table it points at.
type reference struct {
	column string
	parent string
}

var (
	dealershipRef = reference{column: "dealership_id", parent: crmschema.Dealerships}
	companyRef    = reference{column: "company_id", parent: crmschema.Companies}
)

func relocationStep(version int64, r relocation) Step {
	return Step{
		Version: version,
		Name:    r.table + "_company",
		Up: func(ctx context.Context, env *Env) error {
			return r.move(ctx, env, dealershipRef, companyRef, env.FallbackCompanyID)
		},
		Down: func(ctx context.Context, env *Env) error {
			return r.move(ctx, env, companyRef, dealershipRef, 0)
		},
	}
}

func (r relocation) foreignKeyName(ref reference) string {
	return r.table + "_" + ref.column + "_foreign"
}

func (r relocation) indexName(ref reference) string {
	return r.table + "_" + ref.column + "_" + r.indexWith + "_index"
}

// move adds the new reference column, copies the old one into it, refuses to
// continue while NULLs remain, drops the old column and its index, then
// tightens and indexes the new column. A fallback of 0 copies NULLs as they
// are. Every change is guarded so a repeated run is a no-op.
func (r relocation) move(ctx context.Context, env *Env, from, to reference, fallback int64) error {
	table := crmschema.QuoteIdent(r.table)
	ok, err := env.Inspector.TableExists(ctx, r.table)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("table %s not found", r.table)
	}

	hasTo, err := env.Inspector.ColumnExists(ctx, r.table, to.column)
	if err != nil {
		return err
	}
	if !hasTo {
		if err := env.exec(ctx, fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN %s BIGINT NULL CONSTRAINT %s REFERENCES %s (id) ON UPDATE CASCADE ON DELETE %s",
			table, crmschema.QuoteIdent(to.column), crmschema.QuoteIdent(r.foreignKeyName(to)),
			crmschema.QuoteIdent(to.parent), r.onDelete)); err != nil {
			return err
		}
	}

	hasFrom, err := env.Inspector.ColumnExists(ctx, r.table, from.column)
	if err != nil {
		return err
	}
	if hasFrom {
		if fallback > 0 {
			err = env.exec(ctx, fmt.Sprintf("UPDATE %s SET %s = COALESCE(%s, $1)",
				table, crmschema.QuoteIdent(to.column), crmschema.QuoteIdent(from.column)), fallback)
		} else {
			err = env.exec(ctx, fmt.Sprintf("UPDATE %s SET %s = %s",
				table, crmschema.QuoteIdent(to.column), crmschema.QuoteIdent(from.column)))
		}
		if err != nil {
			return err
		}
	}

	if err := env.requireNoNulls(ctx, r.table, to.column); err != nil {
		return err
	}

	if r.indexWith != "" {
		if err := env.dropIndex(ctx, r.table, r.indexName(from)); err != nil {
			return err
		}
	}
	if err := env.dropColumn(ctx, r.table, from.column); err != nil {
		return err
	}
	if err := env.setNotNull(ctx, r.table, to.column); err != nil {
		return err
	}
	if r.indexWith != "" {
		if err := env.createIndex(ctx, r.table, r.indexName(to), to.column, r.indexWith); err != nil {
			return err
		}
	}
	env.Logger.Debug("owner reference moved", "table", r.table, "from", from.column, "to", to.column)
	return nil
}
