package crmmigrate

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/crmv2/crmv2/internal/testutil"
)

func TestReportSummary(t *testing.T) {
	t.Parallel()
	r := &Report{Entities: []EntityStats{
		{Entity: EntityUsers, Label: "Users", Read: 4, Migrated: 4},
		{Entity: EntityContacts, Label: "Contacts", Read: 10, Migrated: 8, Skipped: 2},
		{Entity: EntityProgresses, Label: "Progresses", Read: 3, Migrated: 3, NulledReferences: 1},
		{Entity: EntityCompanyUser, Label: "Company users", Read: 2, Migrated: 1, Duplicates: 1},
	}}

	s := r.Summary()
	testutil.Contains(t, s, "Migrated 4 users.\n")
	testutil.Contains(t, s, "Migrated 8 contacts.\nSkipped 2 orphaned contacts.\n")
	testutil.Contains(t, s, "Cleared 1 missing optional references on progresses.\n")
	testutil.Contains(t, s, "Skipped 1 duplicate company users.\n")
	testutil.NotContains(t, s, "orphaned users")

	tot := r.Totals()
	testutil.Equal(t, 19, tot.Read)
	testutil.Equal(t, 16, tot.Migrated)
	testutil.Equal(t, 2, tot.Skipped)
	testutil.Equal(t, 1, tot.Duplicates)
	testutil.Equal(t, 1, tot.NulledReferences)

	testutil.Equal(t, 8, r.Entity(EntityContacts).Migrated)
	testutil.Equal(t, 0, r.Entity(EntityTags).Read)
}

func TestReportPrintTotals(t *testing.T) {
	t.Parallel()
	r := &Report{
		Entities: []EntityStats{{Entity: EntityUsers, Label: "Users", Read: 1, Migrated: 1}},
		Warnings: []string{"legacy roles table not found; no user is marked admin"},
	}
	var buf bytes.Buffer
	r.PrintTotals(&buf)
	out := buf.String()
	testutil.NotContains(t, out, "Migrated 1 users.")
	testutil.Contains(t, out, "Rows written:   1")
	testutil.Contains(t, out, "    - legacy roles table not found")
	testutil.NotContains(t, out, "Duplicates:")
}

func TestStepError(t *testing.T) {
	t.Parallel()

	base := fmt.Errorf("inserting into contacts: boom")
	err := errors.WithStack(&StepError{Entity: EntityContacts, LegacyKey: "42", Err: base})
	testutil.Equal(t, "migrating contacts (legacy row 42): inserting into contacts: boom", err.Error())
	testutil.ErrorIs(t, err, base)

	err = &StepError{Entity: EntityUsers, Err: context.Canceled}
	testutil.Equal(t, "migrating users: context canceled", err.Error())
	testutil.ErrorIs(t, err, context.Canceled)

	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	err = &StepError{Entity: EntityContactTag, LegacyKey: "1/1", Err: pgErr}
	testutil.Contains(t, err.Error(), "unique violation not covered by the skip policy")
}
