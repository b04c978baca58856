package evolution

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/crmv2/crmv2/internal/crmschema"
	"github.com/crmv2/crmv2/internal/testutil"
)

// fakeInspector answers from a fixed picture of the schema. Nothing it
// reports changes when the step under test runs, except that a column it
// does not know is taken to be one the step just added as nullable.
type fakeInspector struct {
	tables  map[string]bool
	columns map[string]bool // "table.column" -> nullable
	indexes map[string]bool
}

func newFakeInspector() *fakeInspector {
	return &fakeInspector{tables: map[string]bool{}, columns: map[string]bool{}, indexes: map[string]bool{}}
}

func (f *fakeInspector) table(names ...string) *fakeInspector {
	for _, n := range names {
		f.tables[n] = true
	}
	return f
}

func (f *fakeInspector) column(table, column string, nullable bool) *fakeInspector {
	f.columns[table+"."+column] = nullable
	return f
}

func (f *fakeInspector) index(name string) *fakeInspector {
	f.indexes[name] = true
	return f
}

func (f *fakeInspector) TableExists(_ context.Context, table string) (bool, error) {
	return f.tables[table], nil
}

func (f *fakeInspector) ColumnExists(_ context.Context, table, column string) (bool, error) {
	_, ok := f.columns[table+"."+column]
	return ok, nil
}

func (f *fakeInspector) ColumnNullable(_ context.Context, table, column string) (bool, error) {
	nullable, ok := f.columns[table+"."+column]
	if !ok {
		return true, nil
	}
	return nullable, nil
}

func (f *fakeInspector) IndexExists(_ context.Context, _, index string) (bool, error) {
	return f.indexes[index], nil
}

// mockEnv opens a sqlmock transaction and wraps it in an Env using insp.
func mockEnv(t *testing.T, insp crmschema.SchemaInspector) (*Env, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	testutil.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectBegin()
	tx, err := db.Begin()
	testutil.NoError(t, err)

	return &Env{
		Tx:                     tx,
		Inspector:              insp,
		FallbackOrganizationID: 3,
		FallbackCompanyID:      7,
		Logger:                 testutil.DiscardLogger(),
	}, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func nullCount(n int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

func step(t *testing.T, name string) Step {
	t.Helper()
	s, ok := Lookup(name)
	testutil.True(t, ok, "step %s not registered", name)
	return s
}

func TestStepsAreOrderedAndNamed(t *testing.T) {
	t.Parallel()
	steps := Steps()
	testutil.SliceLen(t, steps, 9)
	want := []string{
		"organization_required", "create_companies", "create_company_user",
		"contacts_company", "stores_company", "progresses_company",
		"dealer_emails_company", "sent_emails_company", "drop_dealership_user",
	}
	for i, s := range steps {
		testutil.Equal(t, want[i], s.Name)
		if i > 0 {
			testutil.True(t, s.Version > steps[i-1].Version, "version of %s must increase", s.Name)
		}
		testutil.NotNil(t, s.Up)
		testutil.NotNil(t, s.Down)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()
	s, ok := Lookup("stores_company")
	testutil.True(t, ok)
	testutil.Equal(t, VersionStoresCompany, s.Version)

	s, ok = Lookup("20260203121000")
	testutil.True(t, ok)
	testutil.Equal(t, "create_companies", s.Name)

	_, ok = Lookup("nope")
	testutil.False(t, ok)
}

func TestOrganizationRequiredAddsBackfillsAndTightens(t *testing.T) {
	t.Parallel()
	insp := newFakeInspector().
		table(crmschema.Dealerships, crmschema.Users).
		column(crmschema.Users, "current_organization_id", true)
	env, mock := mockEnv(t, insp)

	mock.ExpectExec(q("ALTER TABLE dealerships ADD COLUMN organization_id BIGINT NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("(SELECT u.current_organization_id FROM users u WHERE u.id = d.user_id), $1)")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "dealerships" WHERE "organization_id" IS NULL`)).
		WillReturnRows(nullCount(0))
	mock.ExpectExec(q(`ALTER TABLE "dealerships" ALTER COLUMN "organization_id" SET NOT NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	testutil.NoError(t, step(t, "organization_required").Up(context.Background(), env))
	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationRequiredFallsBackWithoutOwnerOrganization(t *testing.T) {
	t.Parallel()
	insp := newFakeInspector().
		table(crmschema.Dealerships).
		column(crmschema.Dealerships, "organization_id", true)
	env, mock := mockEnv(t, insp)

	mock.ExpectExec(q(`UPDATE dealerships SET organization_id = $1 WHERE organization_id IS NULL`)).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "dealerships" WHERE "organization_id" IS NULL`)).
		WillReturnRows(nullCount(0))
	mock.ExpectExec(q(`ALTER TABLE "dealerships" ALTER COLUMN "organization_id" SET NOT NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	testutil.NoError(t, step(t, "organization_required").Up(context.Background(), env))
	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationRequiredFailsClosed(t *testing.T) {
	t.Parallel()
	insp := newFakeInspector().
		table(crmschema.Dealerships).
		column(crmschema.Dealerships, "organization_id", true)
	env, mock := mockEnv(t, insp)

	mock.ExpectExec(q(`UPDATE dealerships SET organization_id = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "dealerships"`)).
		WillReturnRows(nullCount(2))

	err := step(t, "organization_required").Up(context.Background(), env)
	var nullsErr *RemainingNullsError
	testutil.True(t, errors.As(err, &nullsErr), "want RemainingNullsError, got %v", err)
	testutil.Equal(t, int64(2), nullsErr.Count)
	testutil.Equal(t, "organization_id", nullsErr.Column)
	testutil.Contains(t, err.Error(), "cannot enforce non-null dealerships.organization_id")
	// No SET NOT NULL was attempted.
	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationRequiredRerunIsNoop(t *testing.T) {
	t.Parallel()
	insp := newFakeInspector().
		table(crmschema.Dealerships, crmschema.Users).
		column(crmschema.Dealerships, "organization_id", false).
		column(crmschema.Users, "current_organization_id", true)
	env, mock := mockEnv(t, insp)

	mock.ExpectExec(q("WHERE d.organization_id IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "dealerships"`)).
		WillReturnRows(nullCount(0))

	testutil.NoError(t, step(t, "organization_required").Up(context.Background(), env))
	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizationRequiredDown(t *testing.T) {
	t.Parallel()
	insp := newFakeInspector().
		table(crmschema.Dealerships).
		column(crmschema.Dealerships, "organization_id", false)
	env, mock := mockEnv(t, insp)

	mock.ExpectExec(q(`ALTER TABLE "dealerships" ALTER COLUMN "organization_id" DROP NOT NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	testutil.NoError(t, step(t, "organization_required").Down(context.Background(), env))
	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCompaniesCopiesDealerships(t *testing.T) {
	t.Parallel()
	env, mock := mockEnv(t, newFakeInspector().table(crmschema.Dealerships))

	mock.ExpectExec(q("CREATE TABLE companies (")).WillReturnResult(sqlmock.NewResult(0, 0))
	for _, col := range []string{"status", "rating", "type", "in_development"} {
		mock.ExpectExec(q(`CREATE INDEX "companies_` + col + `_index" ON "companies" ("` + col + `")`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(q("ON CONFLICT (id) DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(q("SELECT setval(pg_get_serial_sequence('companies', 'id')")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	testutil.NoError(t, step(t, "create_companies").Up(context.Background(), env))
	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatedCompaniesRestrictOwnerDeletion(t *testing.T) {
	t.Parallel()
	testutil.True(t, regexp.MustCompile(`user_id BIGINT NOT NULL REFERENCES users \(id\) ON UPDATE CASCADE ON DELETE RESTRICT`).
		MatchString(createCompaniesSQL), "companies.user_id must restrict deletes")
}

func TestCreateCompaniesRerunOnlyCopies(t *testing.T) {
	t.Parallel()
	env, mock := mockEnv(t, newFakeInspector().table(crmschema.Dealerships, crmschema.Companies))

	mock.ExpectExec(q("INSERT INTO companies (")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("SELECT setval(")).WillReturnResult(sqlmock.NewResult(0, 0))

	testutil.NoError(t, step(t, "create_companies").Up(context.Background(), env))
	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCompanyUserSeedsOnlyEmptyPivot(t *testing.T) {
	t.Parallel()
	env, mock := mockEnv(t, newFakeInspector().table(crmschema.DealershipUser))

	mock.ExpectExec(q("CREATE TABLE company_user (")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("WHERE NOT EXISTS (SELECT 1 FROM company_user)")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	testutil.NoError(t, step(t, "create_company_user").Up(context.Background(), env))
	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestRelocationForward(t *testing.T) {
	t.Parallel()
	insp := newFakeInspector().
		table(crmschema.Contacts).
		column(crmschema.Contacts, "dealership_id", false).
		column(crmschema.Contacts, "company_id", true).
		index("contacts_dealership_id_primary_contact_index")
	env, mock := mockEnv(t, insp)

	mock.ExpectExec(q(`UPDATE "contacts" SET "company_id" = COALESCE("dealership_id", $1)`)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "contacts" WHERE "company_id" IS NULL`)).
		WillReturnRows(nullCount(0))
	mock.ExpectExec(q(`DROP INDEX "contacts_dealership_id_primary_contact_index"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q(`ALTER TABLE "contacts" DROP COLUMN "dealership_id"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q(`ALTER TABLE "contacts" ALTER COLUMN "company_id" SET NOT NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q(`CREATE INDEX "contacts_company_id_primary_contact_index" ON "contacts" ("company_id", "primary_contact")`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	testutil.NoError(t, step(t, "contacts_company").Up(context.Background(), env))
	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestRelocationAddsColumnWithForeignKey(t *testing.T) {
	t.Parallel()
	insp := newFakeInspector().table(crmschema.Progresses)
	env, mock := mockEnv(t, insp)

	mock.ExpectExec(q(`ALTER TABLE "progresses" ADD COLUMN "company_id" BIGINT NULL CONSTRAINT "progresses_company_id_foreign" REFERENCES "companies" (id) ON UPDATE CASCADE ON DELETE RESTRICT`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "progresses" WHERE "company_id" IS NULL`)).
		WillReturnRows(nullCount(1))

	err := step(t, "progresses_company").Up(context.Background(), env)
	var nullsErr *RemainingNullsError
	testutil.True(t, errors.As(err, &nullsErr))
	testutil.Equal(t, "progresses", nullsErr.Table)
	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestRelocationRerunIsNoop(t *testing.T) {
	t.Parallel()
	insp := newFakeInspector().
		table(crmschema.Stores).
		column(crmschema.Stores, "company_id", false)
	env, mock := mockEnv(t, insp)

	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "stores" WHERE "company_id" IS NULL`)).
		WillReturnRows(nullCount(0))

	testutil.NoError(t, step(t, "stores_company").Up(context.Background(), env))
	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestRelocationReverse(t *testing.T) {
	t.Parallel()
	insp := newFakeInspector().
		table(crmschema.Progresses).
		column(crmschema.Progresses, "company_id", false).
		index("progresses_company_id_date_index")
	env, mock := mockEnv(t, insp)

	mock.ExpectExec(q(`ALTER TABLE "progresses" ADD COLUMN "dealership_id" BIGINT NULL CONSTRAINT "progresses_dealership_id_foreign" REFERENCES "dealerships" (id) ON UPDATE CASCADE ON DELETE RESTRICT`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q(`UPDATE "progresses" SET "dealership_id" = "company_id"`)).
		WillReturnResult(sqlmock.NewResult(0, 6))
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "progresses" WHERE "dealership_id" IS NULL`)).
		WillReturnRows(nullCount(0))
	mock.ExpectExec(q(`DROP INDEX "progresses_company_id_date_index"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q(`ALTER TABLE "progresses" DROP COLUMN "company_id"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q(`ALTER TABLE "progresses" ALTER COLUMN "dealership_id" SET NOT NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q(`CREATE INDEX "progresses_dealership_id_date_index" ON "progresses" ("dealership_id", "date")`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	testutil.NoError(t, step(t, "progresses_company").Down(context.Background(), env))
	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestRelocationReverseCopiesBack(t *testing.T) {
	t.Parallel()
	insp := newFakeInspector().
		table(crmschema.SentEmails).
		column(crmschema.SentEmails, "company_id", false).
		column(crmschema.SentEmails, "dealership_id", true)
	env, mock := mockEnv(t, insp)

	mock.ExpectExec(q(`UPDATE "sent_emails" SET "dealership_id" = "company_id"`)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "sent_emails" WHERE "dealership_id" IS NULL`)).
		WillReturnRows(nullCount(0))
	mock.ExpectExec(q(`ALTER TABLE "sent_emails" DROP COLUMN "company_id"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q(`ALTER TABLE "sent_emails" ALTER COLUMN "dealership_id" SET NOT NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	testutil.NoError(t, step(t, "sent_emails_company").Down(context.Background(), env))
	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestRelocationMissingTable(t *testing.T) {
	t.Parallel()
	env, _ := mockEnv(t, newFakeInspector())
	err := step(t, "dealer_emails_company").Up(context.Background(), env)
	testutil.ErrorContains(t, err, "table dealer_emails not found")
}

func TestDropDealershipUser(t *testing.T) {
	t.Parallel()

	t.Run("carries pairs over", func(t *testing.T) {
		env, mock := mockEnv(t, newFakeInspector().table(crmschema.DealershipUser, crmschema.CompanyUser))
		mock.ExpectExec(q("ON CONFLICT (company_id, user_id) DO NOTHING")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q("DROP TABLE dealership_user")).WillReturnResult(sqlmock.NewResult(0, 0))

		testutil.NoError(t, step(t, "drop_dealership_user").Up(context.Background(), env))
		testutil.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already dropped", func(t *testing.T) {
		env, mock := mockEnv(t, newFakeInspector().table(crmschema.CompanyUser))
		testutil.NoError(t, step(t, "drop_dealership_user").Up(context.Background(), env))
		testutil.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("down recreates and copies", func(t *testing.T) {
		env, mock := mockEnv(t, newFakeInspector().table(crmschema.CompanyUser))
		mock.ExpectExec(q("CREATE TABLE dealership_user (")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(q("SELECT company_id, user_id FROM company_user")).
			WillReturnResult(sqlmock.NewResult(0, 2))

		testutil.NoError(t, step(t, "drop_dealership_user").Down(context.Background(), env))
		testutil.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestApplyStepCommitsAndRollsBack(t *testing.T) {
	t.Parallel()
	insp := newFakeInspector().table(crmschema.Stores).column(crmschema.Stores, "company_id", false)
	opts := Options{
		Logger:    testutil.DiscardLogger(),
		inspector: func(crmschema.Querier) crmschema.SchemaInspector { return insp },
	}

	db, mock, err := sqlmock.New()
	testutil.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "stores"`)).WillReturnRows(nullCount(0))
	mock.ExpectCommit()
	testutil.NoError(t, ApplyStep(context.Background(), db, step(t, "stores_company"), DirectionUp, opts))

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT COUNT(*) FROM "stores"`)).WillReturnRows(nullCount(4))
	mock.ExpectRollback()
	err = ApplyStep(context.Background(), db, step(t, "stores_company"), DirectionUp, opts)
	testutil.ErrorContains(t, err, "step stores_company (up)")
	var nullsErr *RemainingNullsError
	testutil.True(t, errors.As(err, &nullsErr))

	testutil.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunnerRejectsSQLite(t *testing.T) {
	t.Parallel()
	db, _, err := sqlmock.New()
	testutil.NoError(t, err)
	defer db.Close()

	_, err = NewRunner(db, crmschema.DialectSQLite, Options{})
	testutil.ErrorContains(t, err, "postgres targets only")
}

func TestExecErrorNamesStatement(t *testing.T) {
	t.Parallel()
	env, mock := mockEnv(t, newFakeInspector())
	mock.ExpectExec(q("DROP TABLE IF EXISTS companies")).WillReturnError(sql.ErrConnDone)

	err := step(t, "create_companies").Down(context.Background(), env)
	testutil.ErrorIs(t, err, sql.ErrConnDone)
	testutil.Contains(t, err.Error(), "DROP TABLE IF EXISTS companies")
}
