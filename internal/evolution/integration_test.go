//go:build integration

package evolution_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/crmv2/crmv2/internal/crmschema"
	"github.com/crmv2/crmv2/internal/evolution"
	"github.com/crmv2/crmv2/internal/testutil"
)

var serverURL string

func TestMain(m *testing.M) {
	u, cleanup, err := testutil.StartPostgresForTestMain()
	if err != nil {
		fmt.Fprintf(os.Stderr, "starting postgres: %v\n", err)
		os.Exit(1)
	}
	serverURL = u
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// preEvolutionDB returns a database holding the dealership-shaped schema and
// its seed rows.
func preEvolutionDB(t *testing.T) *sql.DB {
	t.Helper()
	db, _ := testutil.NewPostgresDB(t, serverURL)
	ddl, err := os.ReadFile("testdata/pre_evolution.sql")
	testutil.NoError(t, err)
	testutil.NoError(t, crmschema.ApplyDDL(context.Background(), db, string(ddl)))
	return db
}

func newRunner(t *testing.T, db *sql.DB) *evolution.Runner {
	t.Helper()
	r, err := evolution.NewRunner(db, crmschema.DialectPostgres, evolution.Options{Logger: testutil.DiscardLogger()})
	testutil.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

var evolvedTables = []string{
	crmschema.Dealerships, crmschema.DealershipUser, crmschema.Companies, crmschema.CompanyUser,
	crmschema.Contacts, crmschema.Stores, crmschema.Progresses, crmschema.DealerEmails, crmschema.SentEmails,
}

// snapshot renders columns, nullability, indexes, foreign keys and owner
// references of the evolved tables as sorted text. Column order is not
// part of it.
func snapshot(t *testing.T, db *sql.DB) string {
	t.Helper()
	var b strings.Builder
	lines := func(query string, args ...any) {
		rows, err := db.Query(query, args...)
		testutil.NoError(t, err)
		defer rows.Close()
		cols, err := rows.Columns()
		testutil.NoError(t, err)
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		for rows.Next() {
			testutil.NoError(t, rows.Scan(ptrs...))
			for _, v := range vals {
				if v.Valid {
					b.WriteString(v.String)
				} else {
					b.WriteString("NULL")
				}
				b.WriteString(" ")
			}
			b.WriteString("\n")
		}
		testutil.NoError(t, rows.Err())
	}

	tables := "'" + strings.Join(evolvedTables, "','") + "'"
	lines(`SELECT table_name, column_name, is_nullable FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name IN (` + tables + `)
		ORDER BY table_name, column_name`)
	lines(`SELECT tablename, indexname FROM pg_indexes
		WHERE schemaname = current_schema() AND tablename IN (` + tables + `)
		ORDER BY tablename, indexname`)
	lines(`SELECT table_name, constraint_name FROM information_schema.table_constraints
		WHERE table_schema = current_schema() AND constraint_type = 'FOREIGN KEY'
		AND table_name IN (` + tables + `) ORDER BY table_name, constraint_name`)
	for _, table := range []string{crmschema.Contacts, crmschema.Stores, crmschema.Progresses, crmschema.DealerEmails, crmschema.SentEmails} {
		lines(`SELECT '` + table + `', id, dealership_id FROM ` + table + ` ORDER BY id`)
	}
	lines(`SELECT dealership_id, user_id FROM dealership_user ORDER BY 1, 2`)
	return b.String()
}

func TestUpEvolvesSchemaAndData(t *testing.T) {
	ctx := context.Background()
	db := preEvolutionDB(t)
	r := newRunner(t, db)

	results, err := r.Up(ctx)
	testutil.NoError(t, err)
	testutil.SliceLen(t, results, 9)

	// Owner's current organization, else the fallback; existing values kept.
	for id, want := range map[int64]int64{1: 1, 2: 3, 3: 1} {
		var got int64
		testutil.NoError(t, db.QueryRow(`SELECT organization_id FROM dealerships WHERE id = $1`, id).Scan(&got))
		testutil.Equal(t, want, got)
	}

	var companies, pivot int
	testutil.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM companies`).Scan(&companies))
	testutil.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM company_user`).Scan(&pivot))
	testutil.Equal(t, 3, companies)
	testutil.Equal(t, 3, pivot)

	var company int64
	testutil.NoError(t, db.QueryRow(`SELECT company_id FROM progresses WHERE id = 2`).Scan(&company))
	testutil.Equal(t, int64(3), company)

	insp := crmschema.NewInspector(crmschema.DialectPostgres, db)
	for _, table := range []string{crmschema.Contacts, crmschema.Stores, crmschema.Progresses, crmschema.DealerEmails, crmschema.SentEmails} {
		has, err := insp.ColumnExists(ctx, table, "dealership_id")
		testutil.NoError(t, err)
		testutil.False(t, has, "%s.dealership_id should be gone", table)
		nullable, err := insp.ColumnNullable(ctx, table, "company_id")
		testutil.NoError(t, err)
		testutil.False(t, nullable, "%s.company_id should be NOT NULL", table)
	}
	ok, err := insp.IndexExists(ctx, crmschema.Contacts, "contacts_company_id_primary_contact_index")
	testutil.NoError(t, err)
	testutil.True(t, ok)
	ok, err = insp.TableExists(ctx, crmschema.DealershipUser)
	testutil.NoError(t, err)
	testutil.False(t, ok)

	// New companies get ids past the copied ones.
	var next int64
	testutil.NoError(t, db.QueryRow(`INSERT INTO companies (organization_id, user_id, name)
		VALUES (3, 1, 'West Motors') RETURNING id`).Scan(&next))
	testutil.Equal(t, int64(4), next)

	status, err := r.Status(ctx)
	testutil.NoError(t, err)
	testutil.SliceLen(t, status, 9)
	for _, s := range status {
		testutil.True(t, s.Applied, "%s should be applied", s.Name)
	}
}

func TestRerunningStepsIsNoop(t *testing.T) {
	ctx := context.Background()
	db := preEvolutionDB(t)
	r := newRunner(t, db)
	_, err := r.Up(ctx)
	testutil.NoError(t, err)

	before := snapshotEvolved(t, db)
	for _, s := range evolution.Steps() {
		err := evolution.ApplyStep(ctx, db, s, evolution.DirectionUp, evolution.Options{Logger: testutil.DiscardLogger()})
		testutil.NoError(t, err)
	}
	testutil.Equal(t, before, snapshotEvolved(t, db))
}

// snapshotEvolved is snapshot for the company-shaped schema.
func snapshotEvolved(t *testing.T, db *sql.DB) string {
	t.Helper()
	var b strings.Builder
	for _, table := range []string{crmschema.Contacts, crmschema.Stores, crmschema.Progresses, crmschema.DealerEmails, crmschema.SentEmails} {
		rows, err := db.Query(`SELECT id, company_id FROM ` + table + ` ORDER BY id`)
		testutil.NoError(t, err)
		for rows.Next() {
			var id, company int64
			testutil.NoError(t, rows.Scan(&id, &company))
			fmt.Fprintf(&b, "%s %d %d\n", table, id, company)
		}
		rows.Close()
	}
	rows, err := db.Query(`SELECT id, organization_id, name FROM companies ORDER BY id`)
	testutil.NoError(t, err)
	for rows.Next() {
		var id, org int64
		var name string
		testutil.NoError(t, rows.Scan(&id, &org, &name))
		fmt.Fprintf(&b, "companies %d %d %s\n", id, org, name)
	}
	rows.Close()
	return b.String()
}

func TestDownRestoresPriorShape(t *testing.T) {
	ctx := context.Background()
	db := preEvolutionDB(t)
	before := snapshot(t, db)

	r := newRunner(t, db)
	_, err := r.Up(ctx)
	testutil.NoError(t, err)

	results, err := r.DownTo(ctx, 0)
	testutil.NoError(t, err)
	testutil.SliceLen(t, results, 9)
	testutil.Equal(t, "drop_dealership_user", results[0].Name)

	testutil.Equal(t, before, snapshot(t, db))

	version, err := r.Version(ctx)
	testutil.NoError(t, err)
	testutil.Equal(t, int64(0), version)
}

func TestDownOneStepAtATime(t *testing.T) {
	ctx := context.Background()
	db := preEvolutionDB(t)
	r := newRunner(t, db)
	_, err := r.UpTo(ctx, evolution.VersionContactsCompany)
	testutil.NoError(t, err)

	insp := crmschema.NewInspector(crmschema.DialectPostgres, db)
	has, err := insp.ColumnExists(ctx, crmschema.Contacts, "company_id")
	testutil.NoError(t, err)
	testutil.True(t, has)
	has, err = insp.ColumnExists(ctx, crmschema.Stores, "company_id")
	testutil.NoError(t, err)
	testutil.False(t, has)

	res, err := r.Down(ctx)
	testutil.NoError(t, err)
	testutil.SliceLen(t, res, 1)
	testutil.Equal(t, "contacts_company", res[0].Name)

	var dealership int64
	testutil.NoError(t, db.QueryRow(`SELECT dealership_id FROM contacts WHERE id = 2`).Scan(&dealership))
	testutil.Equal(t, int64(2), dealership)
}

func TestFailClosedLeavesTableUntouched(t *testing.T) {
	ctx := context.Background()
	db := preEvolutionDB(t)
	r := newRunner(t, db)
	_, err := r.UpTo(ctx, evolution.VersionCreateCompanyUser)
	testutil.NoError(t, err)

	// A half-moved table: company_id present but NULL, nothing left to copy from.
	testutil.Exec(t, db,
		`ALTER TABLE stores ADD COLUMN company_id BIGINT NULL REFERENCES companies (id)`,
		`ALTER TABLE stores DROP COLUMN dealership_id`,
		`INSERT INTO stores (id, name) VALUES (9, 'Orphan')`,
	)
	step, ok := evolution.Lookup("stores_company")
	testutil.True(t, ok)
	err = evolution.ApplyStep(ctx, db, step, evolution.DirectionUp, evolution.Options{Logger: testutil.DiscardLogger()})

	var nullsErr *evolution.RemainingNullsError
	testutil.True(t, errors.As(err, &nullsErr), "want RemainingNullsError, got %v", err)
	testutil.Equal(t, int64(2), nullsErr.Count)

	nullable, err := crmschema.NewInspector(crmschema.DialectPostgres, db).ColumnNullable(ctx, crmschema.Stores, "company_id")
	testutil.NoError(t, err)
	testutil.True(t, nullable, "company_id must stay nullable")
}
