package crmmigrate

import (
	"context"
	"database/sql"
	"io"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/crmv2/crmv2/internal/crmschema"
	"github.com/crmv2/crmv2/internal/legacy"
	"github.com/crmv2/crmv2/internal/testutil"
)

// fixture is a legacy SQLite database and a crmv2 SQLite target with the
// fallback organization (id 3) already present.
type fixture struct {
	legacyDB *sql.DB
	target   *sql.DB
	source   *legacy.Source
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	legacyDB, _ := testutil.OpenSQLite(t, "legacy")
	ddl, err := crmschema.LegacyBaseline(crmschema.DialectSQLite)
	testutil.NoError(t, err)
	testutil.NoError(t, crmschema.ApplyDDL(ctx, legacyDB, ddl))

	target, _ := testutil.OpenSQLite(t, "crmv2")
	ddl, err = crmschema.Baseline(crmschema.DialectSQLite)
	testutil.NoError(t, err)
	testutil.NoError(t, crmschema.ApplyDDL(ctx, target, ddl))
	testutil.Exec(t, target,
		`INSERT INTO organizations (id, uuid, name) VALUES (3, '6f1c1d9e-0000-4000-8000-000000000003', 'Main')`)

	return &fixture{
		legacyDB: legacyDB,
		target:   target,
		source:   legacy.NewSource(sqlx.NewDb(legacyDB, "sqlite"), legacy.Options{}),
	}
}

func (f *fixture) migrator(t *testing.T, opts MigrationOptions) *Migrator {
	t.Helper()
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = testutil.DiscardLogger()
	}
	m, err := New(context.Background(), f.source, f.target, crmschema.DialectSQLite, opts)
	testutil.NoError(t, err)
	return m
}

// seedCore writes one user (1), one dealership (1) owned by it and one tag.
func (f *fixture) seedCore(t *testing.T) {
	t.Helper()
	testutil.Exec(t, f.legacyDB,
		`INSERT INTO users (id, name, email, password) VALUES (1, 'Ada', 'ada@example.com', 'hash')`,
		`INSERT INTO dealerships (id, user_id, name) VALUES (1, 1, 'North Motors')`,
		`INSERT INTO tags (id, name) VALUES (1, 'hot')`,
	)
}

// seedAll writes one row for every legacy table on top of seedCore.
func (f *fixture) seedAll(t *testing.T) {
	t.Helper()
	f.seedCore(t)
	testutil.Exec(t, f.legacyDB,
		`INSERT INTO progress_categories (id, name) VALUES (1, 'Call')`,
		`INSERT INTO contacts (id, dealership_id, name, primary_contact) VALUES (1, 1, 'Cy', 1)`,
		`INSERT INTO stores (id, user_id, dealership_id, name) VALUES (1, 1, 1, 'Downtown')`,
		`INSERT INTO progresses (id, user_id, dealership_id, contact_id, progress_category_id, details) VALUES (1, 1, 1, 1, 1, 'called')`,
		`INSERT INTO dealer_email_templates (id, name, subject, body) VALUES (1, 'Intro', 'Hello', 'Body')`,
		`INSERT INTO dealer_emails (id, user_id, dealership_id, dealer_email_template_id, recipients) VALUES (1, 1, 1, 1, '["a@example.com"]')`,
		`INSERT INTO sent_emails (id, user_id, dealership_id, recipient) VALUES (1, 1, 1, 'a@example.com')`,
		`INSERT INTO email_tracking_events (id, sent_email_id, event_type) VALUES (1, 1, 'opened')`,
		`INSERT INTO pdf_attachments (id, file_name, file_path) VALUES (1, 'a.pdf', 'pdfs/a.pdf')`,
		`INSERT INTO attachables (id, pdf_attachment_id, attachable_id, attachable_type) VALUES (1, 1, 1, 'App\Models\DealerEmail')`,
		`INSERT INTO reminders (id, user_id, title) VALUES (1, 1, 'Follow up')`,
		`INSERT INTO contact_tag (contact_id, tag_id) VALUES (1, 1)`,
		`INSERT INTO dealership_user (dealership_id, user_id) VALUES (1, 1)`,
	)
}

func nullableInt(t *testing.T, db *sql.DB, query string, args ...any) sql.NullInt64 {
	t.Helper()
	var v sql.NullInt64
	testutil.NoError(t, db.QueryRow(query, args...).Scan(&v))
	return v
}

// fakeChecker answers existence from in-memory sets.
type fakeChecker struct {
	rows  map[string]map[int64]bool
	pairs map[string]map[[2]int64]bool
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{rows: map[string]map[int64]bool{}, pairs: map[string]map[[2]int64]bool{}}
}

func (c *fakeChecker) add(table string, ids ...int64) *fakeChecker {
	if c.rows[table] == nil {
		c.rows[table] = map[int64]bool{}
	}
	for _, id := range ids {
		c.rows[table][id] = true
	}
	return c
}

func (c *fakeChecker) addPair(table string, a, b int64) *fakeChecker {
	if c.pairs[table] == nil {
		c.pairs[table] = map[[2]int64]bool{}
	}
	c.pairs[table][[2]int64{a, b}] = true
	return c
}

func (c *fakeChecker) Exists(_ context.Context, table string, id int64) (bool, error) {
	return c.rows[table][id], nil
}

func (c *fakeChecker) PairExists(_ context.Context, table, _ string, a int64, _ string, b int64) (bool, error) {
	return c.pairs[table][[2]int64{a, b}], nil
}

type fakeRoles map[int64]bool

func (r fakeRoles) IsAdmin(_ context.Context, id int64) (bool, error) { return r[id], nil }
