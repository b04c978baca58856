// Package crmmigrate copies the legacy CRM's data into the crmv2 schema in a
// single all-or-nothing transaction, skipping rows whose required parents are
// missing and clearing optional references that point nowhere.
package crmmigrate

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/crmv2/crmv2/internal/crmschema"
	"github.com/crmv2/crmv2/internal/legacy"
	"github.com/crmv2/crmv2/internal/migrate"
)

// DefaultFallbackOrganizationID is the organization migrated companies belong
// to unless configured otherwise.
const DefaultFallbackOrganizationID = 3

// ConfirmPrompt is the question asked before fresh mode empties the target.
const ConfirmPrompt = "This will delete all existing data in the crmv2 database. Are you sure?"

// Confirmer gates destructive operations on operator approval.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) (bool, error)

func (f ConfirmFunc) Confirm(prompt string) (bool, error) { return f(prompt) }

// MigrationOptions configures a migration run.
type MigrationOptions struct {
	SourceURL string
	TargetURL string

	// Fresh empties the target tables before migrating, after confirmation.
	Fresh bool
	// Force skips the "target users table is empty" safety check.
	Force  bool
	DryRun bool
	// Verbose keeps run output in dry-run mode.
	Verbose bool

	FallbackOrganizationID int64
	// CreateFallbackOrganization inserts the fallback organization when it
	// does not exist instead of failing.
	CreateFallbackOrganization bool

	AdminRole     string
	UserModelType string

	Confirm  Confirmer
	Progress migrate.ProgressReporter
	Output   io.Writer
	Logger   *slog.Logger
}

// Migrator moves data from a legacy source into a crmv2 target.
type Migrator struct {
	source   *legacy.Source
	target   *sql.DB
	dialect  crmschema.Dialect
	opts     MigrationOptions
	output   io.Writer
	logger   *slog.Logger
	progress migrate.ProgressReporter
	owned    bool
}

// NewMigrator opens the legacy source and the crmv2 target named in opts and
// checks that the target schema is in place.
func NewMigrator(ctx context.Context, opts MigrationOptions) (*Migrator, error) {
	if opts.SourceURL == "" {
		return nil, fmt.Errorf("source database URL is required")
	}
	if opts.TargetURL == "" {
		return nil, fmt.Errorf("target database URL is required")
	}

	source, err := legacy.Open(ctx, opts.SourceURL, legacy.Options{
		AdminRole:     opts.AdminRole,
		UserModelType: opts.UserModelType,
	})
	if err != nil {
		return nil, err
	}
	target, dialect, err := crmschema.OpenTarget(ctx, opts.TargetURL)
	if err != nil {
		source.Close()
		return nil, err
	}

	m, err := New(ctx, source, target, dialect, opts)
	if err != nil {
		source.Close()
		target.Close()
		return nil, err
	}
	m.owned = true
	return m, nil
}

// New builds a Migrator over already-open handles. The caller keeps
// ownership of both.
func New(ctx context.Context, source *legacy.Source, target *sql.DB, dialect crmschema.Dialect, opts MigrationOptions) (*Migrator, error) {
	if dialect != crmschema.DialectPostgres && dialect != crmschema.DialectSQLite {
		return nil, fmt.Errorf("%s is not supported as a crmv2 target database", dialect)
	}
	if opts.FallbackOrganizationID == 0 {
		opts.FallbackOrganizationID = DefaultFallbackOrganizationID
	}
	if opts.FallbackOrganizationID < 0 {
		return nil, fmt.Errorf("fallback organization id must be positive, got %d", opts.FallbackOrganizationID)
	}

	insp := crmschema.NewInspector(dialect, target)
	for _, table := range []string{crmschema.Users, crmschema.Companies, crmschema.CompanyUser} {
		ok, err := insp.TableExists(ctx, table)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("target table %s not found; run 'crmv2 migrate schema up' first", table)
		}
	}

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	if opts.DryRun && !opts.Verbose {
		output = io.Discard
	}
	progress := opts.Progress
	if progress == nil {
		progress = migrate.NopReporter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Migrator{
		source:   source,
		target:   target,
		dialect:  dialect,
		opts:     opts,
		output:   output,
		logger:   logger,
		progress: progress,
	}, nil
}

// Close releases the connections opened by NewMigrator.
func (m *Migrator) Close() error {
	if !m.owned {
		return nil
	}
	var errs []string
	if err := m.source.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := m.target.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing connections: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Migrate runs every entity step inside one transaction. Any error rolls the
// whole run back; on success the transaction commits once (or is rolled back
// in dry-run mode).
func (m *Migrator) Migrate(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{DryRun: m.opts.DryRun}

	if m.opts.Fresh {
		if m.opts.Confirm == nil {
			return nil, ErrCancelled
		}
		ok, err := m.opts.Confirm.Confirm(ConfirmPrompt)
		if err != nil {
			return nil, fmt.Errorf("reading confirmation: %w", err)
		}
		if !ok {
			return nil, ErrCancelled
		}
	}

	fmt.Fprintln(m.output, "Starting data migration from the legacy CRM...")

	tx, err := m.target.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if m.opts.Fresh {
		fmt.Fprintln(m.output, "Truncating tables...")
		truncated, err := truncate(ctx, tx, m.dialect)
		if err != nil {
			return nil, err
		}
		report.Truncated = truncated
		m.logger.Info("target tables emptied", "tables", truncated)
		fmt.Fprintln(m.output, "Tables truncated.")
	}

	if err := m.preflight(ctx, tx); err != nil {
		return nil, err
	}

	w := newWriter(tx, m.dialect)
	defer w.close()

	r := &run{
		source: m.source,
		tx:     tx,
		writer: w,
		tf:     NewTransformer(NewChecker(tx, m.dialect), m.source, m.opts.FallbackOrganizationID),
		logger: m.logger,
		prog:   m.progress,
		report: report,
	}

	all := steps()
	for i, s := range all {
		phase := migrate.Phase{Name: s.label, Index: i + 1, Total: len(all)}
		stats, err := s.run(ctx, r, s.entity, phase)
		if err != nil {
			m.logger.Error("migration step failed", "entity", s.entity, "error", err)
			return nil, err
		}
		stats.Entity = s.entity
		stats.Label = s.label
		report.Entities = append(report.Entities, stats)
		m.logger.Info("entity migrated", "entity", s.entity, "migrated", stats.Migrated,
			"skipped", stats.Skipped, "duplicates", stats.Duplicates)
	}

	unknown, err := m.unknownAttachableOwners(ctx)
	if err != nil {
		return nil, err
	}
	if unknown > 0 {
		msg := fmt.Sprintf("%d attachables reference an owner type other than %s; copied verbatim",
			unknown, DealerEmailOwnerType)
		report.Warnings = append(report.Warnings, msg)
		m.progress.Warn(msg)
	}
	report.Warnings = append(report.Warnings, m.source.Warnings()...)

	if m.dialect == crmschema.DialectPostgres {
		if err := resetSequences(ctx, tx); err != nil {
			return nil, err
		}
	}

	if m.opts.DryRun {
		fmt.Fprintln(m.output, "\n[DRY RUN] Rolling back (no changes made)")
	} else if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing transaction")
	}

	report.Duration = time.Since(started)
	fmt.Fprint(m.output, "\n"+report.Summary())
	if m.opts.DryRun {
		fmt.Fprintln(m.output, "Dry run finished; nothing was written.")
	} else {
		fmt.Fprintln(m.output, "Data migration completed successfully!")
	}
	return report, nil
}

// preflight checks the target is ready: the users table is empty unless
// forced, and the fallback organization exists or may be created.
func (m *Migrator) preflight(ctx context.Context, tx *sql.Tx) error {
	if !m.opts.Force && !m.opts.Fresh {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM "users"`).Scan(&n); err != nil {
			return fmt.Errorf("checking existing users: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("target users table is not empty (%d users); use --fresh to replace or --force to merge", n)
		}
	}

	id := m.opts.FallbackOrganizationID
	exists, err := NewChecker(tx, m.dialect).Exists(ctx, crmschema.Organizations, id)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if !m.opts.CreateFallbackOrganization {
		return fmt.Errorf("%w: organization %d does not exist (create it or pass --create-organization)",
			ErrMissingFallbackOrganization, id)
	}
	now := time.Now().UTC()
	q := fmt.Sprintf(`INSERT INTO "organizations" ("id", "uuid", "name", "created_at", "updated_at") VALUES (%s)`,
		m.dialect.Placeholders(1, 5))
	if _, err := tx.ExecContext(ctx, q, id, uuid.NewString(), "Default organization", now, now); err != nil {
		return fmt.Errorf("creating fallback organization %d: %w", id, err)
	}
	m.logger.Info("created fallback organization", "organization_id", id)
	return nil
}

// unknownAttachableOwners counts legacy attachables whose owner type is not
// one crmv2 knows how to resolve.
func (m *Migrator) unknownAttachableOwners(ctx context.Context) (int, error) {
	rows, err := m.source.Attachables(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range rows {
		if OwnerOf(a).Kind == OwnerUnknown {
			n++
		}
	}
	return n, nil
}

// resetSequences advances each bigserial sequence past the explicitly
// inserted ids so new rows don't collide.
func resetSequences(ctx context.Context, tx *sql.Tx) error {
	for _, table := range crmschema.SequenceTables {
		q := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence(%s, 'id'), COALESCE(MAX(id), 1), MAX(id) IS NOT NULL) FROM %s`,
			crmschema.QuoteLiteral(crmschema.QuoteIdent(table)), crmschema.QuoteIdent(table))
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return errors.Wrapf(err, "resetting sequence for %s", table)
		}
	}
	return nil
}

// Analyze counts the legacy rows each step will read.
func (m *Migrator) Analyze(ctx context.Context) (*migrate.AnalysisReport, error) {
	report := &migrate.AnalysisReport{
		SourceType: m.source.Dialect().String(),
		SourceInfo: migrate.RedactURL(m.opts.SourceURL),
		TargetInfo: migrate.RedactURL(m.opts.TargetURL),
		Fresh:      m.opts.Fresh,
		DryRun:     m.opts.DryRun,
	}
	for _, s := range steps() {
		ok, err := m.source.TableExists(ctx, s.source)
		if err != nil {
			return nil, err
		}
		if !ok {
			report.Warnings = append(report.Warnings, fmt.Sprintf("legacy table %s not found", s.source))
			continue
		}
		n, err := m.source.Count(ctx, s.source)
		if err != nil {
			return nil, err
		}
		report.Tables = append(report.Tables, migrate.TableCount{Label: s.label, Table: s.source, Rows: n})
		report.Records += n
	}
	return report, nil
}

// BuildValidationSummary checks that every legacy row counted by Analyze was
// either written or deliberately dropped.
func BuildValidationSummary(analysis *migrate.AnalysisReport, report *Report) *migrate.ValidationSummary {
	summary := &migrate.ValidationSummary{
		SourceLabel: "Legacy (" + analysis.SourceType + ")",
		TargetLabel: "crmv2",
	}
	for _, s := range steps() {
		stats := report.Entity(s.entity)
		row := migrate.ValidationRow{
			Label:       s.label,
			SourceCount: analysis.Count(s.source),
			TargetCount: stats.Migrated,
			Dropped:     stats.Skipped + stats.Duplicates,
		}
		summary.Rows = append(summary.Rows, row)
		if !row.Balanced() {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: %d legacy rows unaccounted for",
				s.label, row.SourceCount-row.TargetCount-row.Dropped))
		}
	}
	return summary
}
