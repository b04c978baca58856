package crmmigrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/crmv2/crmv2/internal/crmschema"
	"github.com/crmv2/crmv2/internal/legacy"
	"github.com/crmv2/crmv2/internal/migrate"
)

// step migrates one entity. Steps run in slice order; every step only
// references entities migrated by earlier steps.
type step struct {
	entity Entity
	label  string
	// source is the legacy table the step reads.
	source string
	run    func(ctx context.Context, r *run, e Entity, phase migrate.Phase) (EntityStats, error)
}

func steps() []step {
	return []step{
		{EntityUsers, "Users", crmschema.Users, migrateStep(
			(*legacy.Source).Users, func(u legacy.User) string { return key(u.ID) },
			(*Transformer).User)},
		{EntityProgressCategories, "Progress categories", crmschema.ProgressCategories, migrateStep(
			(*legacy.Source).ProgressCategories, func(c legacy.ProgressCategory) string { return key(c.ID) },
			(*Transformer).ProgressCategory)},
		{EntityCompanies, "Companies", crmschema.Dealerships, migrateStep(
			(*legacy.Source).Dealerships, func(d legacy.Dealership) string { return key(d.ID) },
			(*Transformer).Company)},
		{EntityContacts, "Contacts", crmschema.Contacts, migrateStep(
			(*legacy.Source).Contacts, func(c legacy.Contact) string { return key(c.ID) },
			(*Transformer).Contact)},
		{EntityStores, "Stores", crmschema.Stores, migrateStep(
			(*legacy.Source).Stores, func(s legacy.Store) string { return key(s.ID) },
			(*Transformer).Store)},
		{EntityProgresses, "Progresses", crmschema.Progresses, migrateStep(
			(*legacy.Source).Progresses, func(p legacy.Progress) string { return key(p.ID) },
			(*Transformer).Progress)},
		{EntityDealerEmailTemplates, "Dealer email templates", crmschema.DealerEmailTemplates, migrateStep(
			(*legacy.Source).DealerEmailTemplates, func(d legacy.DealerEmailTemplate) string { return key(d.ID) },
			(*Transformer).DealerEmailTemplate)},
		{EntityDealerEmails, "Dealer emails", crmschema.DealerEmails, migrateStep(
			(*legacy.Source).DealerEmails, func(d legacy.DealerEmail) string { return key(d.ID) },
			(*Transformer).DealerEmail)},
		{EntitySentEmails, "Sent emails", crmschema.SentEmails, migrateStep(
			(*legacy.Source).SentEmails, func(s legacy.SentEmail) string { return key(s.ID) },
			(*Transformer).SentEmail)},
		{EntityEmailTrackingEvents, "Email tracking events", crmschema.EmailTrackingEvents, migrateStep(
			(*legacy.Source).EmailTrackingEvents, func(e legacy.EmailTrackingEvent) string { return key(e.ID) },
			(*Transformer).EmailTrackingEvent)},
		{EntityPdfAttachments, "PDF attachments", crmschema.PdfAttachments, migrateStep(
			(*legacy.Source).PdfAttachments, func(p legacy.PdfAttachment) string { return key(p.ID) },
			(*Transformer).PdfAttachment)},
		{EntityAttachables, "Attachables", crmschema.Attachables, migrateStep(
			(*legacy.Source).Attachables, func(a legacy.Attachable) string { return key(a.ID) },
			(*Transformer).Attachable)},
		{EntityReminders, "Reminders", crmschema.Reminders, migrateStep(
			(*legacy.Source).Reminders, func(m legacy.Reminder) string { return key(m.ID) },
			(*Transformer).Reminder)},
		{EntityTags, "Tags", crmschema.Tags, migrateStep(
			(*legacy.Source).Tags, func(g legacy.Tag) string { return key(g.ID) },
			(*Transformer).Tag)},
		{EntityContactTag, "Contact tags", crmschema.ContactTag, migrateStep(
			(*legacy.Source).ContactTags, func(ct legacy.ContactTag) string { return pairKey(ct.ContactID, ct.TagID) },
			(*Transformer).ContactTag)},
		{EntityCompanyUser, "Company users", crmschema.DealershipUser, migrateStep(
			(*legacy.Source).DealershipUsers, func(du legacy.DealershipUser) string { return pairKey(du.DealershipID, du.UserID) },
			(*Transformer).CompanyUser)},
	}
}

func key(id int64) string { return fmt.Sprint(id) }

func pairKey(a, b sql.NullInt64) string {
	show := func(v sql.NullInt64) string {
		if !v.Valid {
			return "null"
		}
		return key(v.Int64)
	}
	return show(a) + "/" + show(b)
}

// run is the state of one migration transaction.
type run struct {
	source *legacy.Source
	tx     *sql.Tx
	writer *writer
	tf     *Transformer
	logger *slog.Logger
	prog   migrate.ProgressReporter
	report *Report
}

// migrateStep builds a step runner from a legacy reader, a key function for
// diagnostics and a transformer method.
func migrateStep[T any](
	read func(*legacy.Source, context.Context) ([]T, error),
	keyOf func(T) string,
	transform func(*Transformer, context.Context, T) (*Row, *Skip, error),
) func(context.Context, *run, Entity, migrate.Phase) (EntityStats, error) {
	return func(ctx context.Context, r *run, e Entity, phase migrate.Phase) (EntityStats, error) {
		var stats EntityStats
		rows, err := read(r.source, ctx)
		if err != nil {
			return stats, errors.WithStack(&StepError{Entity: e, Err: err})
		}
		stats.Read = len(rows)
		r.prog.StartPhase(phase, len(rows))
		start := time.Now()

		for i, legacyRow := range rows {
			if err := ctx.Err(); err != nil {
				return stats, errors.WithStack(&StepError{Entity: e, Err: err})
			}
			row, skip, err := transform(r.tf, ctx, legacyRow)
			if err != nil {
				return stats, errors.WithStack(&StepError{Entity: e, LegacyKey: keyOf(legacyRow), Err: err})
			}
			switch {
			case skip != nil && skip.Duplicate:
				stats.Duplicates++
				r.logger.Debug("duplicate row skipped", "entity", e, "legacy_id", keyOf(legacyRow))
			case skip != nil:
				stats.Skipped++
				r.logger.Info("orphaned row skipped", "entity", e,
					"legacy_id", keyOf(legacyRow), "reason", skip.Reason)
			default:
				if err := r.writer.insert(ctx, row); err != nil {
					return stats, errors.WithStack(&StepError{Entity: e, LegacyKey: keyOf(legacyRow), Err: err})
				}
				stats.Migrated++
				if len(row.Nulled) > 0 {
					stats.NulledReferences += len(row.Nulled)
					r.logger.Info("missing optional reference cleared", "entity", e,
						"legacy_id", keyOf(legacyRow), "references", row.Nulled)
				}
			}
			r.prog.Progress(phase, i+1, len(rows))
		}

		r.prog.CompletePhase(phase, len(rows), time.Since(start))
		return stats, nil
	}
}

// writer inserts rows inside the migration transaction, preparing each
// distinct INSERT once.
type writer struct {
	tx      *sql.Tx
	dialect crmschema.Dialect
	stmts   map[string]*sql.Stmt
}

func newWriter(tx *sql.Tx, d crmschema.Dialect) *writer {
	return &writer{tx: tx, dialect: d, stmts: make(map[string]*sql.Stmt)}
}

func (w *writer) insert(ctx context.Context, r *Row) error {
	q := w.dialect.InsertSQL(r.Table, r.Columns)
	stmt, ok := w.stmts[q]
	if !ok {
		var err error
		stmt, err = w.tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("preparing insert into %s: %w", r.Table, err)
		}
		w.stmts[q] = stmt
	}
	if _, err := stmt.ExecContext(ctx, r.Values...); err != nil {
		return fmt.Errorf("inserting into %s: %w", r.Table, err)
	}
	return nil
}

func (w *writer) close() {
	for _, s := range w.stmts {
		s.Close()
	}
}
