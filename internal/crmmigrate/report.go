package crmmigrate

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Entity names one migration step by its target table.
type Entity string

const (
	EntityUsers                Entity = "users"
	EntityProgressCategories   Entity = "progress_categories"
	EntityCompanies            Entity = "companies"
	EntityContacts             Entity = "contacts"
	EntityStores               Entity = "stores"
	EntityProgresses           Entity = "progresses"
	EntityDealerEmailTemplates Entity = "dealer_email_templates"
	EntityDealerEmails         Entity = "dealer_emails"
	EntitySentEmails           Entity = "sent_emails"
	EntityEmailTrackingEvents  Entity = "email_tracking_events"
	EntityPdfAttachments       Entity = "pdf_attachments"
	EntityAttachables          Entity = "attachables"
	EntityReminders            Entity = "reminders"
	EntityTags                 Entity = "tags"
	EntityContactTag           Entity = "contact_tag"
	EntityCompanyUser          Entity = "company_user"
)

// EntityStats counts what happened to the legacy rows of one entity.
// Read always equals Migrated + Skipped + Duplicates after a step completes.
type EntityStats struct {
	Entity     Entity `json:"entity"`
	Label      string `json:"label"`
	Read       int    `json:"read"`
	Migrated   int    `json:"migrated"`
	Skipped    int    `json:"skipped"`
	Duplicates int    `json:"duplicates"`
	// NulledReferences counts optional references cleared because the
	// referenced row did not exist.
	NulledReferences int `json:"nulledReferences"`
}

// Report is the outcome of a successful migration run.
type Report struct {
	Entities  []EntityStats `json:"entities"`
	Truncated []string      `json:"truncated,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
	DryRun    bool          `json:"dryRun"`
	Duration  time.Duration `json:"durationNs"`
}

// Entity returns the stats recorded for e, or a zero value.
func (r *Report) Entity(e Entity) EntityStats {
	for _, s := range r.Entities {
		if s.Entity == e {
			return s
		}
	}
	return EntityStats{Entity: e}
}

// Totals sums every entity.
func (r *Report) Totals() EntityStats {
	var t EntityStats
	t.Label = "Total"
	for _, s := range r.Entities {
		t.Read += s.Read
		t.Migrated += s.Migrated
		t.Skipped += s.Skipped
		t.Duplicates += s.Duplicates
		t.NulledReferences += s.NulledReferences
	}
	return t
}

// Summary renders the per-entity lines printed after a run.
func (r *Report) Summary() string {
	var b strings.Builder
	for _, s := range r.Entities {
		noun := strings.ToLower(s.Label)
		fmt.Fprintf(&b, "Migrated %d %s.\n", s.Migrated, noun)
		if s.Skipped > 0 {
			fmt.Fprintf(&b, "Skipped %d orphaned %s.\n", s.Skipped, noun)
		}
		if s.Duplicates > 0 {
			fmt.Fprintf(&b, "Skipped %d duplicate %s.\n", s.Duplicates, noun)
		}
		if s.NulledReferences > 0 {
			fmt.Fprintf(&b, "Cleared %d missing optional references on %s.\n", s.NulledReferences, noun)
		}
	}
	return b.String()
}

// PrintTotals writes the run totals and warnings to w. The per-entity lines
// are printed by Migrate itself.
func (r *Report) PrintTotals(w io.Writer) {
	t := r.Totals()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Rows read:      %d\n", t.Read)
	fmt.Fprintf(w, "  Rows written:   %d\n", t.Migrated)
	fmt.Fprintf(w, "  Orphans:        %d\n", t.Skipped)
	if t.Duplicates > 0 {
		fmt.Fprintf(w, "  Duplicates:     %d\n", t.Duplicates)
	}
	fmt.Fprintf(w, "  Duration:       %s\n", r.Duration.Round(time.Millisecond))
	if len(r.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Warnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "    - %s\n", warn)
		}
	}
	fmt.Fprintln(w)
}
