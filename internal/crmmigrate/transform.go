package crmmigrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/crmv2/crmv2/internal/crmschema"
	"github.com/crmv2/crmv2/internal/legacy"
)

// Row is one insert into the target: the table, its columns in order and the
// matching values. Legacy primary keys are carried over unchanged.
type Row struct {
	Table   string
	Columns []string
	Values  []any
	// Nulled names optional references that were cleared because the
	// referenced row did not exist.
	Nulled []string
}

func newRow(table string) *Row {
	return &Row{Table: table}
}

func (r *Row) set(column string, value any) *Row {
	r.Columns = append(r.Columns, column)
	r.Values = append(r.Values, value)
	return r
}

// Value returns the value written to column.
func (r *Row) Value(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Skip explains why a legacy row is not written.
type Skip struct {
	Reason string
	// Duplicate marks a pivot pair that already exists in the target.
	Duplicate bool
}

// RoleLookup derives the admin flag from legacy role assignments.
type RoleLookup interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// Transformer maps legacy rows to target rows, applying the referential
// policy: a missing required parent skips the row, a missing optional parent
// is cleared to NULL.
type Transformer struct {
	check                  Checker
	roles                  RoleLookup
	fallbackOrganizationID int64
}

// NewTransformer returns a Transformer. Companies are assigned to
// fallbackOrganizationID because the legacy CRM had no organizations.
func NewTransformer(check Checker, roles RoleLookup, fallbackOrganizationID int64) *Transformer {
	return &Transformer{check: check, roles: roles, fallbackOrganizationID: fallbackOrganizationID}
}

// parent is a reference from a legacy row to a row of another table.
type parent struct {
	table  string
	column string
	id     sql.NullInt64
}

// requireParents returns a Skip naming every required parent that is null or
// absent from the target.
func (t *Transformer) requireParents(ctx context.Context, parents ...parent) (*Skip, error) {
	var missing []string
	for _, p := range parents {
		if !p.id.Valid {
			missing = append(missing, p.column+" is null")
			continue
		}
		ok, err := t.check.Exists(ctx, p.table, p.id.Int64)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, fmt.Sprintf("%s %d not found", p.column, p.id.Int64))
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	return &Skip{Reason: strings.Join(missing, ", ")}, nil
}

// optionalParent keeps a reference when the parent exists and clears it when
// a non-null reference points nowhere. A null reference stays null.
func (t *Transformer) optionalParent(ctx context.Context, row *Row, p parent) (sql.NullInt64, error) {
	if !p.id.Valid {
		return p.id, nil
	}
	ok, err := t.check.Exists(ctx, p.table, p.id.Int64)
	if err != nil {
		return sql.NullInt64{}, err
	}
	if !ok {
		row.Nulled = append(row.Nulled, fmt.Sprintf("%s %d", p.column, p.id.Int64))
		return sql.NullInt64{}, nil
	}
	return p.id, nil
}

func boolOr(b sql.NullBool, def bool) bool {
	if b.Valid {
		return b.Bool
	}
	return def
}

func (t *Transformer) User(ctx context.Context, u legacy.User) (*Row, *Skip, error) {
	isAdmin, err := t.roles.IsAdmin(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	r := newRow(crmschema.Users).
		set("id", u.ID).
		set("name", u.Name).
		set("email", u.Email).
		set("phone", u.Phone).
		set("email_verified_at", u.EmailVerifiedAt).
		set("password", u.Password).
		set("timezone", u.Timezone).
		set("profile_photo_path", u.ProfilePhotoPath).
		set("is_admin", isAdmin).
		set("two_factor_secret", u.TwoFactorSecret).
		set("two_factor_recovery_codes", u.TwoFactorRecoveryCodes).
		set("two_factor_confirmed_at", u.TwoFactorConfirmedAt).
		set("remember_token", u.RememberToken).
		set("created_at", u.CreatedAt).
		set("updated_at", u.UpdatedAt).
		set("deleted_at", u.DeletedAt)
	return r, nil, nil
}

func (t *Transformer) ProgressCategory(_ context.Context, c legacy.ProgressCategory) (*Row, *Skip, error) {
	r := newRow(crmschema.ProgressCategories).
		set("id", c.ID).
		set("name", c.Name).
		set("created_at", c.CreatedAt).
		set("updated_at", c.UpdatedAt)
	return r, nil, nil
}

// Company maps a legacy dealership. It has no parent checks; the owner
// reference is written as-is.
func (t *Transformer) Company(_ context.Context, d legacy.Dealership) (*Row, *Skip, error) {
	r := newRow(crmschema.Companies).
		set("id", d.ID).
		set("organization_id", t.fallbackOrganizationID).
		set("user_id", d.UserID).
		set("name", d.Name).
		set("address", d.Address).
		set("city", d.City).
		set("state", d.State).
		set("zip_code", d.ZipCode).
		set("phone", d.Phone).
		set("email", d.Email).
		set("current_solution_name", d.CurrentSolutionName).
		set("current_solution_use", d.CurrentSolutionUse).
		set("notes", d.Notes).
		set("status", d.Status).
		set("rating", d.Rating).
		set("type", d.Type).
		set("in_development", boolOr(d.InDevelopment, false)).
		set("dev_status", d.DevStatus).
		set("created_at", d.CreatedAt).
		set("updated_at", d.UpdatedAt)
	return r, nil, nil
}

func (t *Transformer) Contact(ctx context.Context, c legacy.Contact) (*Row, *Skip, error) {
	skip, err := t.requireParents(ctx, parent{crmschema.Companies, "company_id", c.DealershipID})
	if skip != nil || err != nil {
		return nil, skip, err
	}
	r := newRow(crmschema.Contacts).
		set("id", c.ID).
		set("company_id", c.DealershipID.Int64).
		set("name", c.Name).
		set("email", c.Email).
		set("phone", c.Phone).
		set("position", c.Position).
		set("linkedin_link", c.LinkedinLink).
		set("primary_contact", boolOr(c.PrimaryContact, false)).
		set("created_at", c.CreatedAt).
		set("updated_at", c.UpdatedAt)
	return r, nil, nil
}

func (t *Transformer) Store(ctx context.Context, s legacy.Store) (*Row, *Skip, error) {
	skip, err := t.requireParents(ctx,
		parent{crmschema.Users, "user_id", s.UserID},
		parent{crmschema.Companies, "company_id", s.DealershipID},
	)
	if skip != nil || err != nil {
		return nil, skip, err
	}
	r := newRow(crmschema.Stores).
		set("id", s.ID).
		set("user_id", s.UserID.Int64).
		set("company_id", s.DealershipID.Int64).
		set("name", s.Name).
		set("address", s.Address).
		set("city", s.City).
		set("state", s.State).
		set("zip_code", s.ZipCode).
		set("phone", s.Phone).
		set("current_solution_name", s.CurrentSolutionName).
		set("current_solution_use", s.CurrentSolutionUse).
		set("notes", s.Notes).
		set("created_at", s.CreatedAt).
		set("updated_at", s.UpdatedAt)
	return r, nil, nil
}

func (t *Transformer) Progress(ctx context.Context, p legacy.Progress) (*Row, *Skip, error) {
	skip, err := t.requireParents(ctx,
		parent{crmschema.Users, "user_id", p.UserID},
		parent{crmschema.Companies, "company_id", p.DealershipID},
	)
	if skip != nil || err != nil {
		return nil, skip, err
	}
	r := newRow(crmschema.Progresses)
	contactID, err := t.optionalParent(ctx, r, parent{crmschema.Contacts, "contact_id", p.ContactID})
	if err != nil {
		return nil, nil, err
	}
	categoryID, err := t.optionalParent(ctx, r,
		parent{crmschema.ProgressCategories, "progress_category_id", p.ProgressCategoryID})
	if err != nil {
		return nil, nil, err
	}
	r.set("id", p.ID).
		set("user_id", p.UserID.Int64).
		set("company_id", p.DealershipID.Int64).
		set("contact_id", contactID).
		set("progress_category_id", categoryID).
		set("details", p.Details).
		set("date", p.Date).
		set("created_at", p.CreatedAt).
		set("updated_at", p.UpdatedAt)
	return r, nil, nil
}

func (t *Transformer) DealerEmailTemplate(_ context.Context, d legacy.DealerEmailTemplate) (*Row, *Skip, error) {
	r := newRow(crmschema.DealerEmailTemplates).
		set("id", d.ID).
		set("name", d.Name).
		set("subject", d.Subject).
		set("body", d.Body).
		set("attachment_path", d.AttachmentPath).
		set("attachment_name", d.AttachmentName).
		set("created_at", d.CreatedAt).
		set("updated_at", d.UpdatedAt)
	return r, nil, nil
}

func (t *Transformer) DealerEmail(ctx context.Context, d legacy.DealerEmail) (*Row, *Skip, error) {
	skip, err := t.requireParents(ctx,
		parent{crmschema.Users, "user_id", d.UserID},
		parent{crmschema.Companies, "company_id", d.DealershipID},
	)
	if skip != nil || err != nil {
		return nil, skip, err
	}
	r := newRow(crmschema.DealerEmails)
	templateID, err := t.optionalParent(ctx, r,
		parent{crmschema.DealerEmailTemplates, "dealer_email_template_id", d.DealerEmailTemplateID})
	if err != nil {
		return nil, nil, err
	}
	r.set("id", d.ID).
		set("user_id", d.UserID.Int64).
		set("company_id", d.DealershipID.Int64).
		set("dealer_email_template_id", templateID).
		set("customize_email", boolOr(d.CustomizeEmail, false)).
		set("customize_attachment", boolOr(d.CustomizeAttachment, false)).
		set("recipients", d.Recipients).
		set("attachment", d.Attachment).
		set("subject", d.Subject).
		set("message", d.Message).
		set("start_date", d.StartDate).
		set("last_sent", d.LastSent).
		set("next_send_date", d.NextSendDate).
		set("frequency", d.Frequency).
		set("paused", boolOr(d.Paused, false)).
		set("created_at", d.CreatedAt).
		set("updated_at", d.UpdatedAt)
	return r, nil, nil
}

func (t *Transformer) SentEmail(ctx context.Context, s legacy.SentEmail) (*Row, *Skip, error) {
	skip, err := t.requireParents(ctx,
		parent{crmschema.Users, "user_id", s.UserID},
		parent{crmschema.Companies, "company_id", s.DealershipID},
	)
	if skip != nil || err != nil {
		return nil, skip, err
	}
	r := newRow(crmschema.SentEmails).
		set("id", s.ID).
		set("user_id", s.UserID.Int64).
		set("company_id", s.DealershipID.Int64).
		set("recipient", s.Recipient).
		set("message_id", s.MessageID).
		set("subject", s.Subject).
		set("tracking_data", s.TrackingData).
		set("created_at", s.CreatedAt).
		set("updated_at", s.UpdatedAt)
	return r, nil, nil
}

func (t *Transformer) EmailTrackingEvent(ctx context.Context, e legacy.EmailTrackingEvent) (*Row, *Skip, error) {
	skip, err := t.requireParents(ctx, parent{crmschema.SentEmails, "sent_email_id", e.SentEmailID})
	if skip != nil || err != nil {
		return nil, skip, err
	}
	r := newRow(crmschema.EmailTrackingEvents).
		set("id", e.ID).
		set("sent_email_id", e.SentEmailID.Int64).
		set("event_type", e.EventType).
		set("message_id", e.MessageID).
		set("recipient_email", e.RecipientEmail).
		set("url", e.URL).
		set("user_agent", e.UserAgent).
		set("ip_address", e.IPAddress).
		set("mailgun_data", e.MailgunData).
		set("event_timestamp", e.EventTimestamp).
		set("created_at", e.CreatedAt).
		set("updated_at", e.UpdatedAt)
	return r, nil, nil
}

func (t *Transformer) PdfAttachment(_ context.Context, p legacy.PdfAttachment) (*Row, *Skip, error) {
	r := newRow(crmschema.PdfAttachments).
		set("id", p.ID).
		set("file_name", p.FileName).
		set("file_path", p.FilePath).
		set("created_at", p.CreatedAt).
		set("updated_at", p.UpdatedAt)
	return r, nil, nil
}

// Attachable requires its pdf attachment. The polymorphic owner is copied
// verbatim; see OwnerOf for classification.
func (t *Transformer) Attachable(ctx context.Context, a legacy.Attachable) (*Row, *Skip, error) {
	skip, err := t.requireParents(ctx, parent{crmschema.PdfAttachments, "pdf_attachment_id", a.PdfAttachmentID})
	if skip != nil || err != nil {
		return nil, skip, err
	}
	r := newRow(crmschema.Attachables).
		set("id", a.ID).
		set("pdf_attachment_id", a.PdfAttachmentID.Int64).
		set("attachable_id", a.AttachableID).
		set("attachable_type", a.AttachableType).
		set("created_at", a.CreatedAt).
		set("updated_at", a.UpdatedAt)
	return r, nil, nil
}

func (t *Transformer) Reminder(_ context.Context, m legacy.Reminder) (*Row, *Skip, error) {
	r := newRow(crmschema.Reminders).
		set("id", m.ID).
		set("user_id", m.UserID).
		set("dev_rel", m.DevRel).
		set("title", m.Title).
		set("message", m.Message).
		set("start_date", m.StartDate).
		set("last_sent", m.LastSent).
		set("sending_frequency", m.SendingFrequency).
		set("pause", boolOr(m.Pause, false)).
		set("created_at", m.CreatedAt).
		set("updated_at", m.UpdatedAt)
	return r, nil, nil
}

func (t *Transformer) Tag(_ context.Context, g legacy.Tag) (*Row, *Skip, error) {
	r := newRow(crmschema.Tags).
		set("id", g.ID).
		set("name", g.Name).
		set("created_at", g.CreatedAt).
		set("updated_at", g.UpdatedAt)
	return r, nil, nil
}

// ContactTag requires both sides. Pairs are not de-duplicated: the legacy
// pivot is trusted to be unique.
func (t *Transformer) ContactTag(ctx context.Context, ct legacy.ContactTag) (*Row, *Skip, error) {
	skip, err := t.requireParents(ctx,
		parent{crmschema.Contacts, "contact_id", ct.ContactID},
		parent{crmschema.Tags, "tag_id", ct.TagID},
	)
	if skip != nil || err != nil {
		return nil, skip, err
	}
	r := newRow(crmschema.ContactTag).
		set("contact_id", ct.ContactID.Int64).
		set("tag_id", ct.TagID.Int64)
	return r, nil, nil
}

// CompanyUser requires both sides and skips pairs already present in the
// target, so a pair is never written twice.
func (t *Transformer) CompanyUser(ctx context.Context, du legacy.DealershipUser) (*Row, *Skip, error) {
	skip, err := t.requireParents(ctx,
		parent{crmschema.Companies, "company_id", du.DealershipID},
		parent{crmschema.Users, "user_id", du.UserID},
	)
	if skip != nil || err != nil {
		return nil, skip, err
	}
	dup, err := t.check.PairExists(ctx, crmschema.CompanyUser,
		"company_id", du.DealershipID.Int64, "user_id", du.UserID.Int64)
	if err != nil {
		return nil, nil, err
	}
	if dup {
		return nil, &Skip{Reason: "pair already exists", Duplicate: true}, nil
	}
	r := newRow(crmschema.CompanyUser).
		set("company_id", du.DealershipID.Int64).
		set("user_id", du.UserID.Int64)
	return r, nil, nil
}

// OwnerKind classifies the owner of an attachable.
type OwnerKind int

const (
	OwnerUnknown OwnerKind = iota
	OwnerDealerEmail
)

// DealerEmailOwnerType is the attachable_type recorded for dealer emails.
const DealerEmailOwnerType = `App\Models\DealerEmail`

// AttachableOwner is the decoded polymorphic owner of an attachable.
type AttachableOwner struct {
	Kind OwnerKind
	Type string
	ID   int64
}

// Table returns the target table holding the owner, or "" when unknown.
func (o AttachableOwner) Table() string {
	if o.Kind == OwnerDealerEmail {
		return crmschema.DealerEmails
	}
	return ""
}

// OwnerOf decodes the owner of a legacy attachable.
func OwnerOf(a legacy.Attachable) AttachableOwner {
	o := AttachableOwner{Type: a.AttachableType, ID: a.AttachableID}
	if a.AttachableType == DealerEmailOwnerType {
		o.Kind = OwnerDealerEmail
	}
	return o
}
