package legacy

import (
	"context"
	"fmt"
	"strings"

	"github.com/crmv2/crmv2/internal/crmschema"
)

// tableSpec lists the columns read from one legacy table. Optional columns
// are selected as NULL when the legacy schema predates them.
type tableSpec struct {
	table    string
	required []string
	optional []string
	orderBy  []string
}

var (
	userSpec = tableSpec{
		table:    crmschema.Users,
		required: []string{"id", "name", "email", "email_verified_at", "password", "remember_token", "created_at", "updated_at"},
		optional: []string{"phone", "timezone", "profile_photo_path", "two_factor_secret",
			"two_factor_recovery_codes", "two_factor_confirmed_at", "deleted_at"},
	}
	progressCategorySpec = tableSpec{
		table:    crmschema.ProgressCategories,
		required: []string{"id", "name", "created_at", "updated_at"},
	}
	dealershipSpec = tableSpec{
		table: crmschema.Dealerships,
		required: []string{"id", "user_id", "name", "address", "city", "state", "zip_code", "phone", "email",
			"current_solution_name", "current_solution_use", "notes", "status", "rating", "type",
			"in_development", "dev_status", "created_at", "updated_at"},
	}
	contactSpec = tableSpec{
		table: crmschema.Contacts,
		required: []string{"id", "dealership_id", "name", "email", "phone", "position", "linkedin_link",
			"primary_contact", "created_at", "updated_at"},
	}
	storeSpec = tableSpec{
		table: crmschema.Stores,
		required: []string{"id", "user_id", "dealership_id", "name", "address", "city", "state", "zip_code",
			"phone", "current_solution_name", "current_solution_use", "notes", "created_at", "updated_at"},
	}
	progressSpec = tableSpec{
		table: crmschema.Progresses,
		required: []string{"id", "user_id", "dealership_id", "contact_id", "progress_category_id", "details",
			"date", "created_at", "updated_at"},
	}
	dealerEmailTemplateSpec = tableSpec{
		table: crmschema.DealerEmailTemplates,
		required: []string{"id", "name", "subject", "body", "attachment_path", "attachment_name",
			"created_at", "updated_at"},
	}
	dealerEmailSpec = tableSpec{
		table: crmschema.DealerEmails,
		required: []string{"id", "user_id", "dealership_id", "dealer_email_template_id", "customize_email",
			"customize_attachment", "recipients", "attachment", "subject", "message", "start_date",
			"last_sent", "next_send_date", "frequency", "paused", "created_at", "updated_at"},
	}
	sentEmailSpec = tableSpec{
		table: crmschema.SentEmails,
		required: []string{"id", "user_id", "dealership_id", "recipient", "message_id", "subject",
			"tracking_data", "created_at", "updated_at"},
	}
	emailTrackingEventSpec = tableSpec{
		table: crmschema.EmailTrackingEvents,
		required: []string{"id", "sent_email_id", "event_type", "message_id", "recipient_email", "url",
			"user_agent", "ip_address", "mailgun_data", "event_timestamp", "created_at", "updated_at"},
	}
	pdfAttachmentSpec = tableSpec{
		table:    crmschema.PdfAttachments,
		required: []string{"id", "file_name", "file_path", "created_at", "updated_at"},
	}
	attachableSpec = tableSpec{
		table: crmschema.Attachables,
		required: []string{"id", "pdf_attachment_id", "attachable_id", "attachable_type",
			"created_at", "updated_at"},
	}
	reminderSpec = tableSpec{
		table: crmschema.Reminders,
		required: []string{"id", "user_id", "dev_rel", "title", "message", "start_date", "last_sent",
			"sending_frequency", "pause", "created_at", "updated_at"},
	}
	tagSpec = tableSpec{
		table:    crmschema.Tags,
		required: []string{"id", "name", "created_at", "updated_at"},
	}
	contactTagSpec = tableSpec{
		table:    crmschema.ContactTag,
		required: []string{"contact_id", "tag_id"},
		orderBy:  []string{"contact_id", "tag_id"},
	}
	dealershipUserSpec = tableSpec{
		table:    crmschema.DealershipUser,
		required: []string{"dealership_id", "user_id"},
		orderBy:  []string{"dealership_id", "user_id"},
	}
)

// selectQuery renders the SELECT for spec against this source's schema.
func (s *Source) selectQuery(ctx context.Context, spec tableSpec) (string, error) {
	cols := make([]string, 0, len(spec.required)+len(spec.optional))
	for _, c := range spec.required {
		cols = append(cols, s.dialect.Quote(c))
	}
	for _, c := range spec.optional {
		ok, err := s.columnExists(ctx, spec.table, c)
		if err != nil {
			return "", err
		}
		if ok {
			cols = append(cols, s.dialect.Quote(c))
		} else {
			cols = append(cols, "NULL AS "+s.dialect.Quote(c))
		}
	}
	order := spec.orderBy
	if len(order) == 0 {
		order = []string{"id"}
	}
	quotedOrder := make([]string, len(order))
	for i, c := range order {
		quotedOrder[i] = s.dialect.Quote(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "), s.dialect.Quote(spec.table), strings.Join(quotedOrder, ", ")), nil
}

// readAll loads every row of spec.table in primary key order.
func readAll[T any](ctx context.Context, s *Source, spec tableSpec) ([]T, error) {
	q, err := s.selectQuery(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("building query for legacy %s: %w", spec.table, err)
	}
	var rows []T
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("reading legacy %s: %w", spec.table, err)
	}
	return rows, nil
}

func (s *Source) Users(ctx context.Context) ([]User, error) {
	return readAll[User](ctx, s, userSpec)
}

func (s *Source) ProgressCategories(ctx context.Context) ([]ProgressCategory, error) {
	return readAll[ProgressCategory](ctx, s, progressCategorySpec)
}

func (s *Source) Dealerships(ctx context.Context) ([]Dealership, error) {
	return readAll[Dealership](ctx, s, dealershipSpec)
}

func (s *Source) Contacts(ctx context.Context) ([]Contact, error) {
	return readAll[Contact](ctx, s, contactSpec)
}

func (s *Source) Stores(ctx context.Context) ([]Store, error) {
	return readAll[Store](ctx, s, storeSpec)
}

func (s *Source) Progresses(ctx context.Context) ([]Progress, error) {
	return readAll[Progress](ctx, s, progressSpec)
}

func (s *Source) DealerEmailTemplates(ctx context.Context) ([]DealerEmailTemplate, error) {
	return readAll[DealerEmailTemplate](ctx, s, dealerEmailTemplateSpec)
}

func (s *Source) DealerEmails(ctx context.Context) ([]DealerEmail, error) {
	return readAll[DealerEmail](ctx, s, dealerEmailSpec)
}

func (s *Source) SentEmails(ctx context.Context) ([]SentEmail, error) {
	return readAll[SentEmail](ctx, s, sentEmailSpec)
}

func (s *Source) EmailTrackingEvents(ctx context.Context) ([]EmailTrackingEvent, error) {
	return readAll[EmailTrackingEvent](ctx, s, emailTrackingEventSpec)
}

func (s *Source) PdfAttachments(ctx context.Context) ([]PdfAttachment, error) {
	return readAll[PdfAttachment](ctx, s, pdfAttachmentSpec)
}

func (s *Source) Attachables(ctx context.Context) ([]Attachable, error) {
	return readAll[Attachable](ctx, s, attachableSpec)
}

func (s *Source) Reminders(ctx context.Context) ([]Reminder, error) {
	return readAll[Reminder](ctx, s, reminderSpec)
}

func (s *Source) Tags(ctx context.Context) ([]Tag, error) {
	return readAll[Tag](ctx, s, tagSpec)
}

func (s *Source) ContactTags(ctx context.Context) ([]ContactTag, error) {
	return readAll[ContactTag](ctx, s, contactTagSpec)
}

func (s *Source) DealershipUsers(ctx context.Context) ([]DealershipUser, error) {
	return readAll[DealershipUser](ctx, s, dealershipUserSpec)
}
