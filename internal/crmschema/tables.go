// Package crmschema describes the crmv2 database contract shared by the data
// migration and the schema evolution steps: table names, SQL dialects, schema
// introspection and the embedded baseline DDL.
package crmschema

// Target tables.
const (
	Organizations        = "organizations"
	Users                = "users"
	ProgressCategories   = "progress_categories"
	Companies            = "companies"
	Contacts             = "contacts"
	Stores               = "stores"
	Progresses           = "progresses"
	DealerEmailTemplates = "dealer_email_templates"
	DealerEmails         = "dealer_emails"
	SentEmails           = "sent_emails"
	EmailTrackingEvents  = "email_tracking_events"
	PdfAttachments       = "pdf_attachments"
	Attachables          = "attachables"
	Reminders            = "reminders"
	Tags                 = "tags"
	ContactTag           = "contact_tag"
	CompanyUser          = "company_user"
)

// Legacy-only tables. Dealerships became companies; dealership_user became
// company_user.
const (
	Dealerships    = "dealerships"
	DealershipUser = "dealership_user"
	ModelHasRoles  = "model_has_roles"
	Roles          = "roles"
)

// TruncationOrder is the order in which fresh mode empties target tables:
// pivots and leaves first, users last.
var TruncationOrder = []string{
	CompanyUser,
	DealershipUser,
	ContactTag,
	Attachables,
	EmailTrackingEvents,
	SentEmails,
	DealerEmails,
	DealerEmailTemplates,
	Progresses,
	Stores,
	Contacts,
	Companies,
	Dealerships,
	ProgressCategories,
	Reminders,
	Tags,
	PdfAttachments,
	Users,
}

// SequenceTables lists target tables whose bigserial id is written explicitly
// by the data migration and therefore needs its sequence advanced afterwards.
var SequenceTables = []string{
	Users,
	ProgressCategories,
	Companies,
	Contacts,
	Stores,
	Progresses,
	DealerEmailTemplates,
	DealerEmails,
	SentEmails,
	EmailTrackingEvents,
	PdfAttachments,
	Attachables,
	Reminders,
	Tags,
}
