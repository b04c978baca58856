package legacy

import "database/sql"

// Rows read from the legacy CRM. Foreign keys are nullable throughout because
// the legacy schema never enforced them; the transformer decides what a
// missing parent means.

type User struct {
	ID                     int64          `db:"id"`
	Name                   string         `db:"name"`
	Email                  string         `db:"email"`
	Phone                  sql.NullString `db:"phone"`
	EmailVerifiedAt        sql.NullTime   `db:"email_verified_at"`
	Password               string         `db:"password"`
	Timezone               sql.NullString `db:"timezone"`
	ProfilePhotoPath       sql.NullString `db:"profile_photo_path"`
	TwoFactorSecret        sql.NullString `db:"two_factor_secret"`
	TwoFactorRecoveryCodes sql.NullString `db:"two_factor_recovery_codes"`
	TwoFactorConfirmedAt   sql.NullTime   `db:"two_factor_confirmed_at"`
	RememberToken          sql.NullString `db:"remember_token"`
	CreatedAt              sql.NullTime   `db:"created_at"`
	UpdatedAt              sql.NullTime   `db:"updated_at"`
	DeletedAt              sql.NullTime   `db:"deleted_at"`
}

type ProgressCategory struct {
	ID        int64        `db:"id"`
	Name      string       `db:"name"`
	CreatedAt sql.NullTime `db:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at"`
}

// Dealership is the legacy shape of a company.
type Dealership struct {
	ID                  int64          `db:"id"`
	UserID              sql.NullInt64  `db:"user_id"`
	Name                string         `db:"name"`
	Address             sql.NullString `db:"address"`
	City                sql.NullString `db:"city"`
	State               sql.NullString `db:"state"`
	ZipCode             sql.NullString `db:"zip_code"`
	Phone               sql.NullString `db:"phone"`
	Email               sql.NullString `db:"email"`
	CurrentSolutionName sql.NullString `db:"current_solution_name"`
	CurrentSolutionUse  sql.NullString `db:"current_solution_use"`
	Notes               sql.NullString `db:"notes"`
	Status              string         `db:"status"`
	Rating              string         `db:"rating"`
	Type                string         `db:"type"`
	InDevelopment       sql.NullBool   `db:"in_development"`
	DevStatus           sql.NullString `db:"dev_status"`
	CreatedAt           sql.NullTime   `db:"created_at"`
	UpdatedAt           sql.NullTime   `db:"updated_at"`
}

type Contact struct {
	ID             int64          `db:"id"`
	DealershipID   sql.NullInt64  `db:"dealership_id"`
	Name           string         `db:"name"`
	Email          sql.NullString `db:"email"`
	Phone          sql.NullString `db:"phone"`
	Position       sql.NullString `db:"position"`
	LinkedinLink   sql.NullString `db:"linkedin_link"`
	PrimaryContact sql.NullBool   `db:"primary_contact"`
	CreatedAt      sql.NullTime   `db:"created_at"`
	UpdatedAt      sql.NullTime   `db:"updated_at"`
}

type Store struct {
	ID                  int64          `db:"id"`
	UserID              sql.NullInt64  `db:"user_id"`
	DealershipID        sql.NullInt64  `db:"dealership_id"`
	Name                string         `db:"name"`
	Address             sql.NullString `db:"address"`
	City                sql.NullString `db:"city"`
	State               sql.NullString `db:"state"`
	ZipCode             sql.NullString `db:"zip_code"`
	Phone               sql.NullString `db:"phone"`
	CurrentSolutionName sql.NullString `db:"current_solution_name"`
	CurrentSolutionUse  sql.NullString `db:"current_solution_use"`
	Notes               sql.NullString `db:"notes"`
	CreatedAt           sql.NullTime   `db:"created_at"`
	UpdatedAt           sql.NullTime   `db:"updated_at"`
}

type Progress struct {
	ID                 int64         `db:"id"`
	UserID             sql.NullInt64 `db:"user_id"`
	DealershipID       sql.NullInt64 `db:"dealership_id"`
	ContactID          sql.NullInt64 `db:"contact_id"`
	ProgressCategoryID sql.NullInt64 `db:"progress_category_id"`
	Details            string        `db:"details"`
	Date               sql.NullTime  `db:"date"`
	CreatedAt          sql.NullTime  `db:"created_at"`
	UpdatedAt          sql.NullTime  `db:"updated_at"`
}

type DealerEmailTemplate struct {
	ID             int64          `db:"id"`
	Name           string         `db:"name"`
	Subject        string         `db:"subject"`
	Body           string         `db:"body"`
	AttachmentPath sql.NullString `db:"attachment_path"`
	AttachmentName sql.NullString `db:"attachment_name"`
	CreatedAt      sql.NullTime   `db:"created_at"`
	UpdatedAt      sql.NullTime   `db:"updated_at"`
}

type DealerEmail struct {
	ID                    int64          `db:"id"`
	UserID                sql.NullInt64  `db:"user_id"`
	DealershipID          sql.NullInt64  `db:"dealership_id"`
	DealerEmailTemplateID sql.NullInt64  `db:"dealer_email_template_id"`
	CustomizeEmail        sql.NullBool   `db:"customize_email"`
	CustomizeAttachment   sql.NullBool   `db:"customize_attachment"`
	Recipients            string         `db:"recipients"` // JSON array
	Attachment            sql.NullString `db:"attachment"`
	Subject               sql.NullString `db:"subject"`
	Message               sql.NullString `db:"message"`
	StartDate             sql.NullTime   `db:"start_date"`
	LastSent              sql.NullTime   `db:"last_sent"`
	NextSendDate          sql.NullTime   `db:"next_send_date"`
	Frequency             sql.NullInt64  `db:"frequency"`
	Paused                sql.NullBool   `db:"paused"`
	CreatedAt             sql.NullTime   `db:"created_at"`
	UpdatedAt             sql.NullTime   `db:"updated_at"`
}

type SentEmail struct {
	ID           int64          `db:"id"`
	UserID       sql.NullInt64  `db:"user_id"`
	DealershipID sql.NullInt64  `db:"dealership_id"`
	Recipient    string         `db:"recipient"`
	MessageID    sql.NullString `db:"message_id"`
	Subject      sql.NullString `db:"subject"`
	TrackingData sql.NullString `db:"tracking_data"` // JSON
	CreatedAt    sql.NullTime   `db:"created_at"`
	UpdatedAt    sql.NullTime   `db:"updated_at"`
}

type EmailTrackingEvent struct {
	ID             int64          `db:"id"`
	SentEmailID    sql.NullInt64  `db:"sent_email_id"`
	EventType      string         `db:"event_type"`
	MessageID      sql.NullString `db:"message_id"`
	RecipientEmail sql.NullString `db:"recipient_email"`
	URL            sql.NullString `db:"url"`
	UserAgent      sql.NullString `db:"user_agent"`
	IPAddress      sql.NullString `db:"ip_address"`
	MailgunData    sql.NullString `db:"mailgun_data"` // JSON
	EventTimestamp sql.NullTime   `db:"event_timestamp"`
	CreatedAt      sql.NullTime   `db:"created_at"`
	UpdatedAt      sql.NullTime   `db:"updated_at"`
}

type PdfAttachment struct {
	ID        int64        `db:"id"`
	FileName  string       `db:"file_name"`
	FilePath  string       `db:"file_path"`
	CreatedAt sql.NullTime `db:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at"`
}

// Attachable links a pdf attachment to a polymorphic owner.
type Attachable struct {
	ID              int64         `db:"id"`
	PdfAttachmentID sql.NullInt64 `db:"pdf_attachment_id"`
	AttachableID    int64         `db:"attachable_id"`
	AttachableType  string        `db:"attachable_type"`
	CreatedAt       sql.NullTime  `db:"created_at"`
	UpdatedAt       sql.NullTime  `db:"updated_at"`
}

type Reminder struct {
	ID               int64          `db:"id"`
	UserID           int64          `db:"user_id"`
	DevRel           sql.NullBool   `db:"dev_rel"`
	Title            string         `db:"title"`
	Message          sql.NullString `db:"message"`
	StartDate        sql.NullTime   `db:"start_date"`
	LastSent         sql.NullTime   `db:"last_sent"`
	SendingFrequency sql.NullInt64  `db:"sending_frequency"`
	Pause            sql.NullBool   `db:"pause"`
	CreatedAt        sql.NullTime   `db:"created_at"`
	UpdatedAt        sql.NullTime   `db:"updated_at"`
}

type Tag struct {
	ID        int64        `db:"id"`
	Name      string       `db:"name"`
	CreatedAt sql.NullTime `db:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at"`
}

type ContactTag struct {
	ContactID sql.NullInt64 `db:"contact_id"`
	TagID     sql.NullInt64 `db:"tag_id"`
}

type DealershipUser struct {
	DealershipID sql.NullInt64 `db:"dealership_id"`
	UserID       sql.NullInt64 `db:"user_id"`
}
