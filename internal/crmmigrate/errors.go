package crmmigrate

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrCancelled is returned when the operator declines the fresh-mode
// confirmation. Nothing has been touched.
var ErrCancelled = errors.New("migration cancelled")

// ErrMissingFallbackOrganization is returned when the organization every
// migrated company is assigned to does not exist in the target.
var ErrMissingFallbackOrganization = errors.New("fallback organization not found")

// StepError identifies the entity step, and the legacy row when known, at
// which a migration run failed.
type StepError struct {
	Entity Entity
	// LegacyKey is the legacy primary key ("42") or pivot pair ("3/7").
	LegacyKey string
	Err       error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("migrating %s", e.Entity)
	if e.LegacyKey != "" {
		msg += fmt.Sprintf(" (legacy row %s)", e.LegacyKey)
	}
	if hint := constraintHint(e.Err); hint != "" {
		msg += ": " + hint
	}
	return msg + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error { return e.Err }

// constraintHint flags Postgres integrity violations the skip policy does not
// cover. They stay fatal.
func constraintHint(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	switch pgErr.Code {
	case "23503":
		return "foreign key violation not covered by the skip policy"
	case "23505":
		return "unique violation not covered by the skip policy"
	case "23502":
		return "not-null violation not covered by the skip policy"
	}
	return ""
}
