package cli

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/crmv2/crmv2/internal/cli/ui"
	"github.com/crmv2/crmv2/internal/crmmigrate"
	"github.com/crmv2/crmv2/internal/evolution"
)

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// FormatError renders err for the terminal with hints for the errors an
// operator can fix. A fatal migration error carries the stack recorded at
// the failure site; it is always appended.
func FormatError(err error) string {
	out := ui.FormatError(err.Error(), suggestions(err)...)
	var st stackTracer
	if !errors.As(err, &st) {
		return out
	}
	var b strings.Builder
	b.WriteString(out)
	b.WriteString(ui.StyleHint.Render("  Stack:"))
	fmt.Fprintf(&b, "%+v\n", st.StackTrace())
	return b.String()
}

func suggestions(err error) []string {
	msg := err.Error()
	var nulls *evolution.RemainingNullsError
	switch {
	case errors.Is(err, crmmigrate.ErrMissingFallbackOrganization):
		return []string{
			"crmv2 migrate data --create-organization",
			"crmv2 migrate data --fallback-organization-id <existing id>",
		}
	case errors.As(err, &nulls):
		return []string{
			fmt.Sprintf("fill %s.%s by hand, then rerun the step", nulls.Table, nulls.Column),
			"crmv2 migrate schema up --fallback-company-id <existing id>",
		}
	case strings.Contains(msg, "migrate schema up"):
		return []string{"crmv2 migrate schema init", "crmv2 migrate schema up"}
	case strings.Contains(msg, "--fresh"):
		return []string{"crmv2 migrate data --fresh", "crmv2 migrate data --force"}
	case strings.Contains(msg, "database URL is required"):
		return []string{"pass --source-url and --database-url", "set source.url and target.url in crmv2.toml"}
	}
	return nil
}
