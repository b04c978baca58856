package ui

import (
	"fmt"
	"strings"
)

// FormatError returns a styled error message with optional fix suggestions.
// When color is disabled, plain text is returned.
func FormatError(msg string, suggestions ...string) string {
	var b strings.Builder

	prefix := StyleBoldRed.Render("Error:")
	fmt.Fprintf(&b, "%s %s\n", prefix, msg)

	if len(suggestions) > 0 {
		b.WriteString("\n")
		b.WriteString(StyleHint.Render("  Try:") + "\n")
		for _, s := range suggestions {
			fmt.Fprintf(&b, "    %s %s\n", StyleHint.Render(SymbolArrow), s)
		}
	}

	return b.String()
}

// FormatWarning returns a styled single-line warning.
func FormatWarning(msg string) string {
	return fmt.Sprintf("%s %s\n", StyleWarning.Render(SymbolWarning), msg)
}
