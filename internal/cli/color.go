package cli

import (
	"github.com/crmv2/crmv2/internal/cli/ui"
)

// colorEnabled returns true if stderr is a terminal and color should be used.
func colorEnabled() bool {
	return ui.ColorEnabled()
}

// The helpers below render through the forced-ANSI renderer: the caller has
// already made the TTY decision through the color parameter.

func bold(text string, color bool) string {
	if !color {
		return text
	}
	return ui.ForcedRenderer().NewStyle().Bold(true).Render(text)
}

func dim(text string, color bool) string {
	if !color {
		return text
	}
	return ui.ForcedRenderer().NewStyle().Faint(true).Render(text)
}

func cyan(text string, color bool) string {
	if !color {
		return text
	}
	return ui.ForcedRenderer().NewStyle().Foreground(ui.ColorCyan).Render(text)
}

func green(text string, color bool) string {
	if !color {
		return text
	}
	return ui.ForcedRenderer().NewStyle().Foreground(ui.ColorGreen).Render(text)
}

func boldCyan(text string, color bool) string {
	if !color {
		return text
	}
	return ui.ForcedRenderer().NewStyle().Bold(true).Foreground(ui.ColorCyan).Render(text)
}
