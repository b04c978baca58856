// Package ui holds the crmv2 CLI styles, symbols and terminal-aware helpers.
// Command output should use these definitions so it renders the same
// everywhere.
package ui

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Colors are ANSI 4-bit; lipgloss/termenv degrade them as needed.
var (
	ColorCyan   = lipgloss.Color("6")
	ColorGreen  = lipgloss.Color("2")
	ColorYellow = lipgloss.Color("3")
	ColorRed    = lipgloss.Color("1")
)

var (
	StyleBold     = lipgloss.NewStyle().Bold(true)
	StyleDim      = lipgloss.NewStyle().Faint(true)
	StyleBoldCyan = lipgloss.NewStyle().Bold(true).Foreground(ColorCyan)
	StyleBoldRed  = lipgloss.NewStyle().Bold(true).Foreground(ColorRed)

	StyleSuccess = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleError   = lipgloss.NewStyle().Foreground(ColorRed)

	StyleHint = lipgloss.NewStyle().Faint(true)
)

const (
	SymbolCheck   = "✓"
	SymbolCross   = "✗"
	SymbolWarning = "⚠"
	SymbolArrow   = "→"
)

var (
	forcedRenderer     *lipgloss.Renderer
	forcedRendererOnce sync.Once
)

// ForcedRenderer returns a renderer that always emits ANSI codes. Use it
// once the caller has already decided color is wanted; the default renderer
// strips codes whenever stderr is not a terminal.
func ForcedRenderer() *lipgloss.Renderer {
	forcedRendererOnce.Do(func() {
		forcedRenderer = lipgloss.NewRenderer(os.Stderr)
		forcedRenderer.SetColorProfile(termenv.ANSI)
	})
	return forcedRenderer
}

// ColorEnabled returns whether stderr is a TTY that supports color.
// Respects NO_COLOR (https://no-color.org/).
func ColorEnabled() bool {
	return ColorEnabledFd(os.Stderr.Fd())
}

// ColorEnabledFd returns whether the given fd supports color.
func ColorEnabledFd(fd uintptr) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return IsTerminal(fd)
}

// IsTerminal reports whether fd is an interactive terminal.
func IsTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
