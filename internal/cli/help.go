package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Command group IDs of the root command.
const (
	groupMigrate = "migrate"
	groupConfig  = "config"
)

var commandGroups = map[string]string{
	"migrate": groupMigrate,
	"config":  groupConfig,
	"init":    groupConfig,
	"version": groupConfig,
}

// initHelp groups the root commands and installs the styled help renderer.
func initHelp() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupMigrate, Title: "MIGRATIONS"},
		&cobra.Group{ID: groupConfig, Title: "CONFIGURATION"},
	)
	for _, cmd := range rootCmd.Commands() {
		cmd.GroupID = commandGroups[cmd.Name()]
	}
	rootCmd.SetHelpFunc(styledHelp)
	rootCmd.SetUsageFunc(func(cmd *cobra.Command) error {
		styledHelp(cmd, nil)
		return nil
	})
}

// helpWriter renders help sections to stderr, colored when the terminal
// allows it.
type helpWriter struct {
	w     io.Writer
	color bool
}

func (h helpWriter) section(title string, body func()) {
	fmt.Fprintln(h.w, boldCyan(title, h.color))
	body()
	fmt.Fprintln(h.w)
}

func styledHelp(cmd *cobra.Command, _ []string) {
	h := helpWriter{w: cmd.ErrOrStderr(), color: colorEnabled()}

	fmt.Fprintln(h.w)
	if cmd == rootCmd {
		fmt.Fprintf(h.w, "  %s\n\n", boldCyan("crmv2", h.color))
	}
	desc := cmd.Long
	if desc == "" {
		desc = cmd.Short
	}
	for _, line := range strings.Split(desc, "\n") {
		switch {
		case strings.TrimSpace(line) == "":
			fmt.Fprintln(h.w)
		case strings.HasPrefix(line, "  "):
			fmt.Fprintf(h.w, "    %s\n", green(strings.TrimSpace(line), h.color))
		default:
			fmt.Fprintf(h.w, "  %s\n", line)
		}
	}
	fmt.Fprintln(h.w)

	h.section("USAGE", func() {
		use := cmd.UseLine()
		if cmd.HasAvailableSubCommands() {
			use = cmd.CommandPath() + " [command]"
		}
		fmt.Fprintf(h.w, "  %s\n", use)
	})

	if cmd.Example != "" {
		h.section("EXAMPLES", func() {
			for _, line := range strings.Split(cmd.Example, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					fmt.Fprintf(h.w, "  %s\n", green(line, h.color))
				}
			}
		})
	}

	if cmd.HasAvailableSubCommands() {
		if cmd == rootCmd {
			for _, g := range cmd.Groups() {
				h.commands(g.Title, cmd, g.ID)
			}
		} else {
			h.commands("COMMANDS", cmd, "")
		}
	}

	if cmd == rootCmd {
		h.flags("FLAGS", cmd.Flags())
	} else {
		h.flags("FLAGS", cmd.LocalNonPersistentFlags())
		h.flags("GLOBAL FLAGS", cmd.InheritedFlags())
	}

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(h.w, "%s\n\n", dim(fmt.Sprintf("Use \"%s [command] --help\" for more about a command.", cmd.CommandPath()), h.color))
	}
}

// commands lists the available subcommands of cmd in group (all of them
// when group is empty) with aligned descriptions.
func (h helpWriter) commands(title string, cmd *cobra.Command, group string) {
	var subs []*cobra.Command
	width := 0
	for _, sub := range cmd.Commands() {
		if !sub.IsAvailableCommand() || (group != "" && sub.GroupID != group) {
			continue
		}
		subs = append(subs, sub)
		width = max(width, len(sub.Name()))
	}
	if len(subs) == 0 {
		return
	}
	h.section(title, func() {
		for _, sub := range subs {
			fmt.Fprintf(h.w, "  %s%s\n", bold(fmt.Sprintf("%-*s", width+4, sub.Name()), h.color), dim(sub.Short, h.color))
		}
	})
}

// flags prints fs through pflag's aligned usages, coloring the flag column.
func (h helpWriter) flags(title string, fs *pflag.FlagSet) {
	usage := strings.TrimRight(fs.FlagUsages(), "\n")
	if strings.TrimSpace(usage) == "" {
		return
	}
	h.section(title, func() {
		for _, line := range strings.Split(usage, "\n") {
			fmt.Fprintln(h.w, h.flagLine(line))
		}
	})
}

// flagLine colors one pflag usage line. pflag separates the flag column
// from the description with at least three spaces.
func (h helpWriter) flagLine(line string) string {
	if !h.color {
		return line
	}
	body := strings.TrimLeft(line, " ")
	indent := line[:len(line)-len(body)]
	name, desc, ok := strings.Cut(body, "   ")
	if !ok {
		return indent + cyan(body, true)
	}
	return indent + cyan(name, true) + "   " + dim(strings.TrimLeft(desc, " "), true)
}
