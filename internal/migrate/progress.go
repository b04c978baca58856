// Package migrate provides shared infrastructure for crmv2 migration tools:
// progress reporting, source detection and pre/post-flight summaries.
package migrate

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Phase represents a named migration phase (e.g., "Users", "Contacts").
type Phase struct {
	Name  string // e.g., "Users", "Dealer emails", "Company users"
	Index int    // 1-based index (1 of 16)
	Total int    // total number of phases
}

// ProgressReporter receives progress updates from a migrator.
type ProgressReporter interface {
	// StartPhase is called when a new migration phase begins.
	StartPhase(phase Phase, totalItems int)
	// Progress is called as items are processed within a phase.
	Progress(phase Phase, completed int, totalItems int)
	// CompletePhase is called when a phase finishes.
	CompletePhase(phase Phase, totalItems int, elapsed time.Duration)
	// Warn reports a non-fatal warning.
	Warn(msg string)
}

// CLIReporter prints progress to a terminal writer.
type CLIReporter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewCLIReporter creates a reporter that writes to w.
func NewCLIReporter(w io.Writer) *CLIReporter {
	return &CLIReporter{w: w}
}

func (r *CLIReporter) StartPhase(phase Phase, totalItems int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "  [%2d/%d] %-24s", phase.Index, phase.Total, phase.Name)
}

func (r *CLIReporter) Progress(phase Phase, completed int, totalItems int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if totalItems > 0 {
		fmt.Fprintf(r.w, "\r  [%2d/%d] %-24s %d/%d",
			phase.Index, phase.Total, phase.Name, completed, totalItems)
	}
}

func (r *CLIReporter) CompletePhase(phase Phase, totalItems int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	label := fmt.Sprintf("%d rows", totalItems)
	if totalItems == 0 {
		label = "empty"
	}
	fmt.Fprintf(r.w, "\r  [%2d/%d] %-24s %-16s done  (%s)\n",
		phase.Index, phase.Total, phase.Name, label, formatDuration(elapsed))
}

func (r *CLIReporter) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "  Warning: %s\n", msg)
}

// NopReporter discards all progress updates (used in tests and --json mode).
type NopReporter struct{}

func (NopReporter) StartPhase(Phase, int)                   {}
func (NopReporter) Progress(Phase, int, int)                {}
func (NopReporter) CompletePhase(Phase, int, time.Duration) {}
func (NopReporter) Warn(string)                             {}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// SourceType identifies the kind of database behind a connection string.
type SourceType int

const (
	SourceUnknown  SourceType = iota
	SourceMySQL               // mysql:// URL (the legacy CRM's production engine)
	SourcePostgres            // postgres:// or postgresql:// URL
	SourceSQLite              // sqlite:// URL, file: URI or bare file path
)

func (s SourceType) String() string {
	switch s {
	case SourceMySQL:
		return "MySQL"
	case SourcePostgres:
		return "PostgreSQL"
	case SourceSQLite:
		return "SQLite"
	default:
		return "unknown"
	}
}

// DetectSource determines the database kind from a connection string.
//
// Detection rules:
//   - mysql:// URL → MySQL
//   - postgres:// or postgresql:// URL → Postgres
//   - sqlite:// URL or file: URI → SQLite
//   - Anything without a scheme is treated as a SQLite file path
//
// The filesystem is not consulted; the caller validates.
func DetectSource(from string) SourceType {
	switch {
	case strings.HasPrefix(from, "mysql://"):
		return SourceMySQL
	case strings.HasPrefix(from, "postgres://"), strings.HasPrefix(from, "postgresql://"):
		return SourcePostgres
	case strings.HasPrefix(from, "sqlite://"), strings.HasPrefix(from, "file:"):
		return SourceSQLite
	}
	if from != "" && !strings.Contains(from, "://") {
		return SourceSQLite
	}
	return SourceUnknown
}

// SQLitePath strips the sqlite:// or file: prefix and any query string,
// returning the database file path.
func SQLitePath(from string) string {
	p := strings.TrimPrefix(from, "sqlite://")
	p = strings.TrimPrefix(p, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

// RedactURL hides the password component of a connection URL for display.
func RedactURL(raw string) string {
	scheme := strings.Index(raw, "://")
	at := strings.LastIndex(raw, "@")
	if scheme < 0 || at < scheme {
		return raw
	}
	creds := raw[scheme+3 : at]
	if i := strings.IndexByte(creds, ':'); i >= 0 {
		creds = creds[:i] + ":****"
	}
	return raw[:scheme+3] + creds + raw[at:]
}

// TableCount is the row count of one source table.
type TableCount struct {
	Label string `json:"label"`
	Table string `json:"table"`
	Rows  int    `json:"rows"`
}

// AnalysisReport summarizes what a migration will do, shown before proceeding.
type AnalysisReport struct {
	SourceType string       `json:"sourceType"`
	SourceInfo string       `json:"sourceInfo"` // e.g., "mysql://crm:****@db:3306/crm"
	TargetInfo string       `json:"targetInfo"`
	Tables     []TableCount `json:"tables"`
	Records    int          `json:"records"`
	Fresh      bool         `json:"fresh"`
	DryRun     bool         `json:"dryRun"`
	Warnings   []string     `json:"warnings,omitempty"`
}

// Count returns the row count recorded for table, or 0.
func (r *AnalysisReport) Count(table string) int {
	for _, tc := range r.Tables {
		if tc.Table == table {
			return tc.Rows
		}
	}
	return 0
}

// PrintReport writes a formatted pre-flight report to w.
func (r *AnalysisReport) PrintReport(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  crmv2 Migration Report (%s source)\n", r.SourceType)
	fmt.Fprintln(w)
	if r.SourceInfo != "" {
		fmt.Fprintf(w, "  Source: %s\n", r.SourceInfo)
	}
	if r.TargetInfo != "" {
		fmt.Fprintf(w, "  Target: %s\n", r.TargetInfo)
	}
	fmt.Fprintln(w)

	for _, tc := range r.Tables {
		fmt.Fprintf(w, "  %-24s %8d\n", tc.Label+":", tc.Rows)
	}
	fmt.Fprintf(w, "  %-24s %8d\n", "Total rows:", r.Records)
	fmt.Fprintln(w)

	if r.Fresh {
		fmt.Fprintln(w, "  Mode: fresh (target tables are emptied first)")
	}
	if r.DryRun {
		fmt.Fprintln(w, "  Mode: dry run (changes are rolled back)")
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "  Warnings:")
		for _, w2 := range r.Warnings {
			fmt.Fprintf(w, "    - %s\n", w2)
		}
		fmt.Fprintln(w)
	}
}

// ValidationSummary compares source and target counts after migration.
type ValidationSummary struct {
	SourceLabel string          `json:"sourceLabel"`
	TargetLabel string          `json:"targetLabel"`
	Rows        []ValidationRow `json:"rows"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// ValidationRow is a single line in the validation summary. Every source row
// must be accounted for as either written or deliberately dropped.
type ValidationRow struct {
	Label       string `json:"label"`
	SourceCount int    `json:"sourceCount"`
	TargetCount int    `json:"targetCount"`
	Dropped     int    `json:"dropped"`
}

// Balanced reports whether every source row is accounted for.
func (r ValidationRow) Balanced() bool {
	return r.SourceCount == r.TargetCount+r.Dropped
}

// AllBalanced reports whether every row of the summary is balanced.
func (v *ValidationSummary) AllBalanced() bool {
	for _, row := range v.Rows {
		if !row.Balanced() {
			return false
		}
	}
	return true
}

// PrintSummary writes a formatted validation summary to w.
func (v *ValidationSummary) PrintSummary(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Validation Summary")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-24s %8s      %8s %8s\n", v.SourceLabel, "rows", v.TargetLabel, "dropped")
	fmt.Fprintf(w, "  %-24s %8s      %8s %8s\n",
		strings.Repeat("-", 20), strings.Repeat("-", 8), strings.Repeat("-", 8), strings.Repeat("-", 8))

	for _, row := range v.Rows {
		match := "ok"
		if !row.Balanced() {
			match = "MISMATCH"
		}
		fmt.Fprintf(w, "  %-24s %8d  ->  %8d %8d  %s\n",
			row.Label, row.SourceCount, row.TargetCount, row.Dropped, match)
	}
	fmt.Fprintln(w)

	if v.AllBalanced() {
		fmt.Fprintln(w, "  All rows accounted for.")
	}

	if len(v.Warnings) > 0 {
		fmt.Fprintln(w, "  Warnings:")
		for _, warn := range v.Warnings {
			fmt.Fprintf(w, "    - %s\n", warn)
		}
	}
	fmt.Fprintln(w)
}
