package crmschema

import (
	"context"
	"embed"
	"fmt"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Baseline returns the crmv2 target DDL for d.
func Baseline(d Dialect) (string, error) {
	return readSchema("", d)
}

// LegacyBaseline returns the legacy CRM DDL for d. Used to stage legacy
// fixtures; the production legacy database is MySQL and is never created here.
func LegacyBaseline(d Dialect) (string, error) {
	return readSchema("legacy_", d)
}

func readSchema(prefix string, d Dialect) (string, error) {
	if d != DialectPostgres && d != DialectSQLite {
		return "", fmt.Errorf("no %sschema for dialect %s", prefix, d)
	}
	b, err := schemaFS.ReadFile("schema/" + prefix + d.String() + ".sql")
	if err != nil {
		return "", fmt.Errorf("reading embedded schema: %w", err)
	}
	return string(b), nil
}

// ApplyDDL executes a semicolon-terminated DDL script statement by statement.
// Scripts must not contain semicolons inside statements.
func ApplyDDL(ctx context.Context, q Querier, ddl string) error {
	for _, stmt := range SplitStatements(ddl) {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// SplitStatements splits a DDL script into statements, dropping comment lines.
func SplitStatements(ddl string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, line := range strings.Split(ddl, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSuffix(strings.TrimSpace(cur.String()), ";")
			out = append(out, stmt)
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
