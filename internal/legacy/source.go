// Package legacy reads the legacy CRM database. It never writes: every query
// is a SELECT and SQLite sources are opened read-only.
package legacy

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/crmv2/crmv2/internal/crmschema"
	"github.com/crmv2/crmv2/internal/migrate"
)

// Options tune how legacy rows are interpreted.
type Options struct {
	// AdminRole is the roles.name that marks an administrator.
	AdminRole string
	// UserModelType is the model_has_roles.model_type recorded for users.
	UserModelType string
}

const (
	DefaultAdminRole     = "admin"
	DefaultUserModelType = `App\Models\User`
)

// Source is a read-only handle on the legacy CRM database.
type Source struct {
	db        *sqlx.DB
	dialect   crmschema.Dialect
	inspector crmschema.SchemaInspector
	opts      Options

	columns  map[string]bool
	admins   map[int64]bool
	warnings []string
}

// Open connects to the legacy database behind rawURL (mysql://, postgres://
// or a SQLite path) and verifies the connection.
func Open(ctx context.Context, rawURL string, opts Options) (*Source, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch migrate.DetectSource(rawURL) {
	case migrate.SourceMySQL:
		var dsn string
		dsn, err = MySQLDSN(rawURL)
		if err != nil {
			return nil, err
		}
		db, err = sqlx.Open("mysql", dsn)
	case migrate.SourcePostgres:
		db, err = sqlx.Open("pgx", rawURL)
	case migrate.SourceSQLite:
		path := migrate.SQLitePath(rawURL)
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, fmt.Errorf("legacy database file: %w", statErr)
		}
		db, err = sqlx.Open("sqlite", crmschema.SQLiteDSN(path, true))
	default:
		return nil, fmt.Errorf("unsupported legacy database URL %q (expected mysql://, postgres:// or a SQLite path)",
			migrate.RedactURL(rawURL))
	}
	if err != nil {
		return nil, fmt.Errorf("opening legacy database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to legacy database: %w", err)
	}
	return NewSource(db, opts), nil
}

// NewSource wraps an open handle. The dialect is derived from the driver name.
func NewSource(db *sqlx.DB, opts Options) *Source {
	if opts.AdminRole == "" {
		opts.AdminRole = DefaultAdminRole
	}
	if opts.UserModelType == "" {
		opts.UserModelType = DefaultUserModelType
	}
	var d crmschema.Dialect
	switch db.DriverName() {
	case "mysql":
		d = crmschema.DialectMySQL
	case "sqlite", "sqlite3":
		d = crmschema.DialectSQLite
	default:
		d = crmschema.DialectPostgres
	}
	return &Source{
		db:        db,
		dialect:   d,
		inspector: crmschema.NewInspector(d, db),
		opts:      opts,
		columns:   make(map[string]bool),
	}
}

// MySQLDSN converts a mysql:// URL into a go-sql-driver DSN. parseTime is
// always enabled so DATETIME columns scan into time values.
func MySQLDSN(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing mysql URL: %w", err)
	}
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = net.JoinHostPort(u.Hostname(), "3306")
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if cfg.DBName == "" {
		return "", fmt.Errorf("mysql URL %q has no database name", migrate.RedactURL(rawURL))
	}
	for k, v := range u.Query() {
		if k == "parseTime" || len(v) == 0 {
			continue
		}
		if cfg.Params == nil {
			cfg.Params = make(map[string]string)
		}
		cfg.Params[k] = v[0]
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// Close closes the underlying connection pool.
func (s *Source) Close() error {
	return s.db.Close()
}

// Dialect reports the SQL flavour of the source.
func (s *Source) Dialect() crmschema.Dialect {
	return s.dialect
}

// Warnings returns non-fatal findings collected while reading.
func (s *Source) Warnings() []string {
	return s.warnings
}

// TableExists reports whether the legacy database has table.
func (s *Source) TableExists(ctx context.Context, table string) (bool, error) {
	return s.inspector.TableExists(ctx, table)
}

// Count returns the number of rows in a legacy table.
func (s *Source) Count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+s.dialect.Quote(table)); err != nil {
		return 0, fmt.Errorf("counting legacy %s: %w", table, err)
	}
	return n, nil
}

// columnExists caches column lookups for the lifetime of the source.
func (s *Source) columnExists(ctx context.Context, table, column string) (bool, error) {
	key := table + "." + column
	if v, ok := s.columns[key]; ok {
		return v, nil
	}
	exists, err := s.inspector.ColumnExists(ctx, table, column)
	if err != nil {
		return false, err
	}
	s.columns[key] = exists
	return exists, nil
}

// IsAdmin reports whether the legacy user holds the configured admin role.
// Role assignments are loaded once; a database without model_has_roles has
// no admins.
func (s *Source) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if s.admins == nil {
		if err := s.loadAdmins(ctx); err != nil {
			return false, err
		}
	}
	return s.admins[userID], nil
}

func (s *Source) loadAdmins(ctx context.Context) error {
	s.admins = make(map[int64]bool)
	for _, table := range []string{crmschema.ModelHasRoles, crmschema.Roles} {
		ok, err := s.inspector.TableExists(ctx, table)
		if err != nil {
			return err
		}
		if !ok {
			s.warnings = append(s.warnings,
				fmt.Sprintf("legacy %s table not found; no user is marked admin", table))
			return nil
		}
	}

	var ids []int64
	q := s.db.Rebind(`SELECT mhr.model_id FROM model_has_roles mhr
		JOIN roles r ON mhr.role_id = r.id
		WHERE mhr.model_type = ? AND r.name = ?`)
	if err := s.db.SelectContext(ctx, &ids, q, s.opts.UserModelType, s.opts.AdminRole); err != nil {
		return fmt.Errorf("reading admin role assignments: %w", err)
	}
	for _, id := range ids {
		s.admins[id] = true
	}
	return nil
}
