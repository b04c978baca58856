package evolution

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/crmv2/crmv2/internal/crmschema"
)

// Options configures a Runner or a single ApplyStep call.
type Options struct {
	FallbackOrganizationID int64
	FallbackCompanyID      int64
	Logger                 *slog.Logger

	// inspector overrides the schema inspector in tests.
	inspector func(crmschema.Querier) crmschema.SchemaInspector
}

func (o Options) withDefaults() Options {
	if o.FallbackOrganizationID == 0 {
		o.FallbackOrganizationID = DefaultFallbackID
	}
	if o.FallbackCompanyID == 0 {
		o.FallbackCompanyID = DefaultFallbackID
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.inspector == nil {
		o.inspector = func(q crmschema.Querier) crmschema.SchemaInspector {
			return crmschema.NewInspector(crmschema.DialectPostgres, q)
		}
	}
	return o
}

func (o Options) env(tx crmschema.Querier) *Env {
	return &Env{
		Tx:                     tx,
		Inspector:              o.inspector(tx),
		FallbackOrganizationID: o.FallbackOrganizationID,
		FallbackCompanyID:      o.FallbackCompanyID,
		Logger:                 o.Logger,
	}
}

// Result is the outcome of one step applied by the Runner.
type Result struct {
	Version   int64         `json:"version"`
	Name      string        `json:"name"`
	Direction string        `json:"direction"`
	Duration  time.Duration `json:"durationNs"`
	// Empty is set when goose recorded the version without running anything.
	Empty bool `json:"empty,omitempty"`
}

// StepStatus reports whether a step has been applied.
type StepStatus struct {
	Version   int64     `json:"version"`
	Name      string    `json:"name"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"appliedAt,omitzero"`
}

// Runner applies the evolution steps through goose, which records applied
// versions in its goose_db_version table and runs each step in its own
// transaction.
type Runner struct {
	provider *goose.Provider
	names    map[int64]string
	logger   *slog.Logger
}

// NewRunner builds a Runner over db. Only Postgres targets are supported:
// the steps rely on ALTER COLUMN and ON CONFLICT.
func NewRunner(db *sql.DB, d crmschema.Dialect, opts Options) (*Runner, error) {
	if d != crmschema.DialectPostgres {
		return nil, fmt.Errorf("schema evolution supports postgres targets only, got %s", d)
	}
	opts = opts.withDefaults()
	steps := Steps()
	names := make(map[int64]string, len(steps))
	migrations := make([]*goose.Migration, 0, len(steps))
	for _, s := range steps {
		names[s.Version] = s.Name
		migrations = append(migrations, goMigration(s, opts))
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, nil,
		goose.WithGoMigrations(migrations...),
		goose.WithDisableGlobalRegistry(true),
	)
	if err != nil {
		return nil, fmt.Errorf("creating migration provider: %w", err)
	}
	return &Runner{provider: provider, names: names, logger: opts.Logger}, nil
}

func goMigration(s Step, opts Options) *goose.Migration {
	run := func(f func(context.Context, *Env) error, dir Direction) *goose.GoFunc {
		return &goose.GoFunc{RunTx: func(ctx context.Context, tx *sql.Tx) error {
			opts.Logger.Info("applying schema step", "step", s.Name, "version", s.Version, "direction", dir)
			if err := f(ctx, opts.env(tx)); err != nil {
				return fmt.Errorf("step %s (%s): %w", s.Name, dir, err)
			}
			return nil
		}}
	}
	return goose.NewGoMigration(s.Version, run(s.Up, DirectionUp), run(s.Down, DirectionDown))
}

// Up applies every pending step.
func (r *Runner) Up(ctx context.Context) ([]Result, error) {
	res, err := r.provider.Up(ctx)
	return r.results(res), err
}

// UpTo applies pending steps up to and including version.
func (r *Runner) UpTo(ctx context.Context, version int64) ([]Result, error) {
	res, err := r.provider.UpTo(ctx, version)
	return r.results(res), err
}

// Down reverts the most recently applied step.
func (r *Runner) Down(ctx context.Context) ([]Result, error) {
	res, err := r.provider.Down(ctx)
	if res == nil {
		return nil, err
	}
	return r.results([]*goose.MigrationResult{res}), err
}

// DownTo reverts applied steps newer than version. DownTo(ctx, 0) reverts
// them all.
func (r *Runner) DownTo(ctx context.Context, version int64) ([]Result, error) {
	res, err := r.provider.DownTo(ctx, version)
	return r.results(res), err
}

// Status lists every step with its applied state.
func (r *Runner) Status(ctx context.Context) ([]StepStatus, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading migration status: %w", err)
	}
	out := make([]StepStatus, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, StepStatus{
			Version:   st.Source.Version,
			Name:      r.names[st.Source.Version],
			Applied:   st.State == goose.StateApplied,
			AppliedAt: st.AppliedAt,
		})
	}
	return out, nil
}

// Version returns the newest applied step version, or 0.
func (r *Runner) Version(ctx context.Context) (int64, error) {
	return r.provider.GetDBVersion(ctx)
}

// Close releases the provider. The database handle stays open.
func (r *Runner) Close() error {
	return r.provider.Close()
}

func (r *Runner) results(in []*goose.MigrationResult) []Result {
	out := make([]Result, 0, len(in))
	for _, res := range in {
		if res == nil || res.Source == nil {
			continue
		}
		out = append(out, Result{
			Version:   res.Source.Version,
			Name:      r.names[res.Source.Version],
			Direction: res.Direction,
			Duration:  res.Duration,
			Empty:     res.Empty,
		})
	}
	return out
}

// ApplyStep runs one direction of step in its own transaction without
// recording it. Guarded steps make this safe to repeat.
func ApplyStep(ctx context.Context, db *sql.DB, step Step, dir Direction, opts Options) error {
	opts = opts.withDefaults()
	f := step.Up
	if dir == DirectionDown {
		f = step.Down
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	opts.Logger.Info("applying schema step", "step", step.Name, "version", step.Version, "direction", dir)
	if err := f(ctx, opts.env(tx)); err != nil {
		return fmt.Errorf("step %s (%s): %w", step.Name, dir, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing step %s: %w", step.Name, err)
	}
	return nil
}
