package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/crmv2/crmv2/internal/cli/ui"
	"github.com/crmv2/crmv2/internal/config"
	"github.com/crmv2/crmv2/internal/crmschema"
	"github.com/crmv2/crmv2/internal/evolution"
)

var migrateSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Evolve the crmv2 schema from dealerships to companies",
	Long: `Apply or revert the schema evolution steps. Each step runs in its own
transaction and is recorded in goose_db_version; a step that fails leaves
its tables untouched.

Steps are guarded, so a step can be re-run with --step even when it is
already recorded. Only PostgreSQL targets are supported, except for init.`,
}

var migrateSchemaUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending schema steps",
	Example: `  crmv2 migrate schema up
  crmv2 migrate schema up --to 20260203121500
  crmv2 migrate schema up --step stores_company`,
	Args: cobra.NoArgs,
	RunE: runMigrateSchemaUp,
}

var migrateSchemaDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the newest schema step",
	Example: `  crmv2 migrate schema down
  crmv2 migrate schema down --to 0
  crmv2 migrate schema down --step drop_dealership_user`,
	Args: cobra.NoArgs,
	RunE: runMigrateSchemaDown,
}

var migrateSchemaStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List schema steps and whether they are applied",
	Args:  cobra.NoArgs,
	RunE:  runMigrateSchemaStatus,
}

var migrateSchemaInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the crmv2 tables in an empty database",
	Long: `Create every crmv2 table in an empty PostgreSQL or SQLite database.
The result already has the company shape, so no evolution steps are needed
afterwards.`,
	Args: cobra.NoArgs,
	RunE: runMigrateSchemaInit,
}

// schemaFlags are the config-backed flags shared by the schema commands.
var schemaFlags = []string{"database-url", "fallback-organization-id", "fallback-company-id"}

func init() {
	for _, c := range []*cobra.Command{migrateSchemaUpCmd, migrateSchemaDownCmd, migrateSchemaStatusCmd, migrateSchemaInitCmd} {
		c.Flags().String("database-url", "", "crmv2 database URL")
		migrateSchemaCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{migrateSchemaUpCmd, migrateSchemaDownCmd} {
		c.Flags().Int64("to", 0, "Target version")
		c.Flags().String("step", "", "Run a single step by name or version without recording it")
		c.Flags().Int64("fallback-organization-id", 0, "Organization for dealerships whose owner has none (default 3)")
		c.Flags().Int64("fallback-company-id", 0, "Company for rows with no dealership (default 3)")
		c.MarkFlagsMutuallyExclusive("to", "step")
	}
}

// schemaEnv is what every schema command needs: config, logger and target.
type schemaEnv struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sql.DB
	dialect crmschema.Dialect
	out     io.Writer
	errOut  io.Writer
	spinner *ui.StepSpinner
}

func openSchemaEnv(cmd *cobra.Command) (*schemaEnv, error) {
	cfg, err := loadConfig(cmd, schemaFlags...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Target.URL == "" {
		return nil, fmt.Errorf("target database URL is required (--database-url or target.url)")
	}
	errOut := cmd.ErrOrStderr()
	logger, _ := newLogger(errOut, cfg.Logging.Level, cfg.Logging.Format)
	db, dialect, err := crmschema.OpenTarget(cmd.Context(), cfg.Target.URL)
	if err != nil {
		return nil, err
	}
	return &schemaEnv{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		dialect: dialect,
		out:     cmd.OutOrStdout(),
		errOut:  errOut,
		spinner: ui.NewStepSpinner(errOut, !ui.ColorEnabled() || jsonOutput(cmd)),
	}, nil
}

func (e *schemaEnv) options() evolution.Options {
	return evolution.Options{
		FallbackOrganizationID: e.cfg.Migration.FallbackOrganizationID,
		FallbackCompanyID:      e.cfg.Migration.FallbackCompanyID,
		Logger:                 e.logger,
	}
}

func (e *schemaEnv) runner() (*evolution.Runner, error) {
	return evolution.NewRunner(e.db, e.dialect, e.options())
}

func runMigrateSchemaUp(cmd *cobra.Command, args []string) error {
	return runSchemaSteps(cmd, evolution.DirectionUp)
}

func runMigrateSchemaDown(cmd *cobra.Command, args []string) error {
	return runSchemaSteps(cmd, evolution.DirectionDown)
}

func runSchemaSteps(cmd *cobra.Command, dir evolution.Direction) error {
	env, err := openSchemaEnv(cmd)
	if err != nil {
		return err
	}
	defer env.db.Close()
	ctx := cmd.Context()

	if name, _ := cmd.Flags().GetString("step"); name != "" {
		step, ok := evolution.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown schema step %q (see 'crmv2 migrate schema status')", name)
		}
		if env.dialect != crmschema.DialectPostgres {
			return fmt.Errorf("schema evolution supports postgres targets only, got %s", env.dialect)
		}
		return env.spinner.Run(fmt.Sprintf("Running %s (%s)...", step.Name, dir), func() error {
			return evolution.ApplyStep(ctx, env.db, step, dir, env.options())
		})
	}

	r, err := env.runner()
	if err != nil {
		return err
	}
	defer r.Close()

	toSet := cmd.Flags().Changed("to")
	to, _ := cmd.Flags().GetInt64("to")
	var results []evolution.Result
	err = env.spinner.Run(fmt.Sprintf("Applying schema steps (%s)...", dir), func() error {
		var err error
		results, err = applySteps(ctx, r, dir, toSet, to)
		return err
	})
	printResults(cmd, env.out, results)
	if err != nil {
		return err
	}

	version, err := r.Version(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if !jsonOutput(cmd) {
		fmt.Fprintf(env.out, "Schema version: %d\n", version)
	}
	return nil
}

func applySteps(ctx context.Context, r *evolution.Runner, dir evolution.Direction, toSet bool, to int64) ([]evolution.Result, error) {
	switch {
	case dir == evolution.DirectionUp && toSet:
		return r.UpTo(ctx, to)
	case dir == evolution.DirectionUp:
		return r.Up(ctx)
	case toSet:
		return r.DownTo(ctx, to)
	default:
		return r.Down(ctx)
	}
}

func printResults(cmd *cobra.Command, w io.Writer, results []evolution.Result) {
	if jsonOutput(cmd) {
		if results == nil {
			results = []evolution.Result{}
		}
		json.NewEncoder(w).Encode(results) //nolint:errcheck
		return
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "No schema steps to apply.")
		return
	}
	for _, res := range results {
		fmt.Fprintf(w, "  %s %-4s %d %s (%s)\n", ui.StyleSuccess.Render(ui.SymbolCheck),
			res.Direction, res.Version, res.Name, res.Duration.Round(time.Millisecond))
	}
}

func runMigrateSchemaStatus(cmd *cobra.Command, args []string) error {
	env, err := openSchemaEnv(cmd)
	if err != nil {
		return err
	}
	defer env.db.Close()

	r, err := env.runner()
	if err != nil {
		return err
	}
	defer r.Close()

	statuses, err := r.Status(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return json.NewEncoder(env.out).Encode(statuses)
	}
	for _, s := range statuses {
		state := ui.StyleDim.Render("pending")
		applied := ""
		if s.Applied {
			state = ui.StyleSuccess.Render("applied")
			applied = s.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(env.out, "  %d  %-24s %s  %s\n", s.Version, s.Name, state, applied)
	}
	return nil
}

func runMigrateSchemaInit(cmd *cobra.Command, args []string) error {
	env, err := openSchemaEnv(cmd)
	if err != nil {
		return err
	}
	defer env.db.Close()
	ctx := cmd.Context()

	exists, err := crmschema.NewInspector(env.dialect, env.db).TableExists(ctx, crmschema.Users)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("target already has a %s table; existing databases are evolved with schema up", crmschema.Users)
	}
	ddl, err := crmschema.Baseline(env.dialect)
	if err != nil {
		return err
	}
	return env.spinner.Run("Creating crmv2 tables...", func() error {
		tx, err := env.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck
		if err := crmschema.ApplyDDL(ctx, tx, ddl); err != nil {
			return err
		}
		return tx.Commit()
	})
}
