package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crmv2/crmv2/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print resolved configuration",
	Long: `Load and print the resolved crmv2 configuration as TOML.
Shows the result of merging defaults, crmv2.toml, .env and CRMV2_* environment
variables. Database passwords are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long: `Get a specific configuration value by dotted key path.
Examples: target.url, migration.fallback_organization_id, logging.level`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in crmv2.toml",
	Long: `Set a configuration value in the crmv2.toml config file.
Creates the file if it doesn't exist.
Examples:
  crmv2 config set target.url postgres://localhost/crmv2
  crmv2 config set migration.fallback_organization_id 7`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = cfg.Redacted()

	if jsonOutput(cmd) {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
	}
	out, err := cfg.ToTOML()
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	value, err := config.GetValue(cfg, args[0])
	if err != nil {
		return err
	}
	if jsonOutput(cmd) {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"key": args[0], "value": value})
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.DefaultPath
	}
	key, value := args[0], args[1]
	if !config.IsValidKey(key) {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := config.SetValue(configPath, key, value); err != nil {
		return fmt.Errorf("setting config value: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s = %s\n", key, value)
	fmt.Fprintf(out, "Written to %s\n", configPath)

	// Only warn: values are often set one at a time.
	if _, err := config.Load(configPath, nil); err != nil {
		msg := err.Error()
		if _, rest, ok := strings.Cut(msg, ": "); ok {
			msg = rest
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Note: %s\n", msg)
	}
	return nil
}
