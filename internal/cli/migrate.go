package cli

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate legacy data and evolve the crmv2 schema",
	Long: `Move legacy CRM data into crmv2 (migrate data) or evolve the crmv2
schema from dealerships to companies (migrate schema).

Neither command takes a lock: do not run two of them against the same
database at the same time.`,
}

func init() {
	migrateCmd.AddCommand(migrateDataCmd)
	migrateCmd.AddCommand(migrateSchemaCmd)
}
