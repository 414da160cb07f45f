// Package cli wires the proposaldesk commands.
package cli

import (
	"github.com/spf13/cobra"

	"proposaldesk/api/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "proposaldesk",
	Short: "Insurance proposal intake and approval API",
	Long: `proposaldesk serves the proposal intake and approval API backed by
PostgreSQL, Redis and Meilisearch.

Running 'proposaldesk' without a subcommand is equivalent to 'proposaldesk serve'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(createUserCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file (default: $PROPOSAL_CONFIG_FILE)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	return config.LoadWithFile(path)
}
