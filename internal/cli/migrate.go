package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"proposaldesk/api/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		down, err := cmd.Flags().GetBool("down")
		if err != nil {
			return err
		}
		ctx := context.Background()

		db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: 2})
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		out := cmd.OutOrStdout()
		if down {
			version, err := store.RollbackMigration(ctx, db, cfg.MigrationsDir)
			if err != nil {
				return err
			}
			if version == "" {
				fmt.Fprintln(out, "nothing to roll back")
				return nil
			}
			fmt.Fprintf(out, "rolled back %s\n", version)
			return nil
		}

		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintln(out, "database is up to date")
		}
		for _, version := range applied {
			fmt.Fprintf(out, "applied %s\n", version)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("down", false, "Roll back the most recent migration")
}
