package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/market-research/internal/config"
	"github.com/jonathan/market-research/internal/db"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:       "migrate up|down",
	Short:     "Apply or roll back the PostgreSQL schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWithOverrides(configPath, map[string]any{"store.driver": config.StorePostgres})
		if err != nil {
			return err
		}
		if err := db.Migrate(cfg.Database.URL, args[0], migrateSteps); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s)\n", args[0])
		return nil
	},
}

func init() {
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 0, "Number of migrations to apply (0 means all)")
	rootCmd.AddCommand(migrateCmd)
}
