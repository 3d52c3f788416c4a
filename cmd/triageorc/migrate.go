package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	Long: `migrate constructs the configured store (postgres or sqlite), which
applies every embedded migration as a side effect of connecting, then
closes the connection and exits. Useful for running migrations as a
separate step ahead of a rolling deploy, outside of "serve"'s own
implicit migrate-on-startup.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	st, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	defer st.Close()

	fmt.Println("migrations applied")
	return nil
}
