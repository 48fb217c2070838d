package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply every schema migration newer than the database's recorded version.

Examples:
  tasker migrate --config /etc/tasker.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	store, err := openDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer store.Close()

	before, err := store.SchemaVersion(ctx)
	if err != nil {
		// A fresh database has no schema_version table yet.
		before = 0
	}
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	after, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if after == before {
		fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date at v%d\n", after)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated schema v%d -> v%d\n", before, after)
	return nil
}
