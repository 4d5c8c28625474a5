package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"faersignal/domain/analysis"
	"faersignal/internal"
	"faersignal/internal/config"
	"faersignal/internal/container"
	"faersignal/internal/migration"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "faersignal",
		Short:         "Disproportionality signal detection over FAERS reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newBuildCmd(),
		newMigrateCmd(),
		newServeCmd(),
		newNormalizeCmd(),
		newSeedDemoCmd(),
		newETLCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and builds a container. withDB requires
// DATABASE_URL and migrates the schema before wiring the postgres stores;
// otherwise the database is used only when configured.
func setup(ctx context.Context, withDB bool) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := internal.NewDefaultLogger()

	c, err := container.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if !withDB && !cfg.Database.Enabled() {
		return c, nil
	}

	db, err := container.OpenDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := migration.Apply(ctx, migration.NewRunner(), db, false); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	if err := c.InitWithDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the code version recorded in run manifests",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), analysis.CodeVersion)
		},
	}
}
