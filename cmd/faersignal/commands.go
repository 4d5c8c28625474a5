package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"faersignal/internal/api"
	"faersignal/internal/config"
	"faersignal/internal/container"
	"faersignal/internal/migration"
	"faersignal/internal/testkit"
)

func newMigrateCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := container.OpenDatabase(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			var runner migration.Migrator = migration.NewRunner()
			if err := migration.Apply(cmd.Context(), runner, db, reset); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %s\n", runner.Version())
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "empty the report tables after migrating")
	return cmd
}

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the signal API",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			if port == "" {
				port = c.Config.Server.Port
			}
			server := api.NewServer(c.Analysis, c.Logger, c.Config.Server.GinMode)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start(":" + port) }()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-stop:
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default PORT)")
	return cmd
}

func newNormalizeCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Map stored drug names to ingredients through RxNorm",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			counts, err := c.Normalization.NormalizeRepository(cmd.Context(), c.DrugRepo, !all)
			if err != nil {
				return err
			}
			printCounts(cmd, "normalized this run", counts)

			totals, err := c.DrugRepo.NormalizationStats(cmd.Context())
			if err != nil {
				return err
			}
			printCounts(cmd, "stored", totals)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "renormalize names that already have a mapping")
	return cmd
}

func newSeedDemoCmd() *cobra.Command {
	var synthetic bool
	var reports int
	var seed int64

	cmd := &cobra.Command{
		Use:   "seed-demo",
		Short: "Load the demo or a synthetic report set into postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			records := testkit.DemoReports()
			if synthetic {
				gc := testkit.DefaultSyntheticConfig()
				gc.Reports = reports
				gc.Seed = seed
				records = testkit.NewSyntheticGenerator(gc).Generate()
			}
			if err := c.Reports.InsertReports(cmd.Context(), records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d reports\n", len(records))
			return nil
		},
	}
	cmd.Flags().BoolVar(&synthetic, "synthetic", false, "generate a synthetic set instead of the demo reports")
	cmd.Flags().IntVar(&reports, "reports", testkit.DefaultSyntheticConfig().Reports, "synthetic report count")
	cmd.Flags().Int64Var(&seed, "seed", 42, "synthetic generator seed")
	return cmd
}

func printCounts(cmd *cobra.Command, label string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", label)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-10s %d\n", k, counts[k])
	}
}
