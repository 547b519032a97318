package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"flowgraph-mcp/backend/internal/app"
	"flowgraph-mcp/backend/internal/config"
	"flowgraph-mcp/backend/internal/logging"
)

func main() {
	var configFile string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Apply the schema and embed every entity that has no embedding yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config-file", "", "Path to config file.")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, configFile string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Seeder.SeedMissing(ctx)
	if err != nil {
		return err
	}
	logger.Info("Seeding complete!",
		"created", report.Created,
		"skipped", report.Skipped,
		"empty", report.Empty,
		"failed", report.Failed,
		"total", report.Total,
		"elapsed", report.Elapsed.String(),
	)
	return nil
}
