package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"brandpulse/internal/adapter/storage"
	"brandpulse/internal/config"
	"brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
	"brandpulse/internal/service/pipeline"
	"brandpulse/internal/service/theme"
)

type rootOptions struct {
	sqlitePath string
	output     string
	verbose    bool
}

// newRootCmd returns the root command for the operator CLI
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "brandpulsectl",
		Short:         "Operate the brand sentiment pipeline",
		Long:          "brandpulsectl runs ingestion batches, topic refreshes and maintenance against the configured store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.sqlitePath, "sqlite", "", "use the sqlite database at this path instead of DB_DRIVER")
	rootCmd.PersistentFlags().StringVar(&opts.output, "output", "text", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(newIngestCmd(opts))
	rootCmd.AddCommand(newRefreshTopicsCmd(opts))
	rootCmd.AddCommand(newReprocessCmd(opts))
	rootCmd.AddCommand(newPurgeCmd(opts))
	rootCmd.AddCommand(newCatalogCmd())

	return rootCmd
}

// app holds the services a command runs against
type app struct {
	store        signal.Store
	closer       storage.Closer
	orchestrator *pipeline.Orchestrator
	refresher    *theme.Refresher
	logger       logging.Logger
}

func (a *app) Close() {
	a.closer.Close()
}

// bootstrap loads configuration and wires the pipeline without events
func bootstrap(ctx context.Context, opts *rootOptions, stderr io.Writer) (*app, error) {
	logger := logging.NewLoggerWithService("brandpulsectl")
	logger.SetOutput(stderr)
	config.LoadEnv(logger)

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))
	if opts.verbose {
		logger.SetLevel(logging.DebugLevel)
	}
	if opts.sqlitePath != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.SQLitePath = opts.sqlitePath
	}

	store, closer, err := storage.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	refresher := theme.NewRefresher(store, nil, theme.NewTermFilter(cfg.Catalog.Stopwords), pipeline.RefresherConfig(cfg), logger)
	if err := refresher.Load(ctx); err != nil {
		closer.Close()
		return nil, err
	}

	components, err := pipeline.NewComponents(cfg, refresher, logger)
	if err != nil {
		closer.Close()
		return nil, err
	}
	orchestrator := pipeline.NewOrchestrator(store, nil, components, pipeline.Config{
		Version:          cfg.Pipeline.Version,
		CommitMaxRetries: cfg.Pipeline.CommitMaxRetries,
		CommitBackoff:    cfg.Pipeline.CommitBackoff,
		CommitMaxBackoff: cfg.Pipeline.CommitMaxBackoff,
	}, logger)
	refresher.SetTrendRefresher(orchestrator)

	return &app{
		store:        store,
		closer:       closer,
		orchestrator: orchestrator,
		refresher:    refresher,
		logger:       logger,
	}, nil
}

// printReport writes a batch report in the selected output format
func printReport(w io.Writer, output string, report *signal.BatchReport) error {
	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(w, "received:  %d\n", report.Received)
	fmt.Fprintf(w, "skipped:   %d\n", report.Skipped)
	fmt.Fprintf(w, "merged:    %d\n", report.Merged)
	fmt.Fprintf(w, "processed: %d\n", report.Processed)
	fmt.Fprintf(w, "degraded:  %d\n", report.Degraded)
	fmt.Fprintf(w, "mentions:  %d\n", report.Mentions)
	fmt.Fprintf(w, "trend rows: %d\n", report.TrendRows)
	return nil
}
