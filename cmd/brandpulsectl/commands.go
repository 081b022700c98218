package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"brandpulse/internal/adapter/events"
	"brandpulse/internal/config"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file.json>",
		Short: "Run a JSON file of raw posts through the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("error reading batch file: %w", err)
			}
			raws, err := events.DecodeRawBatch(data)
			if err != nil {
				return err
			}

			a, err := bootstrap(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.orchestrator.RunBatch(cmd.Context(), raws)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), opts.output, report)
		},
	}
}

func newRefreshTopicsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-topics",
		Short: "Refit the discovered-topic model over the recent corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			snapshot, err := a.refresher.Refresh(cmd.Context())
			if err != nil {
				return err
			}

			if opts.output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(events.TopicsRefreshed{
					Version:  snapshot.Version,
					FittedAt: snapshot.FittedAt,
					Docs:     snapshot.Docs,
					Topics:   snapshot.Topics,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Topic snapshot %s fitted on %d docs\n", snapshot.Version, snapshot.Docs)
			for _, t := range snapshot.Topics {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-40s %s\n", t.ID, t.Name)
			}
			return nil
		},
	}
}

func newReprocessCmd(opts *rootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Re-score stored posts created in [from, to)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDate(from)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			end, err := parseDate(to)
			if err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			if !start.Before(end) {
				return fmt.Errorf("--from must be before --to")
			}

			a, err := bootstrap(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.orchestrator.Reprocess(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), opts.output, report)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start of the range (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "end of the range, exclusive (RFC 3339 or YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <post-id>",
		Short: "Delete a post and every row derived from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.orchestrator.PurgePost(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged post %s\n", args[0])
			return nil
		},
	}
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the theme and competitor catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a catalog file, or the built-in catalog when no path is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			catalog, err := config.LoadCatalog(path)
			if err != nil {
				return err
			}
			if err := catalog.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Catalog %s OK: %d themes, %d competitors, %d phrases\n",
				catalog.Version, len(catalog.Themes), len(catalog.Competitors), len(catalog.Phrases))
			return nil
		},
	})
	return cmd
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}
