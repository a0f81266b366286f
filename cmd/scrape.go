package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/karla/internal/store"
)

func newScrapeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape <job_name>",
		Short: "Run a scraping job",
		Long:  "Scraping is not implemented yet; --dry-run shows what a run would cover.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				job, err := requireJob(ctx, cmd, st, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if dryRun {
					_, _ = fmt.Fprintf(out, "Dry run for job '%s'\n", job.Name)
					_, _ = fmt.Fprintf(out, "  Would scrape: %s\n", job.Query)
					_, _ = fmt.Fprintf(out, "  Region: %s\n", job.Region)
					_, _ = fmt.Fprintf(out, "  Cities: %s\n", citiesLabel(job.Cities))
					return nil
				}

				_, _ = fmt.Fprintln(out, "⚡ Scraping not yet implemented")
				_, _ = fmt.Fprintf(out, "  Job: %s\n", job.Name)
				_, _ = fmt.Fprintln(out, "  Run with --dry-run to see planned actions")
				return nil
			})
		},
	}

	cmd.Flags().Bool("dry-run", false, "show what would be done")
	return cmd
}
