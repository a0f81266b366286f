package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/karla/internal/sources"
	"github.com/sells-group/karla/internal/store"
)

func newSourcesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sources <job_name>",
		Short: "List recommended sources for a job",
		Long:  "Shows the static source recommendations for the job's region.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				job, err := requireJob(ctx, cmd, st, args[0])
				if err != nil {
					return err
				}

				list := sources.Lookup(job.Region)
				if len(list) == 0 {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No sources configured for region '%s'\n", job.Region)
					return nil
				}

				formatSources(cmd.OutOrStdout(), job, list)
				return nil
			})
		},
	}
}
