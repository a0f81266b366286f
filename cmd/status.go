package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/karla/internal/store"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_name>",
		Short: "Show status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				job, err := requireJob(ctx, cmd, st, args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", statusMarker(job.Status), job.Name, job.Status)
				return nil
			})
		},
	}
}
