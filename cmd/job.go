package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/karla/internal/export"
	"github.com/sells-group/karla/internal/model"
	"github.com/sells-group/karla/internal/store"
)

func newJobCmd(a *app) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Manage scraping jobs",
	}
	jobCmd.AddCommand(
		newJobCreateCmd(a),
		newJobListCmd(a),
		newJobShowCmd(a),
		newJobUpdateCmd(a),
		newJobDeleteCmd(a),
		newJobExportCmd(a),
	)
	return jobCmd
}

// -- job create --

func newJobCreateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new scraping job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, _ := cmd.Flags().GetString("query")
			region, _ := cmd.Flags().GetString("region")
			cities, _ := cmd.Flags().GetString("cities")
			schema, _ := cmd.Flags().GetString("schema")

			spec := model.JobSpec{
				Name:       args[0],
				Query:      query,
				Region:     region,
				Cities:     model.SplitList(cities),
				SchemaName: schema,
			}

			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				job, err := st.CreateJob(ctx, spec)
				if err != nil {
					return eris.Wrap(err, "job create")
				}

				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "✓ Job '%s' created\n", job.Name)
				_, _ = fmt.Fprintf(out, "  Query: %s\n", job.Query)
				_, _ = fmt.Fprintf(out, "  Region: %s\n", job.Region)
				if len(job.Cities) > 0 {
					_, _ = fmt.Fprintf(out, "  Cities: %s\n", strings.Join(job.Cities, ", "))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringP("query", "q", "", "what to search for")
	cmd.Flags().StringP("region", "r", "", "target region (e.g. india, europe)")
	cmd.Flags().StringP("cities", "c", "", "comma-separated list of cities")
	cmd.Flags().StringP("schema", "s", model.DefaultSchema, "schema to use")
	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("region")
	return cmd
}

// -- job list --

func newJobListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				jobs, err := st.ListJobs(ctx)
				if err != nil {
					return eris.Wrap(err, "job list")
				}

				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					_, _ = fmt.Fprintln(out, "No jobs found. Create one with: karla job create <name>")
					return nil
				}

				formatJobList(out, jobs, colorEnabled(out))
				return nil
			})
		},
	}
}

// -- job show --

func newJobShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show details of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				job, err := requireJob(ctx, cmd, st, args[0])
				if err != nil {
					return err
				}
				formatJobDetail(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}
}

// -- job update --

func newJobUpdateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Change fields of an existing job",
		Long:  "Only the flags given are applied. List flags take comma-separated values.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := map[string]string{}
			for _, name := range model.PatchFieldNames() {
				if cmd.Flags().Changed(name) {
					v, _ := cmd.Flags().GetString(name)
					fields[name] = v
				}
			}
			if len(fields) == 0 {
				return eris.Errorf("nothing to update: pass at least one of --%s",
					strings.Join(model.PatchFieldNames(), ", --"))
			}

			patch, err := model.ParseJobPatch(fields)
			if err != nil {
				return err
			}

			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				job, err := st.UpdateJob(ctx, args[0], patch)
				if err != nil {
					return eris.Wrap(err, "job update")
				}
				if job == nil {
					return jobNotFound(cmd, args[0])
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Job '%s' updated\n", job.Name)
				return nil
			})
		},
	}

	cmd.Flags().String("query", "", "new search query")
	cmd.Flags().String("region", "", "new target region")
	cmd.Flags().String("cities", "", "new comma-separated city list (empty for all)")
	cmd.Flags().String("schema", "", "new schema name")
	cmd.Flags().String("sources", "", "new comma-separated source list")
	cmd.Flags().String("status", "", "new status (pending, running, completed, failed)")
	return cmd
}

// -- job delete --

func newJobDeleteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			force, _ := cmd.Flags().GetBool("force")

			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				if _, err := requireJob(ctx, cmd, st, name); err != nil {
					return err
				}

				if !force && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete job '%s'?", name)) {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Aborted!")
					return &exitError{code: exitAborted, msg: "aborted"}
				}

				removed, err := st.DeleteJob(ctx, name)
				if err != nil {
					return eris.Wrap(err, "job delete")
				}
				if !removed {
					return jobNotFound(cmd, name)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Job '%s' deleted\n", name)
				return nil
			})
		},
	}

	cmd.Flags().BoolP("force", "f", false, "skip confirmation")
	return cmd
}

// confirm prompts on out and reads a yes/no answer from in. Anything other
// than y or yes, including end of input, declines.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	_, _ = fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// -- job export --

func newJobExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all jobs as CSV, JSON or XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rawFormat, _ := cmd.Flags().GetString("format")
			outPath, _ := cmd.Flags().GetString("out")

			format, err := export.ParseFormat(rawFormat)
			if err != nil {
				return err
			}
			if format == export.FormatXLSX && outPath == "" {
				return eris.New("xlsx export requires --out")
			}

			return a.withStore(cmd, func(ctx context.Context, st store.Store) error {
				jobs, err := st.ListJobs(ctx)
				if err != nil {
					return eris.Wrap(err, "job export")
				}
				if err := writeExport(cmd.OutOrStdout(), format, outPath, jobs); err != nil {
					return err
				}
				if outPath != "" {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d jobs to %s\n", len(jobs), outPath)
				}
				return nil
			})
		},
	}

	cmd.Flags().String("format", string(export.FormatCSV), "output format (csv, json, xlsx)")
	cmd.Flags().StringP("out", "o", "", "output file (default stdout; required for xlsx)")
	return cmd
}

func writeExport(stdout io.Writer, format export.Format, outPath string, jobs []model.Job) error {
	if format == export.FormatXLSX {
		return export.WriteXLSX(outPath, jobs)
	}

	w := stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return eris.Wrapf(err, "create %s", outPath)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	if format == export.FormatJSON {
		return export.WriteJSON(w, jobs)
	}
	return export.WriteCSV(w, jobs)
}
