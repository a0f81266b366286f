package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/karla/internal/config"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitAborted = 2
)

// exitError carries a process exit code for an error whose message has
// already been shown to the user.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

// app holds per-invocation state shared by the commands.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "karla",
		Short: "Agentic web search and scraping jobs for regional data collection",
		Long: "Defines named scraping jobs (query, region, cities, schema), stores them on disk " +
			"or in a database, and lists recommended data sources per region.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := c.Validate("cli"); err != nil {
				return err
			}
			a.cfg = c

			if err := config.InitLogger(c.Log, cmd.ErrOrStderr()); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = zap.L().Sync()
		},
	}

	root.AddCommand(
		newJobCmd(a),
		newSourcesCmd(a),
		newScrapeCmd(a),
		newStatusCmd(a),
		newServeCmd(a),
	)
	return root
}

// run executes the command tree with the given arguments and streams and
// returns the process exit code.
func run(args []string, in io.Reader, out, errOut io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.Execute()
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
	return exitFailure
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
