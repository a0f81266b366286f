package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subcommandNames(c *cobra.Command) map[string]bool {
	names := make(map[string]bool)
	for _, sc := range c.Commands() {
		names[sc.Name()] = true
	}
	return names
}

func findCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c, _, err := newRootCmd().Find(args)
	require.NoError(t, err)
	return c
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(newRootCmd())
	for _, name := range []string{"job", "sources", "scrape", "status", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "karla", root.Use)
	assert.NotEmpty(t, root.Short)
	assert.NotEmpty(t, root.Long)
}

func TestJobCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(findCmd(t, "job"))
	for _, name := range []string{"create", "list", "show", "update", "delete", "export"} {
		assert.True(t, names[name], "job should have subcommand %q", name)
	}
}

func TestJobCreateCommand_Flags(t *testing.T) {
	c := findCmd(t, "job", "create")
	for flag, short := range map[string]string{"query": "q", "region": "r", "cities": "c", "schema": "s"} {
		f := c.Flags().Lookup(flag)
		require.NotNil(t, f, "job create should have --%s", flag)
		assert.Equal(t, short, f.Shorthand)
	}
	assert.Equal(t, "default", c.Flags().Lookup("schema").DefValue)
}

func TestJobDeleteCommand_Flags(t *testing.T) {
	f := findCmd(t, "job", "delete").Flags().Lookup("force")
	require.NotNil(t, f)
	assert.Equal(t, "f", f.Shorthand)
	assert.Equal(t, "false", f.DefValue)
}

func TestScrapeCommand_Flags(t *testing.T) {
	f := findCmd(t, "scrape").Flags().Lookup("dry-run")
	require.NotNil(t, f)
	assert.Equal(t, "false", f.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	f := findCmd(t, "serve").Flags().Lookup("port")
	require.NotNil(t, f, "serve command should have --port flag")
	assert.Equal(t, "0", f.DefValue)
}

func TestExitError(t *testing.T) {
	err := &exitError{code: exitAborted, msg: "aborted"}
	assert.Equal(t, "aborted", err.Error())
}
