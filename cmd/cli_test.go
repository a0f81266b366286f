package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cliEnv points the CLI at an isolated job directory and returns it.
func cliEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	jobsDir := filepath.Join(home, "jobs")
	t.Setenv("HOME", home)
	t.Setenv("KARLA_STORE_DRIVER", "yaml")
	t.Setenv("KARLA_STORE_DIR", jobsDir)
	t.Setenv("KARLA_LOG_LEVEL", "error")
	return jobsDir
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func mustRun(t *testing.T, args ...string) result {
	t.Helper()
	r := runCLI(t, "", args...)
	require.Equal(t, exitOK, r.code, "stdout: %s\nstderr: %s", r.stdout, r.stderr)
	return r
}

func TestJobCreate(t *testing.T) {
	dir := cliEnv(t)

	r := mustRun(t, "job", "create", "paris-music", "--query", "live music venues",
		"--region", "india", "--cities", " Mumbai, Pune ,")

	assert.Contains(t, r.stdout, "✓ Job 'paris-music' created")
	assert.Contains(t, r.stdout, "Query: live music venues")
	assert.Contains(t, r.stdout, "Region: india")
	assert.Contains(t, r.stdout, "Cities: Mumbai, Pune")

	_, err := os.Stat(filepath.Join(dir, "paris-music.yaml"))
	assert.NoError(t, err)
}

func TestJobCreate_NoCitiesLine(t *testing.T) {
	cliEnv(t)
	r := mustRun(t, "job", "create", "venues", "-q", "bars", "-r", "europe")
	assert.NotContains(t, r.stdout, "Cities:")
}

func TestJobCreate_MissingRequiredFlags(t *testing.T) {
	cliEnv(t)
	r := runCLI(t, "", "job", "create", "venues", "--query", "bars")
	assert.Equal(t, exitFailure, r.code)
	assert.Contains(t, r.stderr, "region")
}

func TestJobCreate_InvalidName(t *testing.T) {
	cliEnv(t)
	r := runCLI(t, "", "job", "create", "../escape", "-q", "bars", "-r", "europe")
	assert.Equal(t, exitFailure, r.code)
	assert.Contains(t, r.stderr, "invalid job name")
}

func TestJobList_Empty(t *testing.T) {
	cliEnv(t)
	r := mustRun(t, "job", "list")
	assert.Contains(t, r.stdout, "No jobs found. Create one with: karla job create <name>")
}

func TestJobList_Table(t *testing.T) {
	cliEnv(t)
	mustRun(t, "job", "create", "first", "-q", "short query", "-r", "india")
	mustRun(t, "job", "create", "second", "-q", strings.Repeat("x", 45), "-r", "europe")

	r := mustRun(t, "job", "list")
	lines := strings.Split(strings.TrimSpace(r.stdout), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, lines[2], "second")
	assert.Contains(t, lines[2], strings.Repeat("x", 40)+"...")
	assert.NotContains(t, lines[2], strings.Repeat("x", 41))
	assert.Contains(t, lines[3], "first")
	assert.Contains(t, lines[3], "pending")
	assert.NotContains(t, r.stdout, "\x1b[")
}

func TestJobList_SkipsUnreadableRecordWithWarning(t *testing.T) {
	dir := cliEnv(t)
	t.Setenv("KARLA_LOG_LEVEL", "warn")
	mustRun(t, "job", "create", "venues", "-q", "bars", "-r", "europe")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [unterminated"), 0o644))

	r := mustRun(t, "job", "list")
	assert.Contains(t, r.stdout, "venues")
	assert.Contains(t, r.stderr, "skipping unreadable job record")
	assert.Contains(t, r.stderr, "broken.yaml")
	assert.NotContains(t, r.stderr, "errgroup")
	assert.Equal(t, 1, strings.Count(r.stderr, "\n"))
}

func TestJobShow_ZonelessTimestamps(t *testing.T) {
	dir := cliEnv(t)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	record := "cities: []\ncreated: '2024-05-01T10:11:12.345678'\nname: paris-music\n" +
		"query: live music venues\nregion: india\nschema: default\nsources: []\n" +
		"status: pending\nupdated: '2024-05-01T10:11:12.345678'\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "paris-music.yaml"), []byte(record), 0o644))

	r := mustRun(t, "job", "show", "paris-music")
	assert.Contains(t, r.stdout, "Created: 2024-05-01T10:11:12Z")

	r = mustRun(t, "job", "list")
	assert.Contains(t, r.stdout, "paris-music")
}

func TestJobShow(t *testing.T) {
	cliEnv(t)
	mustRun(t, "job", "create", "venues", "-q", "bars", "-r", "europe", "-s", "venue")

	r := mustRun(t, "job", "show", "venues")
	assert.Contains(t, r.stdout, "venues\n")
	assert.Contains(t, r.stdout, "Query:   bars")
	assert.Contains(t, r.stdout, "Cities:  All")
	assert.Contains(t, r.stdout, "Schema:  venue")
	assert.Contains(t, r.stdout, "Status:  pending")
	assert.Contains(t, r.stdout, "Created:")
	assert.Contains(t, r.stdout, "Updated:")
}

func TestNotFound_ExitsOne(t *testing.T) {
	cliEnv(t)
	for _, args := range [][]string{
		{"job", "show", "ghost"},
		{"job", "delete", "ghost", "--force"},
		{"job", "update", "ghost", "--status", "running"},
		{"sources", "ghost"},
		{"scrape", "ghost"},
		{"scrape", "ghost", "--dry-run"},
		{"status", "ghost"},
	} {
		r := runCLI(t, "", args...)
		assert.Equal(t, exitFailure, r.code, args)
		assert.Contains(t, r.stderr, "✗ Job 'ghost' not found", args)
		assert.NotContains(t, r.stderr, "Error:", args)
	}
}

func TestJobUpdate(t *testing.T) {
	cliEnv(t)
	mustRun(t, "job", "create", "venues", "-q", "bars", "-r", "europe", "-c", "Paris")

	r := mustRun(t, "job", "update", "venues", "--status", "Completed", "--sources", "google, yelp")
	assert.Contains(t, r.stdout, "✓ Job 'venues' updated")

	r = mustRun(t, "job", "show", "venues")
	assert.Contains(t, r.stdout, "Status:  completed")
	assert.Contains(t, r.stdout, "Sources: google, yelp")
	assert.Contains(t, r.stdout, "Cities:  Paris")
	assert.Contains(t, r.stdout, "Query:   bars")
}

func TestJobUpdate_Rejections(t *testing.T) {
	cliEnv(t)
	mustRun(t, "job", "create", "venues", "-q", "bars", "-r", "europe")

	r := runCLI(t, "", "job", "update", "venues")
	assert.Equal(t, exitFailure, r.code)
	assert.Contains(t, r.stderr, "nothing to update")

	r = runCLI(t, "", "job", "update", "venues", "--status", "archived")
	assert.Equal(t, exitFailure, r.code)
	assert.Contains(t, r.stderr, "invalid job patch")

	r = runCLI(t, "", "job", "update", "venues", "--created", "yesterday")
	assert.Equal(t, exitFailure, r.code)
	assert.Contains(t, r.stderr, "unknown flag")
}

func TestJobDelete_Force(t *testing.T) {
	dir := cliEnv(t)
	mustRun(t, "job", "create", "venues", "-q", "bars", "-r", "europe")

	r := mustRun(t, "job", "delete", "venues", "--force")
	assert.Contains(t, r.stdout, "✓ Job 'venues' deleted")

	_, err := os.Stat(filepath.Join(dir, "venues.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestJobDelete_Confirmed(t *testing.T) {
	cliEnv(t)
	mustRun(t, "job", "create", "venues", "-q", "bars", "-r", "europe")

	r := runCLI(t, "yes\n", "job", "delete", "venues")
	require.Equal(t, exitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Delete job 'venues'? [y/N]: ")
	assert.Contains(t, r.stdout, "✓ Job 'venues' deleted")
}

func TestJobDelete_Declined(t *testing.T) {
	dir := cliEnv(t)
	mustRun(t, "job", "create", "venues", "-q", "bars", "-r", "europe")

	for _, answer := range []string{"n\n", "\n", ""} {
		r := runCLI(t, answer, "job", "delete", "venues")
		assert.Equal(t, exitAborted, r.code)
		assert.Contains(t, r.stderr, "Aborted!")
	}

	_, err := os.Stat(filepath.Join(dir, "venues.yaml"))
	assert.NoError(t, err)
}

func TestSources_India(t *testing.T) {
	cliEnv(t)
	mustRun(t, "job", "create", "paris-music", "-q", "live music venues", "-r", "India")

	r := mustRun(t, "sources", "paris-music")
	lines := strings.Split(strings.TrimSpace(r.stdout), "\n")
	require.Len(t, lines, 9) // title, header, rule, six sources
	assert.Equal(t, "Sources for 'paris-music' (India)", lines[0])
	assert.Contains(t, lines[3], "Google Maps")
	assert.Contains(t, lines[3], "7.1")
	assert.Contains(t, lines[7], "TripAdvisor")
	assert.Contains(t, lines[7], "6.0")
	assert.Contains(t, lines[8], "GigHub")
}

func TestSources_UnknownRegion(t *testing.T) {
	cliEnv(t)
	mustRun(t, "job", "create", "berlin", "-q", "clubs", "-r", "europe")

	r := mustRun(t, "sources", "berlin")
	assert.Equal(t, "No sources configured for region 'europe'\n", r.stdout)
}

func TestScrape_DryRun(t *testing.T) {
	cliEnv(t)
	mustRun(t, "job", "create", "venues", "-q", "bars", "-r", "europe")

	r := mustRun(t, "scrape", "venues", "--dry-run")
	assert.Contains(t, r.stdout, "Dry run for job 'venues'")
	assert.Contains(t, r.stdout, "Would scrape: bars")
	assert.Contains(t, r.stdout, "Region: europe")
	assert.Contains(t, r.stdout, "Cities: All")
}

func TestScrape_NotImplemented(t *testing.T) {
	cliEnv(t)
	mustRun(t, "job", "create", "venues", "-q", "bars", "-r", "europe")

	r := mustRun(t, "scrape", "venues")
	assert.Contains(t, r.stdout, "Scraping not yet implemented")
	assert.Contains(t, r.stdout, "Job: venues")
}

func TestStatus(t *testing.T) {
	cliEnv(t)
	mustRun(t, "job", "create", "venues", "-q", "bars", "-r", "europe")

	r := mustRun(t, "status", "venues")
	assert.Equal(t, "⏳ venues: pending\n", r.stdout)

	mustRun(t, "job", "update", "venues", "--status", "failed")
	r = mustRun(t, "status", "venues")
	assert.Equal(t, "❌ venues: failed\n", r.stdout)
}

func TestJobExport(t *testing.T) {
	cliEnv(t)
	mustRun(t, "job", "create", "venues", "-q", "bars", "-r", "europe")

	r := mustRun(t, "job", "export")
	assert.True(t, strings.HasPrefix(r.stdout, "name,query,region"))
	assert.Contains(t, r.stdout, "venues,bars,europe")

	r = mustRun(t, "job", "export", "--format", "json")
	assert.Contains(t, r.stdout, `"name": "venues"`)

	path := filepath.Join(t.TempDir(), "jobs.xlsx")
	r = mustRun(t, "job", "export", "--format", "xlsx", "--out", path)
	assert.Contains(t, r.stdout, "✓ Exported 1 jobs to "+path)
	_, err := os.Stat(path)
	assert.NoError(t, err)

	r = runCLI(t, "", "job", "export", "--format", "xlsx")
	assert.Equal(t, exitFailure, r.code)
	assert.Contains(t, r.stderr, "requires --out")
}

func TestSQLiteDriver(t *testing.T) {
	cliEnv(t)
	t.Setenv("KARLA_STORE_DRIVER", "sqlite")
	t.Setenv("KARLA_STORE_DATABASE_URL", filepath.Join(t.TempDir(), "db", "karla.db"))

	mustRun(t, "job", "create", "venues", "-q", "bars", "-r", "india")
	r := mustRun(t, "status", "venues")
	assert.Equal(t, "⏳ venues: pending\n", r.stdout)
	r = mustRun(t, "sources", "venues")
	assert.Contains(t, r.stdout, "JustDial")
}

func TestUnsupportedDriver(t *testing.T) {
	cliEnv(t)
	t.Setenv("KARLA_STORE_DRIVER", "mongo")

	r := runCLI(t, "", "job", "list")
	assert.Equal(t, exitFailure, r.code)
	assert.Contains(t, r.stderr, "Error:")
	assert.Contains(t, r.stderr, "mongo")
}
