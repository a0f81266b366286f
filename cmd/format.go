package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-isatty"

	"github.com/sells-group/karla/internal/model"
	"github.com/sells-group/karla/internal/sources"
)

// maxQueryWidth is the number of query characters shown in job listings.
const maxQueryWidth = 40

// emphasis is a display level for terminal output.
type emphasis int

const (
	emphasisDim emphasis = iota
	emphasisWarn
	emphasisOK
	emphasisError
)

var emphasisANSI = map[emphasis]string{
	emphasisDim:   "\x1b[2m",
	emphasisWarn:  "\x1b[33m",
	emphasisOK:    "\x1b[32m",
	emphasisError: "\x1b[31m",
}

const ansiReset = "\x1b[0m"

var statusEmphasis = map[model.JobStatus]emphasis{
	model.JobStatusPending:   emphasisDim,
	model.JobStatusRunning:   emphasisWarn,
	model.JobStatusCompleted: emphasisOK,
	model.JobStatusFailed:    emphasisError,
}

var statusMarkers = map[model.JobStatus]string{
	model.JobStatusPending:   "⏳",
	model.JobStatusRunning:   "🔄",
	model.JobStatusCompleted: "✅",
	model.JobStatusFailed:    "❌",
}

// statusMarker returns the emoji shown next to a job status.
func statusMarker(s model.JobStatus) string {
	if m, ok := statusMarkers[s]; ok {
		return m
	}
	return "❓"
}

// emphasisFor maps a status to its display level. Unknown statuses are dim.
func emphasisFor(s model.JobStatus) emphasis {
	if e, ok := statusEmphasis[s]; ok {
		return e
	}
	return emphasisDim
}

func styled(text string, e emphasis, color bool) string {
	if !color {
		return text
	}
	return emphasisANSI[e] + text + ansiReset
}

// colorEnabled reports whether w is a terminal that should receive ANSI styling.
func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// truncate shortens s to max characters, appending "..." when cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

// citiesLabel renders a city list, "All" when empty.
func citiesLabel(cities []string) string {
	if len(cities) == 0 {
		return "All"
	}
	return strings.Join(cities, ", ")
}

// formatJobList writes a tabular list of jobs to out. Status is the last
// column so ANSI sequences do not disturb alignment.
func formatJobList(out io.Writer, jobs []model.Job, color bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tQUERY\tREGION\tSTATUS")
	_, _ = fmt.Fprintln(w, "----\t-----\t------\t------")

	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			j.Name,
			truncate(j.Query, maxQueryWidth),
			j.Region,
			styled(string(j.Status), emphasisFor(j.Status), color),
		)
	}
	_ = w.Flush()
}

// formatJobDetail writes every field of a job.
func formatJobDetail(out io.Writer, j *model.Job) {
	srcs := "None"
	if len(j.Sources) > 0 {
		srcs = strings.Join(j.Sources, ", ")
	}

	_, _ = fmt.Fprintln(out, j.Name)
	w := tabwriter.NewWriter(out, 0, 0, 1, ' ', 0)
	_, _ = fmt.Fprintf(w, "  Query:\t%s\n", j.Query)
	_, _ = fmt.Fprintf(w, "  Region:\t%s\n", j.Region)
	_, _ = fmt.Fprintf(w, "  Cities:\t%s\n", citiesLabel(j.Cities))
	_, _ = fmt.Fprintf(w, "  Schema:\t%s\n", j.SchemaName)
	_, _ = fmt.Fprintf(w, "  Sources:\t%s\n", srcs)
	_, _ = fmt.Fprintf(w, "  Status:\t%s\n", j.Status)
	_, _ = fmt.Fprintf(w, "  Created:\t%s\n", j.Created.UTC().Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "  Updated:\t%s\n", j.Updated.UTC().Format(time.RFC3339))
	_ = w.Flush()
}

// formatSources writes the titled source table for a job.
func formatSources(out io.Writer, j *model.Job, list []sources.Source) {
	_, _ = fmt.Fprintf(out, "Sources for '%s' (%s)\n", j.Name, j.Region)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tSCORE\tNOTES")
	_, _ = fmt.Fprintln(w, "------\t-----\t-----")
	for _, s := range list {
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%s\n", s.Name, s.Score, s.Notes)
	}
	_ = w.Flush()
}
