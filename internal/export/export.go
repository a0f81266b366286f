// Package export writes job lists as CSV, JSON or XLSX.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/karla/internal/model"
)

// Format names an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	default:
		return "", eris.Errorf("export: unknown format %q (csv, json, xlsx)", s)
	}
}

// Header is the column order shared by the CSV and XLSX encodings.
var Header = []string{"name", "query", "region", "cities", "schema", "sources", "status", "created", "updated"}

// listSep joins list fields inside a single cell.
const listSep = ";"

func record(j model.Job) []string {
	return []string{
		j.Name,
		j.Query,
		j.Region,
		strings.Join(j.Cities, listSep),
		j.SchemaName,
		strings.Join(j.Sources, listSep),
		string(j.Status),
		j.Created.UTC().Format(time.RFC3339),
		j.Updated.UTC().Format(time.RFC3339),
	}
}

// WriteCSV writes jobs as CSV with a header row.
func WriteCSV(w io.Writer, jobs []model.Job) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, j := range jobs {
		if err := cw.Write(record(j)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", j.Name)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteJSON writes jobs as an indented JSON array.
func WriteJSON(w io.Writer, jobs []model.Job) error {
	if jobs == nil {
		jobs = []model.Job{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(jobs), "export: encode json")
}

// WriteXLSX writes jobs to a new workbook at path with a single "Jobs" sheet.
func WriteXLSX(path string, jobs []model.Job) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Jobs")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	addRow(sheet, Header)
	for _, j := range jobs {
		addRow(sheet, record(j))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
