package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// timestampLayouts are tried in order when reading created/updated. Layouts
// without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp reads an ISO-8601 timestamp with or without a zone offset
// and returns it in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized timestamp %q", s)
}

// jobRecord mirrors Job on disk with the timestamps left as raw nodes, so
// quoted zoneless strings and native YAML timestamps both decode.
type jobRecord struct {
	Name       string    `yaml:"name"`
	Query      string    `yaml:"query"`
	Region     string    `yaml:"region"`
	Cities     []string  `yaml:"cities"`
	SchemaName string    `yaml:"schema"`
	Sources    []string  `yaml:"sources"`
	Status     JobStatus `yaml:"status"`
	Created    yaml.Node `yaml:"created"`
	Updated    yaml.Node `yaml:"updated"`
}

// UnmarshalYAML decodes a job record. Encoding is left to the default
// marshaller, which writes RFC 3339 timestamps.
func (j *Job) UnmarshalYAML(value *yaml.Node) error {
	var rec jobRecord
	if err := value.Decode(&rec); err != nil {
		return err
	}

	created, err := ParseTimestamp(rec.Created.Value)
	if err != nil {
		return eris.Wrap(err, "created")
	}
	updated, err := ParseTimestamp(rec.Updated.Value)
	if err != nil {
		return eris.Wrap(err, "updated")
	}

	*j = Job{
		Name:       rec.Name,
		Query:      rec.Query,
		Region:     rec.Region,
		Cities:     nonNil(rec.Cities),
		SchemaName: rec.SchemaName,
		Sources:    nonNil(rec.Sources),
		Status:     rec.Status,
		Created:    created,
		Updated:    updated,
	}
	return nil
}
