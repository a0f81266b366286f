package model

import (
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultSchema is the schema name assigned when a job is created without one.
const DefaultSchema = "default"

// maxNameLen bounds job names so they stay usable as file names on every platform.
const maxNameLen = 128

var (
	// ErrInvalidName is returned when a job name cannot be used as a storage key.
	ErrInvalidName = eris.New("invalid job name")
	// ErrInvalidPatch is returned when a patch names an unknown field or carries an invalid value.
	ErrInvalidPatch = eris.New("invalid job patch")
)

// JobStatus represents the lifecycle state of a scraping job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// AllJobStatuses returns every defined job status.
func AllJobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusPending,
		JobStatusRunning,
		JobStatusCompleted,
		JobStatusFailed,
	}
}

// Valid reports whether s is one of the defined statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Job is a named, persisted scraping configuration.
type Job struct {
	Name       string    `yaml:"name" json:"name"`
	Query      string    `yaml:"query" json:"query"`
	Region     string    `yaml:"region" json:"region"`
	Cities     []string  `yaml:"cities" json:"cities"`
	SchemaName string    `yaml:"schema" json:"schema"`
	Sources    []string  `yaml:"sources" json:"sources"`
	Status     JobStatus `yaml:"status" json:"status"`
	Created    time.Time `yaml:"created" json:"created"`
	Updated    time.Time `yaml:"updated" json:"updated"`
}

// JobSpec holds the caller-supplied fields for a new job.
type JobSpec struct {
	Name       string
	Query      string
	Region     string
	Cities     []string
	SchemaName string
	Sources    []string
}

// NewJob builds a pending job from spec with both timestamps set to now.
func NewJob(spec JobSpec, now time.Time) *Job {
	schema := spec.SchemaName
	if schema == "" {
		schema = DefaultSchema
	}
	now = now.UTC()
	return &Job{
		Name:       spec.Name,
		Query:      spec.Query,
		Region:     spec.Region,
		Cities:     nonNil(spec.Cities),
		SchemaName: schema,
		Sources:    nonNil(spec.Sources),
		Status:     JobStatusPending,
		Created:    now,
		Updated:    now,
	}
}

// SortJobsNewestFirst orders jobs by creation time, most recent first.
// Ties are broken by name so the order is stable across backends.
func SortJobsNewestFirst(jobs []Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if !jobs[i].Created.Equal(jobs[j].Created) {
			return jobs[i].Created.After(jobs[j].Created)
		}
		return jobs[i].Name < jobs[j].Name
	})
}

// ValidateName checks that name is safe to use as a file name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return eris.Wrap(ErrInvalidName, "name is empty")
	case len(name) > maxNameLen:
		return eris.Wrapf(ErrInvalidName, "name %q exceeds %d bytes", name, maxNameLen)
	case strings.HasPrefix(name, "."):
		return eris.Wrapf(ErrInvalidName, "name %q starts with a dot", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return eris.Wrapf(ErrInvalidName, "name %q contains a path separator or NUL", name)
	}
	return nil
}

// SplitList splits a comma-separated flag value, trimming whitespace and
// dropping empty entries.
func SplitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
