package model

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// JobPatch names the job fields an update may change. Nil fields are left alone.
type JobPatch struct {
	Query      *string    `json:"query,omitempty"`
	Region     *string    `json:"region,omitempty"`
	Cities     *[]string  `json:"cities,omitempty"`
	SchemaName *string    `json:"schema,omitempty"`
	Sources    *[]string  `json:"sources,omitempty"`
	Status     *JobStatus `json:"status,omitempty"`
}

// patchFields lists the keys accepted by ParseJobPatch and DecodeJobPatch.
var patchFields = map[string]func(p *JobPatch, v string){
	"query":   func(p *JobPatch, v string) { p.Query = &v },
	"region":  func(p *JobPatch, v string) { p.Region = &v },
	"cities":  func(p *JobPatch, v string) { l := SplitList(v); p.Cities = &l },
	"schema":  func(p *JobPatch, v string) { p.SchemaName = &v },
	"sources": func(p *JobPatch, v string) { l := SplitList(v); p.Sources = &l },
	"status":  func(p *JobPatch, v string) { s := JobStatus(v); p.Status = &s },
}

// PatchFieldNames returns the accepted patch keys in sorted order.
func PatchFieldNames() []string {
	names := make([]string, 0, len(patchFields))
	for k := range patchFields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ParseJobPatch builds a patch from field=value pairs. List fields take
// comma-separated values. Unknown field names are rejected.
func ParseJobPatch(fields map[string]string) (JobPatch, error) {
	var p JobPatch
	for k, v := range fields {
		set, ok := patchFields[k]
		if !ok {
			return JobPatch{}, eris.Wrapf(ErrInvalidPatch, "unknown field %q (accepted: %s)", k, strings.Join(PatchFieldNames(), ", "))
		}
		set(&p, v)
	}
	p.normalize()
	return p, p.Validate()
}

// DecodeJobPatch reads a JSON patch, rejecting unknown keys.
func DecodeJobPatch(data []byte) (JobPatch, error) {
	var p JobPatch
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return JobPatch{}, eris.Wrapf(ErrInvalidPatch, "decode: %v", err)
	}
	p.normalize()
	return p, p.Validate()
}

// normalize lowercases and trims the status so every front end accepts the
// same spellings.
func (p *JobPatch) normalize() {
	if p.Status != nil {
		s := JobStatus(strings.ToLower(strings.TrimSpace(string(*p.Status))))
		p.Status = &s
	}
}

// Validate rejects values that are not meaningful for their field.
func (p JobPatch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return eris.Wrapf(ErrInvalidPatch, "unknown status %q", string(*p.Status))
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p JobPatch) IsEmpty() bool {
	return p.Query == nil && p.Region == nil && p.Cities == nil &&
		p.SchemaName == nil && p.Sources == nil && p.Status == nil
}

// Apply copies the set fields of p onto j. Timestamps are not touched.
func (p JobPatch) Apply(j *Job) {
	if p.Query != nil {
		j.Query = *p.Query
	}
	if p.Region != nil {
		j.Region = *p.Region
	}
	if p.Cities != nil {
		j.Cities = nonNil(*p.Cities)
	}
	if p.SchemaName != nil {
		j.SchemaName = *p.SchemaName
	}
	if p.Sources != nil {
		j.Sources = nonNil(*p.Sources)
	}
	if p.Status != nil {
		j.Status = *p.Status
	}
}
