// Package sources holds the static catalog of recommended data sources per region.
package sources

import (
	"sort"

	"golang.org/x/text/cases"
)

// Source is a candidate data provider with a quality score out of 10.
type Source struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Notes string  `json:"notes"`
}

// catalog is keyed by case-folded region. Scores are hand-assigned until a
// scoring engine replaces them.
var catalog = map[string][]Source{
	"india": {
		{Name: "Google Maps", Score: 7.1, Notes: "Best coverage + contact info"},
		{Name: "Zomato", Score: 6.9, Notes: "Good data, needs in-region"},
		{Name: "JustDial", Score: 6.8, Notes: "Excellent contacts"},
		{Name: "LBB", Score: 6.6, Notes: "Best music specificity"},
		{Name: "TripAdvisor", Score: 6.0, Notes: "Good reviews, geo-blocked"},
		{Name: "GigHub", Score: 5.8, Notes: "Curated but sparse"},
	},
}

// foldKey normalises a region for lookup.
func foldKey(region string) string {
	return cases.Fold().String(region)
}

// Lookup returns the sources configured for region, compared case-insensitively.
// The result is a copy; an unknown region yields nil.
func Lookup(region string) []Source {
	entries, ok := catalog[foldKey(region)]
	if !ok {
		return nil
	}
	out := make([]Source, len(entries))
	copy(out, entries)
	return out
}

// Regions returns the regions that have configured sources, sorted.
func Regions() []string {
	out := make([]string, 0, len(catalog))
	for r := range catalog {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
