package filter

import (
	"strings"

	textcases "golang.org/x/text/cases"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
)

// Apply returns the records of in that satisfy every non-empty dimension of
// s, in their original order. The input slice is never modified.
func Apply(in []cases.Record, s State) []cases.Record {
	if s.IsEmpty() {
		// Return a copy to avoid accidental external mutation
		out := make([]cases.Record, len(in))
		copy(out, in)
		return out
	}

	m := newMatcher(s)
	out := make([]cases.Record, 0, len(in))
	for _, r := range in {
		if m.match(r) {
			out = append(out, r)
		}
	}
	return out
}

type matcher struct {
	state  State
	fold   textcases.Caser
	search string
	sets   map[Dimension]map[string]bool
}

func newMatcher(s State) *matcher {
	m := &matcher{
		state: s,
		// Caser keeps internal state, one per Apply call.
		fold: textcases.Fold(),
		sets: make(map[Dimension]map[string]bool, len(Dimensions)),
	}
	if q := strings.TrimSpace(s.Search); q != "" {
		m.search = m.fold.String(q)
	}
	for _, d := range Dimensions {
		vals := normalize(*s.slot(d))
		if len(vals) == 0 {
			continue
		}
		set := make(map[string]bool, len(vals))
		for _, v := range vals {
			set[v] = true
		}
		m.sets[d] = set
	}
	return m
}

func (m *matcher) match(r cases.Record) bool {
	if m.search != "" && !m.matchSearch(r) {
		return false
	}
	if from := m.state.DateRange.From; from != nil && r.CreatedAt.Before(*from) {
		return false
	}
	if to := m.state.DateRange.To; to != nil && r.CreatedAt.After(*to) {
		return false
	}
	for d, set := range m.sets {
		if !set[dimensionValue(r, d)] {
			return false
		}
	}
	return true
}

func (m *matcher) matchSearch(r cases.Record) bool {
	for _, field := range []string{r.PatientName, r.PatientID, r.BodyPart, r.Findings} {
		if field != "" && strings.Contains(m.fold.String(field), m.search) {
			return true
		}
	}
	return false
}

// dimensionValue is the normalized value a record presents for d. Priority
// and confidence band come from the canonical derived fields.
func dimensionValue(r cases.Record, d Dimension) string {
	switch d {
	case DimPriorities:
		return string(r.Priority)
	case DimStatuses:
		return string(r.Status)
	case DimImageTypes:
		return normValue(r.ImageType)
	case DimBodyParts:
		return normValue(r.BodyPart)
	case DimAssignedTo:
		return normValue(r.Assignee())
	case DimSource:
		return string(r.Source)
	case DimAIConfidence:
		return r.ConfidenceBand()
	}
	return ""
}

// Options lists the distinct values present in recs for dimension d, sorted.
func Options(recs []cases.Record, d Dimension) []string {
	vals := make([]string, 0, len(recs))
	for _, r := range recs {
		vals = append(vals, dimensionValue(r, d))
	}
	return normalize(vals)
}
