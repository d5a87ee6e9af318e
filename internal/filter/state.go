// Package filter narrows and orders a case collection against a fixed-shape
// filter state. Apply, Toggle, ClearAll and Sort are pure; Engine holds the
// active state for a dashboard and notifies listeners on every change.
package filter

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Dimension names one multi-select filter dimension.
type Dimension string

const (
	DimPriorities   Dimension = "priorities"
	DimStatuses     Dimension = "statuses"
	DimImageTypes   Dimension = "imageTypes"
	DimBodyParts    Dimension = "bodyParts"
	DimAssignedTo   Dimension = "assignedTo"
	DimSource       Dimension = "source"
	DimAIConfidence Dimension = "aiConfidence"
)

// Dimensions lists every multi-select dimension.
var Dimensions = []Dimension{
	DimPriorities, DimStatuses, DimImageTypes, DimBodyParts,
	DimAssignedTo, DimSource, DimAIConfidence,
}

// ParseDimension resolves a dimension name, ignoring case.
func ParseDimension(s string) (Dimension, error) {
	for _, d := range Dimensions {
		if strings.EqualFold(string(d), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown filter dimension %q", s)
}

// DateRange bounds the creation time. A nil bound is unconstrained; set
// bounds are inclusive.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// State is the active set of constraints. Every dimension is non-nil,
// lower-cased, sorted and free of duplicates; an empty dimension means
// unconstrained. Dimensions combine with AND, values within one with OR.
type State struct {
	Search       string    `json:"search"`
	DateRange    DateRange `json:"dateRange"`
	Priorities   []string  `json:"priorities"`
	Statuses     []string  `json:"statuses"`
	ImageTypes   []string  `json:"imageTypes"`
	BodyParts    []string  `json:"bodyParts"`
	AssignedTo   []string  `json:"assignedTo"`
	Source       []string  `json:"source"`
	AIConfidence []string  `json:"aiConfidence"`
}

// NewState returns the unconstrained state.
func NewState() State {
	return State{
		Priorities:   []string{},
		Statuses:     []string{},
		ImageTypes:   []string{},
		BodyParts:    []string{},
		AssignedTo:   []string{},
		Source:       []string{},
		AIConfidence: []string{},
	}
}

func (s *State) slot(d Dimension) *[]string {
	switch d {
	case DimPriorities:
		return &s.Priorities
	case DimStatuses:
		return &s.Statuses
	case DimImageTypes:
		return &s.ImageTypes
	case DimBodyParts:
		return &s.BodyParts
	case DimAssignedTo:
		return &s.AssignedTo
	case DimSource:
		return &s.Source
	case DimAIConfidence:
		return &s.AIConfidence
	}
	return nil
}

// Values returns a copy of the values selected for d.
func (s State) Values(d Dimension) []string {
	p := s.slot(d)
	if p == nil {
		return []string{}
	}
	return append([]string{}, (*p)...)
}

// Clone returns a deep copy of s with every dimension normalized.
func (s State) Clone() State {
	out := State{Search: s.Search}
	if s.DateRange.From != nil {
		from := *s.DateRange.From
		out.DateRange.From = &from
	}
	if s.DateRange.To != nil {
		to := *s.DateRange.To
		out.DateRange.To = &to
	}
	for _, d := range Dimensions {
		*out.slot(d) = normalize(*s.slot(d))
	}
	return out
}

// With returns a copy of s with dimension d replaced by values.
func (s State) With(d Dimension, values []string) State {
	out := s.Clone()
	if p := out.slot(d); p != nil {
		*p = normalize(values)
	}
	return out
}

// IsEmpty reports whether s constrains nothing.
func (s State) IsEmpty() bool {
	if strings.TrimSpace(s.Search) != "" || s.DateRange.From != nil || s.DateRange.To != nil {
		return false
	}
	for _, d := range Dimensions {
		if len(*s.slot(d)) > 0 {
			return false
		}
	}
	return true
}

// ActiveCount returns the number of constraints in effect.
func (s State) ActiveCount() int {
	n := 0
	if strings.TrimSpace(s.Search) != "" {
		n++
	}
	if s.DateRange.From != nil || s.DateRange.To != nil {
		n++
	}
	for _, d := range Dimensions {
		n += len(*s.slot(d))
	}
	return n
}

// Equal reports whether a and b select the same cases.
func Equal(a, b State) bool {
	if strings.TrimSpace(a.Search) != strings.TrimSpace(b.Search) {
		return false
	}
	if !sameTime(a.DateRange.From, b.DateRange.From) || !sameTime(a.DateRange.To, b.DateRange.To) {
		return false
	}
	for _, d := range Dimensions {
		av, bv := normalize(*a.slot(d)), normalize(*b.slot(d))
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
	}
	return true
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Toggle adds value to dimension d when absent and removes it when present.
// It returns a new state and is its own inverse. Empty values and unknown
// dimensions leave the state unchanged.
func Toggle(s State, d Dimension, value string) State {
	out := s.Clone()
	p := out.slot(d)
	v := normValue(value)
	if p == nil || v == "" {
		return out
	}
	vals := *p
	i := sort.SearchStrings(vals, v)
	if i < len(vals) && vals[i] == v {
		*p = append(vals[:i:i], vals[i+1:]...)
		return out
	}
	next := make([]string, 0, len(vals)+1)
	next = append(next, vals[:i]...)
	next = append(next, v)
	next = append(next, vals[i:]...)
	*p = next
	return out
}

// ClearAll resets every constraint, including search and date range.
func ClearAll(State) State {
	return NewState()
}

func normValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func normalize(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = normValue(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
