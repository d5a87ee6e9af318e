// Package derive holds the pure functions that re-derive clinical attributes
// from the underlying case fields.
package derive

import (
	"fmt"
	"strings"
)

// Priority is the clinical priority of a case, always derived from its severity rating.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Priorities lists every priority level, most urgent first.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// SeverityToPriority maps a 1-10 severity score to a priority level.
// Scores below 3, including zero and negatives, map to low.
func SeverityToPriority(score int) Priority {
	switch {
	case score >= 8:
		return PriorityCritical
	case score >= 6:
		return PriorityHigh
	case score >= 3:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Rank orders priorities for sorting: critical=4 down to low=1. Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) String() string { return string(p) }

// ParsePriority parses a priority name, ignoring case and surrounding space.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	default:
		return "", fmt.Errorf("invalid priority: %q (valid: critical, high, medium, low)", s)
	}
}

// RepresentativeSeverity returns the severity score written when an operator
// sets a priority directly. SeverityToPriority(RepresentativeSeverity(p)) == p.
func RepresentativeSeverity(p Priority) int {
	switch p {
	case PriorityCritical:
		return 9
	case PriorityHigh:
		return 7
	case PriorityMedium:
		return 5
	default:
		return 2
	}
}

// Confidence bands used by the AI-confidence filter dimension.
const (
	BandLow    = "low"
	BandMedium = "medium"
	BandHigh   = "high"
)

// ConfidenceBand buckets a 0-100 confidence into low (0-49), medium (50-79) or high (80-100).
func ConfidenceBand(confidence int) string {
	switch {
	case confidence >= 80:
		return BandHigh
	case confidence >= 50:
		return BandMedium
	default:
		return BandLow
	}
}
