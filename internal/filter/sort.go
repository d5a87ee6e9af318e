package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
)

// SortKey selects the ordering of a view.
type SortKey string

const (
	SortNewest         SortKey = "newest"
	SortOldest         SortKey = "oldest"
	SortConfidenceHigh SortKey = "confidence-high"
	SortConfidenceLow  SortKey = "confidence-low"
	SortUpdated        SortKey = "updated"
	SortPriority       SortKey = "priority"
)

// SortKeys lists every sort key in the order the dashboard cycles through them.
var SortKeys = []SortKey{
	SortNewest, SortOldest, SortConfidenceHigh, SortConfidenceLow, SortUpdated, SortPriority,
}

// ParseSortKey resolves a sort key name. Empty means newest.
func ParseSortKey(s string) (SortKey, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return SortNewest, nil
	}
	for _, k := range SortKeys {
		if string(k) == v {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// Next returns the key after k in SortKeys, wrapping around.
func (k SortKey) Next() SortKey {
	for i, key := range SortKeys {
		if key == k {
			return SortKeys[(i+1)%len(SortKeys)]
		}
	}
	return SortNewest
}

// Sort returns a stably sorted copy of in. Unknown keys keep the input order.
func Sort(in []cases.Record, key SortKey) []cases.Record {
	out := make([]cases.Record, len(in))
	copy(out, in)

	var less func(a, b cases.Record) bool
	switch key {
	case SortNewest:
		less = func(a, b cases.Record) bool { return a.CreatedAt.After(b.CreatedAt) }
	case SortOldest:
		less = func(a, b cases.Record) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortConfidenceHigh:
		less = func(a, b cases.Record) bool { return a.AIConfidence > b.AIConfidence }
	case SortConfidenceLow:
		less = func(a, b cases.Record) bool { return a.AIConfidence < b.AIConfidence }
	case SortUpdated:
		less = func(a, b cases.Record) bool { return a.UpdatedAt.After(b.UpdatedAt) }
	case SortPriority:
		less = func(a, b cases.Record) bool { return a.Priority.Rank() > b.Priority.Rank() }
	default:
		return out
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
