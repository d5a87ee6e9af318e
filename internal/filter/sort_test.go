package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/derive"
)

func TestSortKeys(t *testing.T) {
	recs := sampleCases(t)

	assert.Equal(t, []string{"c1", "c2", "c3", "c4", "c5"}, ids(Sort(recs, SortNewest)))
	assert.Equal(t, []string{"c5", "c4", "c3", "c2", "c1"}, ids(Sort(recs, SortOldest)))
	assert.Equal(t, []string{"c1", "c4", "c5", "c2", "c3"}, ids(Sort(recs, SortConfidenceHigh)))
	assert.Equal(t, []string{"c3", "c2", "c5", "c4", "c1"}, ids(Sort(recs, SortConfidenceLow)))
	// c1 and c5 are both critical; stable order keeps c1 first.
	assert.Equal(t, []string{"c1", "c5", "c3", "c2", "c4"}, ids(Sort(recs, SortPriority)))
}

func TestSortDoesNotMutateInput(t *testing.T) {
	recs := sampleCases(t)
	before := ids(recs)
	_ = Sort(recs, SortOldest)
	assert.Equal(t, before, ids(recs))
}

func TestSortIsStable(t *testing.T) {
	mk := func(id string, p derive.Priority, updated time.Time) cases.Record {
		return cases.Record{ID: id, Priority: p, UpdatedAt: updated}
	}
	same := baseTime
	recs := []cases.Record{
		mk("a", derive.PriorityHigh, same),
		mk("b", derive.PriorityLow, same.Add(time.Hour)),
		mk("c", derive.PriorityHigh, same),
		mk("d", derive.PriorityHigh, same.Add(time.Hour)),
	}
	assert.Equal(t, []string{"a", "c", "d", "b"}, ids(Sort(recs, SortPriority)))
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids(Sort(recs, SortUpdated)))
}

func TestSortUnknownKeyKeepsOrder(t *testing.T) {
	recs := sampleCases(t)
	assert.Equal(t, ids(recs), ids(Sort(recs, SortKey("alphabetical"))))
}

func TestParseSortKey(t *testing.T) {
	k, err := ParseSortKey("Confidence-High")
	require.NoError(t, err)
	assert.Equal(t, SortConfidenceHigh, k)

	k, err = ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortNewest, k)

	_, err = ParseSortKey("random")
	assert.Error(t, err)

	assert.Equal(t, SortOldest, SortNewest.Next())
	assert.Equal(t, SortNewest, SortPriority.Next())
}
