package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityToPriorityBoundaries(t *testing.T) {
	cases := map[int]Priority{
		-3: PriorityLow,
		0:  PriorityLow,
		1:  PriorityLow,
		2:  PriorityLow,
		3:  PriorityMedium,
		5:  PriorityMedium,
		6:  PriorityHigh,
		7:  PriorityHigh,
		8:  PriorityCritical,
		10: PriorityCritical,
		42: PriorityCritical,
	}
	for score, want := range cases {
		assert.Equal(t, want, SeverityToPriority(score), "score %d", score)
	}
}

func TestSeverityToPriorityMonotonic(t *testing.T) {
	prev := SeverityToPriority(10).Rank()
	for score := 9; score >= 1; score-- {
		rank := SeverityToPriority(score).Rank()
		assert.LessOrEqual(t, rank, prev, "rank must not increase as score drops (score %d)", score)
		prev = rank
	}
}

func TestRepresentativeSeverityRoundTrips(t *testing.T) {
	for _, p := range Priorities {
		assert.Equal(t, p, SeverityToPriority(RepresentativeSeverity(p)))
	}
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("  HIGH ")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)

	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}

func TestRankOrdering(t *testing.T) {
	assert.Equal(t, 4, PriorityCritical.Rank())
	assert.Equal(t, 3, PriorityHigh.Rank())
	assert.Equal(t, 2, PriorityMedium.Rank())
	assert.Equal(t, 1, PriorityLow.Rank())
	assert.Equal(t, 0, Priority("bogus").Rank())
}

func TestConfidenceBand(t *testing.T) {
	assert.Equal(t, BandLow, ConfidenceBand(0))
	assert.Equal(t, BandLow, ConfidenceBand(49))
	assert.Equal(t, BandMedium, ConfidenceBand(50))
	assert.Equal(t, BandMedium, ConfidenceBand(79))
	assert.Equal(t, BandHigh, ConfidenceBand(80))
	assert.Equal(t, BandHigh, ConfidenceBand(100))
}

func TestParseFindingsOverrides(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		severity   *int
		confidence *int
	}{
		{name: "empty", text: ""},
		{name: "no tokens", text: "No acute cardiopulmonary process."},
		{name: "confidence percent", text: "Small nodule in RUL. Confidence: 91%", confidence: intPtr(91)},
		{name: "severity only", text: "Severity: 7. Recommend follow-up CT.", severity: intPtr(7)},
		{name: "both", text: "severity rating = 9, AI confidence 64 %", severity: intPtr(9), confidence: intPtr(64)},
		{name: "severity out of ten", text: "Overall severity 6/10", severity: intPtr(6)},
		{name: "fractional confidence", text: "confidence score: 0.82", confidence: intPtr(82)},
		{name: "out of range ignored", text: "Severity: 14, Confidence: 180%"},
		{name: "last value wins", text: "Severity: 4. Addendum: Severity: 8", severity: intPtr(8)},
		{name: "malformed", text: "Severity: ?? confidence: high"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFindingsOverrides(tt.text)
			assert.Equal(t, tt.severity, got.Severity)
			assert.Equal(t, tt.confidence, got.Confidence)
		})
	}
}

func intPtr(v int) *int { return &v }
