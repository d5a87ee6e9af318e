package cases

import "github.com/Ashfaaq98/imaging-case-console/internal/derive"

// Display holds the values shown for a case once overrides embedded in its
// findings are layered on top. The canonical record is never changed.
type Display struct {
	Severity   int
	Confidence int
	// Priority stays the canonical derived priority; filters and sorting use it too.
	Priority             derive.Priority
	ConfidenceBand       string
	SeverityOverridden   bool
	ConfidenceOverridden bool
}

// Display computes the display values for r.
func (r Record) Display() Display {
	d := Display{
		Severity:   r.SeverityRating,
		Confidence: r.AIConfidence,
		Priority:   r.Priority,
	}
	o := derive.ParseFindingsOverrides(r.Findings)
	if o.Severity != nil {
		d.Severity = *o.Severity
		d.SeverityOverridden = true
	}
	if o.Confidence != nil {
		d.Confidence = *o.Confidence
		d.ConfidenceOverridden = true
	}
	d.ConfidenceBand = derive.ConfidenceBand(d.Confidence)
	return d
}
