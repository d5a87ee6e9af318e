package derive

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Overrides carries assessment values embedded in findings prose. A nil field
// means the text held no usable token for that dimension.
type Overrides struct {
	Severity   *int
	Confidence *int
}

var (
	severityToken   = regexp.MustCompile(`(?i)\bseverity(?:\s+(?:rating|score|level))?\s*(?:[:=]|is)?\s*(\d+(?:\.\d+)?)(?:\s*/\s*10)?`)
	confidenceToken = regexp.MustCompile(`(?i)\b(?:ai\s+)?confidence(?:\s+(?:score|level))?\s*(?:[:=]|of|is)?\s*(\d+(?:\.\d+)?)\s*(%)?`)
)

// ParseFindingsOverrides scans free text for embedded severity and confidence
// tokens such as "Severity: 7" or "Confidence: 82%". When a dimension appears
// more than once the last in-range value wins. Out-of-range values are ignored.
func ParseFindingsOverrides(text string) Overrides {
	var out Overrides
	if strings.TrimSpace(text) == "" {
		return out
	}

	for _, m := range severityToken.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		n := int(math.Round(v))
		if n < 1 || n > 10 {
			continue
		}
		out.Severity = &n
	}

	for _, m := range confidenceToken.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		// "confidence 0.82" is a fraction, "confidence 82%" a percentage.
		if m[2] == "" && strings.Contains(m[1], ".") && v <= 1 {
			v *= 100
		}
		n := int(math.Round(v))
		if n < 0 || n > 100 {
			continue
		}
		out.Confidence = &n
	}

	return out
}
