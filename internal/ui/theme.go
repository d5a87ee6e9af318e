package ui

import (
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/Ashfaaq98/imaging-case-console/internal/derive"
)

// Theme defines UI color tokens used across widgets and text tags.
type Theme struct {
	// Widget colors
	Surface     tcell.Color
	Border      tcell.Color
	FocusBorder tcell.Color
	SelectionBg tcell.Color
	SelectionFg tcell.Color
	TextPrimary tcell.Color
	TextMuted   tcell.Color

	// Table colors
	TableHeader   tcell.Color
	TableHeaderBg tcell.Color
	TableRow      tcell.Color
	TableZebra1   tcell.Color
	TableZebra2   tcell.Color
	Marked        tcell.Color

	// Priority (widgets)
	PriorityCritical tcell.Color
	PriorityHigh     tcell.Color
	PriorityMedium   tcell.Color
	PriorityLow      tcell.Color

	// Text tag colors (for tview dynamic color markup)
	TagTextPrimary      string
	TagMuted            string
	TagAccent           string
	TagSuccess          string
	TagWarning          string
	TagError            string
	TagPriorityCritical string
	TagPriorityHigh     string
	TagPriorityMedium   string
	TagPriorityLow      string
}

func hex(s string) tcell.Color { return tcell.GetColor(s) }

func themeDark() Theme {
	return Theme{
		Surface:     hex("#12161e"),
		Border:      hex("#2b3240"),
		FocusBorder: hex("#4aa8ff"),
		SelectionBg: hex("#2b3240"),
		SelectionFg: hex("#cfd8e3"),
		TextPrimary: hex("#e6edf3"),
		TextMuted:   hex("#8a939f"),

		TableHeader:   hex("#eab308"),
		TableHeaderBg: hex("#1a2332"),
		TableRow:      hex("#e6edf3"),
		TableZebra1:   hex("#161c27"),
		TableZebra2:   hex("#121823"),
		Marked:        hex("#2dd4bf"),

		PriorityCritical: hex("#ff5f5f"),
		PriorityHigh:     hex("#ffaf5f"),
		PriorityMedium:   hex("#ffd75f"),
		PriorityLow:      hex("#87ffaf"),

		TagTextPrimary:      "#e6edf3",
		TagMuted:            "#8a939f",
		TagAccent:           "#2dd4bf",
		TagSuccess:          "#22c55e",
		TagWarning:          "#f59e0b",
		TagError:            "#ef4444",
		TagPriorityCritical: "#ff5f5f",
		TagPriorityHigh:     "#ffaf5f",
		TagPriorityMedium:   "#ffd75f",
		TagPriorityLow:      "#87ffaf",
	}
}

func themeLight() Theme {
	return Theme{
		Surface:     hex("#f6f8fa"),
		Border:      hex("#d0d7de"),
		FocusBorder: hex("#0969da"),
		SelectionBg: hex("#ddf4ff"),
		SelectionFg: hex("#0b2545"),
		TextPrimary: hex("#1f2328"),
		TextMuted:   hex("#57606a"),

		TableHeader:   hex("#0969da"),
		TableHeaderBg: hex("#eaeef2"),
		TableRow:      hex("#1f2328"),
		TableZebra1:   hex("#ffffff"),
		TableZebra2:   hex("#f6f8fa"),
		Marked:        hex("#8250df"),

		PriorityCritical: hex("#cf222e"),
		PriorityHigh:     hex("#bc4c00"),
		PriorityMedium:   hex("#9a6700"),
		PriorityLow:      hex("#1a7f37"),

		TagTextPrimary:      "#1f2328",
		TagMuted:            "#57606a",
		TagAccent:           "#8250df",
		TagSuccess:          "#1a7f37",
		TagWarning:          "#9a6700",
		TagError:            "#cf222e",
		TagPriorityCritical: "#cf222e",
		TagPriorityHigh:     "#bc4c00",
		TagPriorityMedium:   "#9a6700",
		TagPriorityLow:      "#1a7f37",
	}
}

func themeNeon() Theme {
	return Theme{
		Surface:     hex("#14111a"),
		Border:      hex("#45385a"),
		FocusBorder: hex("#ff79c6"), // pink focus ring
		SelectionBg: hex("#2a1f3d"),
		SelectionFg: hex("#f8f5ff"),
		TextPrimary: hex("#f8f5ff"),
		TextMuted:   hex("#b8a8c9"),

		TableHeader:   hex("#ff79c6"),
		TableHeaderBg: hex("#301d49"),
		TableRow:      hex("#f8f5ff"),
		TableZebra1:   hex("#1a1426"),
		TableZebra2:   hex("#151020"),
		Marked:        hex("#00d084"),

		PriorityCritical: hex("#ff3b30"),
		PriorityHigh:     hex("#ff9f0a"),
		PriorityMedium:   hex("#ffd60a"),
		PriorityLow:      hex("#34c759"),

		TagTextPrimary:      "#f8f5ff",
		TagMuted:            "#b8a8c9",
		TagAccent:           "#ff6ac1",
		TagSuccess:          "#00d084",
		TagWarning:          "#ffd166",
		TagError:            "#ff5555",
		TagPriorityCritical: "#ff3b30",
		TagPriorityHigh:     "#ff9f0a",
		TagPriorityMedium:   "#ffd60a",
		TagPriorityLow:      "#34c759",
	}
}

// themeNames is the cycle order for the theme key.
var themeNames = []string{"dark", "light", "neon"}

func themeByName(name string) (Theme, string) {
	switch strings.ToLower(name) {
	case "light":
		return themeLight(), "light"
	case "neon":
		return themeNeon(), "neon"
	default:
		return themeDark(), "dark"
	}
}

func nextThemeName(current string) string {
	for i, n := range themeNames {
		if n == current {
			return themeNames[(i+1)%len(themeNames)]
		}
	}
	return themeNames[0]
}

func (t Theme) priorityColor(p derive.Priority) tcell.Color {
	switch p {
	case derive.PriorityCritical:
		return t.PriorityCritical
	case derive.PriorityHigh:
		return t.PriorityHigh
	case derive.PriorityMedium:
		return t.PriorityMedium
	case derive.PriorityLow:
		return t.PriorityLow
	default:
		return t.TableRow
	}
}

func (t Theme) priorityTag(p derive.Priority) string {
	switch p {
	case derive.PriorityCritical:
		return t.TagPriorityCritical
	case derive.PriorityHigh:
		return t.TagPriorityHigh
	case derive.PriorityMedium:
		return t.TagPriorityMedium
	case derive.PriorityLow:
		return t.TagPriorityLow
	default:
		return t.TagTextPrimary
	}
}

func detectTrueColor() bool {
	// Best-effort detection without initializing screen
	ct := strings.ToLower(os.Getenv("COLORTERM"))
	if strings.Contains(ct, "truecolor") || strings.Contains(ct, "24bit") {
		return true
	}
	term := strings.ToLower(os.Getenv("TERM"))
	return strings.Contains(term, "truecolor") || strings.Contains(term, "24bit") || strings.Contains(term, "256color")
}
