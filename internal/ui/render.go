package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/derive"
	"github.com/Ashfaaq98/imaging-case-console/internal/filter"
)

// Selection markers. Brackets would be read as color tags by tview.
const (
	markOn  = "✓"
	markOff = "·"
)

// Columns is the case table header.
var Columns = []string{"Sel", "Patient", "ID", "Type", "Body Part", "Priority", "Conf", "Status", "Age", "Source"}

const (
	colSel = iota
	colPatient
	colID
	colType
	colBodyPart
	colPriority
	colConf
	colStatus
	colAge
	colSource
)

// viewMode splits the table into parallel manual and system views.
type viewMode int

const (
	modeAll viewMode = iota
	modeManual
	modeSystem
)

func (m viewMode) String() string {
	switch m {
	case modeManual:
		return "Manual uploads"
	case modeSystem:
		return "System cases"
	default:
		return "All cases"
	}
}

func (m viewMode) next() viewMode { return (m + 1) % 3 }

func (m viewMode) apply(recs []cases.Record) []cases.Record {
	if m == modeAll {
		return recs
	}
	want := cases.SourceManual
	if m == modeSystem {
		want = cases.SourceSystem
	}
	out := make([]cases.Record, 0, len(recs))
	for _, r := range recs {
		if r.Source == want {
			out = append(out, r)
		}
	}
	return out
}

// priorityKeys maps the number keys to the priority cards.
var priorityKeys = map[rune]derive.Priority{
	'1': derive.PriorityCritical,
	'2': derive.PriorityHigh,
	'3': derive.PriorityMedium,
	'4': derive.PriorityLow,
}

// rowCells renders rec as table cells.
func rowCells(rec cases.Record, selected bool) []string {
	d := rec.Display()
	mark := markOff
	if selected {
		mark = markOn
	}
	conf := fmt.Sprintf("%d%%", d.Confidence)
	if d.ConfidenceOverridden {
		conf += "*"
	}
	id := rec.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return []string{
		mark,
		truncate(rec.PatientName, 24),
		id,
		rec.ImageType,
		rec.BodyPart,
		strings.ToUpper(string(rec.Priority)),
		conf,
		string(rec.Status),
		rec.ImageAge,
		string(rec.Source),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// priorityCounts counts recs per priority.
func priorityCounts(recs []cases.Record) map[derive.Priority]int {
	out := make(map[derive.Priority]int, len(derive.Priorities))
	for _, r := range recs {
		out[r.Priority]++
	}
	return out
}

// priorityCards renders the header cards. Counts come from the unfiltered
// collection; cards toggled on in the filter are bracketed.
func priorityCards(t Theme, all []cases.Record, s filter.State) string {
	counts := priorityCounts(all)
	active := map[string]bool{}
	for _, v := range s.Values(filter.DimPriorities) {
		active[v] = true
	}
	parts := make([]string, 0, len(derive.Priorities))
	for i, p := range derive.Priorities {
		label := fmt.Sprintf("%d %s %d", i+1, strings.ToUpper(string(p)), counts[p])
		if active[string(p)] {
			label = "[::r] " + label + " [::-]"
		} else {
			label = " " + label + " "
		}
		parts = append(parts, fmt.Sprintf("[%s]%s[-]", t.priorityTag(p), label))
	}
	return strings.Join(parts, "  ")
}

// filterSummary renders the active filters and sort key.
func filterSummary(s filter.State, key filter.SortKey, mode viewMode, shown, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d of %d", mode, shown, total)
	fmt.Fprintf(&b, " | sort: %s", key)
	if s.Search != "" {
		fmt.Fprintf(&b, " | search: %q", s.Search)
	}
	if s.DateRange.From != nil || s.DateRange.To != nil {
		b.WriteString(" | dates: ")
		if s.DateRange.From != nil {
			b.WriteString(s.DateRange.From.Format("2006-01-02"))
		}
		b.WriteString("..")
		if s.DateRange.To != nil {
			b.WriteString(s.DateRange.To.Format("2006-01-02"))
		}
	}
	for _, d := range filter.Dimensions {
		if vals := s.Values(d); len(vals) > 0 {
			fmt.Fprintf(&b, " | %s: %s", d, strings.Join(vals, ","))
		}
	}
	return b.String()
}

// detailText renders the detail pane for rec.
func detailText(t Theme, rec cases.Record) string {
	d := rec.Display()
	var b strings.Builder
	line := func(label, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "[%s]%-13s[-] %s\n", t.TagMuted, label, tview.Escape(value))
	}

	fmt.Fprintf(&b, "[%s::b]%s[-::-]  [%s]%s[-]\n\n", t.TagAccent, tview.Escape(rec.PatientName), t.priorityTag(rec.Priority), strings.ToUpper(string(rec.Priority)))
	line("Case", rec.ID)
	line("Patient ID", rec.PatientID)
	line("Modality", rec.Modality)
	line("Body part", rec.BodyPart)
	line("Image", fmt.Sprintf("%s %s", rec.ImageType, rec.FileName))
	line("Status", string(rec.Status))
	sev := fmt.Sprintf("%d/10", d.Severity)
	if d.SeverityOverridden {
		sev += fmt.Sprintf(" (stored %d)", rec.SeverityRating)
	}
	line("Severity", sev)
	conf := fmt.Sprintf("%d%% %s", d.Confidence, d.ConfidenceBand)
	if d.ConfidenceOverridden {
		conf += fmt.Sprintf(" (stored %d%%)", rec.AIConfidence)
	}
	line("AI confidence", conf)
	line("Assigned to", rec.Assignee())
	line("Source", string(rec.Source))
	line("Created", formatStamp(rec.CreatedAt))
	line("Updated", formatStamp(rec.UpdatedAt))
	line("Attachment", rec.ImageData)

	fmt.Fprintf(&b, "\n[%s]Findings[-]\n%s\n", t.TagMuted, tview.Escape(orDash(rec.Findings)))
	if rec.RadiologistNotes != "" {
		fmt.Fprintf(&b, "\n[%s]Radiologist notes[-]\n%s\n", t.TagMuted, tview.Escape(rec.RadiologistNotes))
	}
	if rec.Comment != "" {
		fmt.Fprintf(&b, "\n[%s]Comment[-]\n%s\n", t.TagMuted, tview.Escape(rec.Comment))
	}
	return b.String()
}

func formatStamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// shortcutHints lists the main keys for the status bar.
func shortcutHints(t Theme, selected int) string {
	keys := "space:select a:all x:none /:search 1-4:priority f:filter c:clear s:sort Tab:view r:refresh ?:help q:quit"
	if selected > 0 {
		keys = fmt.Sprintf("%d selected  u:status p:priority o:assign e:export z:archive d:delete", selected)
	}
	return fmt.Sprintf("[%s]%s[-]", t.TagMuted, keys)
}

const helpText = `Navigation
  Up/Down, j/k     move between cases
  Tab              cycle all / manual / system views
  Enter            show case details

Filtering
  1-4              toggle critical / high / medium / low
  /                search patient, id, body part, findings
  f                filter by a dimension
  c                clear all filters
  s                cycle sort order

Selection and bulk actions
  space            select the current case
  a                select every visible case
  x                clear the selection
  u                set status
  p                set priority
  o                assign
  e                export to Excel
  z                archive
  d                delete

Other
  r                refresh now
  t                cycle theme
  q, Ctrl-C        quit`
