package ui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashfaaq98/imaging-case-console/internal/bus"
	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/derive"
	"github.com/Ashfaaq98/imaging-case-console/internal/filter"
	"github.com/Ashfaaq98/imaging-case-console/internal/repository"
	"github.com/Ashfaaq98/imaging-case-console/internal/selection"
	"github.com/Ashfaaq98/imaging-case-console/internal/store"
)

type fixture struct {
	ui    *UI
	repo  *repository.Repository
	store *store.SQLStore
	tee   *bus.Tee
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewStore(store.Options{Path: filepath.Join(t.TempDir(), "cases.db"), PrincipalID: "alice"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	now := time.Now()
	ctx := context.Background()
	for i, row := range []store.Row{
		{store.ColID: "crit-manual", store.ColUserID: "alice", store.ColPatientName: "Ana Lima", store.ColSeverityRating: 9, store.ColBodyPart: "Chest"},
		{store.ColID: "high-system", store.ColPatientName: "Ben Ode", store.ColSeverityRating: 6, store.ColBodyPart: "Head"},
		{store.ColID: "low-system", store.ColPatientName: "Cy Park", store.ColSeverityRating: 1, store.ColBodyPart: "Knee"},
		{store.ColID: "crit-system", store.ColPatientName: "Di Ray", store.ColSeverityRating: 8, store.ColFindings: "Confidence: 91%"},
	} {
		row[store.ColCreatedAt] = now.Add(-time.Duration(i) * time.Hour)
		_, err := s.Insert(ctx, store.TableCases, row)
		require.NoError(t, err)
	}

	tee := bus.NewTee(bus.NewNullBus(nil))
	repo := repository.New(repository.Options{Store: s, Bus: tee})
	t.Cleanup(repo.Close)

	engine := filter.NewEngine()
	sel := selection.New(selection.Options{Mutator: repo, Auditor: s, ExportDir: t.TempDir()})
	sel.Bind(engine)

	ui := NewUI(ctx, Deps{Repo: repo, Engine: engine, Selection: sel, Notifications: tee, Theme: "dark"})
	ui.async = func(fn func()) { fn() }

	require.NoError(t, repo.Refetch(ctx))
	return &fixture{ui: ui, repo: repo, store: s, tee: tee}
}

func key(r rune) *tcell.EventKey { return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone) }

func (f *fixture) column(col int) []string {
	var out []string
	for row := 1; row < f.ui.table.GetRowCount(); row++ {
		out = append(out, f.ui.table.GetCell(row, col).Text)
	}
	return out
}

func TestRenderAfterFetch(t *testing.T) {
	f := newFixture(t)

	for col, h := range Columns {
		assert.Equal(t, h, f.ui.table.GetCell(0, col).Text)
	}
	assert.Equal(t, []string{"crit-man", "high-sys", "low-syst", "crit-sys"}, f.column(colID))
	assert.Equal(t, []string{"CRITICAL", "HIGH", "LOW", "CRITICAL"}, f.column(colPriority))
	assert.Equal(t, "91%*", f.column(colConf)[3])
	assert.Contains(t, f.ui.cards.GetText(true), "CRITICAL 2")
	assert.Contains(t, f.ui.detail.GetText(true), "Ana Lima")
}

func TestPriorityKeysToggleFilter(t *testing.T) {
	f := newFixture(t)

	assert.Nil(t, f.ui.handleKey(key('1')))
	assert.Equal(t, []string{"critical"}, f.ui.deps.Engine.State().Values(filter.DimPriorities))
	assert.Equal(t, []string{"CRITICAL", "CRITICAL"}, f.column(colPriority))

	f.ui.handleKey(key('4'))
	assert.Len(t, f.ui.visible, 3)

	f.ui.handleKey(key('1'))
	f.ui.handleKey(key('4'))
	assert.Len(t, f.ui.visible, 4)

	f.ui.handleKey(key('2'))
	f.ui.handleKey(key('c'))
	assert.True(t, f.ui.deps.Engine.State().IsEmpty())
}

func TestTabCyclesSourceViews(t *testing.T) {
	f := newFixture(t)

	f.ui.handleKey(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone))
	assert.Equal(t, modeManual, f.ui.mode)
	assert.Equal(t, []string{"crit-man"}, f.column(colID))

	f.ui.handleKey(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone))
	assert.Equal(t, modeSystem, f.ui.mode)
	assert.Len(t, f.ui.visible, 3)

	f.ui.handleKey(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone))
	assert.Equal(t, modeAll, f.ui.mode)
}

func TestSelectionKeys(t *testing.T) {
	f := newFixture(t)
	sel := f.ui.deps.Selection

	f.ui.handleKey(key(' '))
	assert.True(t, sel.Contains("crit-manual"))
	assert.Equal(t, markOn, f.ui.table.GetCell(1, colSel).Text)

	f.ui.handleKey(key('x'))
	assert.Equal(t, 0, sel.Size())

	f.ui.handleKey(key('1'))
	f.ui.handleKey(key('a'))
	assert.Equal(t, []string{"crit-manual", "crit-system"}, sel.IDs())
	assert.Contains(t, f.ui.statusBar.GetText(true), "2 selected")

	// a view change drops the selection
	f.ui.handleKey(key('s'))
	assert.Equal(t, 0, sel.Size())
	assert.Equal(t, filter.SortOldest, f.ui.deps.Engine.SortKey())
}

func TestBulkFromDashboard(t *testing.T) {
	f := newFixture(t)

	f.ui.handleKey(key('1'))
	f.ui.handleKey(key('a'))
	f.ui.runBulk(selection.StatusOp(cases.StatusReviewCompleted))

	for _, id := range []string{"crit-manual", "crit-system"} {
		rec, ok := f.repo.Get(id)
		require.True(t, ok)
		assert.Equal(t, cases.StatusReviewCompleted, rec.Status)
	}
	assert.Contains(t, f.ui.statusBar.GetText(true), "status: 2 of 2 succeeded")

	entries, err := f.store.GetAuditEntries(context.Background(), "crit-system", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBulkTargetsHighlightedCaseWithoutSelection(t *testing.T) {
	f := newFixture(t)
	f.ui.moveSelection(1)
	assert.Equal(t, []string{"high-system"}, f.ui.targets())

	f.ui.runBulk(selection.PriorityOp(derive.PriorityLow))
	rec, _ := f.repo.Get("high-system")
	assert.Equal(t, derive.PriorityLow, rec.Priority)
}

func TestArchiveRemovesRows(t *testing.T) {
	f := newFixture(t)
	f.ui.handleKey(key(' '))
	f.ui.runBulk(selection.ArchiveOp())

	assert.NotContains(t, f.column(colID), "crit-man")
	assert.Equal(t, 0, f.ui.deps.Selection.Size())
}

func TestDialogsBlockGlobalKeys(t *testing.T) {
	f := newFixture(t)

	f.ui.handleKey(key('/'))
	assert.True(t, f.ui.isDialogActive())
	f.ui.closeDialog()
	assert.False(t, f.ui.isDialogActive())

	f.ui.handleKey(key('d'))
	assert.True(t, f.ui.isDialogActive(), "delete asks first")
	f.ui.closeDialog()
	assert.Len(t, f.repo.Cases(), 4)

	f.ui.handleKey(key('?'))
	assert.True(t, f.ui.isDialogActive())
}

func TestNotificationsReachStatusBar(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tee.Notify(context.Background(), bus.Notification{Kind: bus.KindError, Message: "store unreachable"}))
	assert.Contains(t, f.ui.statusBar.GetText(true), "store unreachable")
}

func TestThemeCycle(t *testing.T) {
	f := newFixture(t)
	f.ui.handleKey(key('t'))
	assert.Equal(t, "light", f.ui.themeName)
	f.ui.handleKey(key('t'))
	f.ui.handleKey(key('t'))
	assert.Equal(t, "dark", f.ui.themeName)
	assert.Equal(t, "dark", f.ui.Stats()["theme"])
}

func TestRowCells(t *testing.T) {
	rec := cases.Record{
		ID: "0123456789", PatientName: strings.Repeat("x", 30), ImageType: "CT", BodyPart: "Chest",
		Priority: derive.PriorityHigh, AIConfidence: 72, Status: cases.StatusOpen, ImageAge: "3h", Source: cases.SourceSystem,
	}
	cells := rowCells(rec, true)
	require.Len(t, cells, len(Columns))
	assert.Equal(t, markOn, cells[colSel])
	assert.Equal(t, "01234567", cells[colID])
	assert.Len(t, []rune(cells[colPatient]), 24)
	assert.Equal(t, "HIGH", cells[colPriority])
	assert.Equal(t, "72%", cells[colConf])
	assert.Equal(t, "system", cells[colSource])
}

func TestFilterSummary(t *testing.T) {
	s := filter.Toggle(filter.NewState(), filter.DimStatuses, "open")
	s.Search = "chest"
	out := filterSummary(s, filter.SortPriority, modeManual, 2, 9)
	assert.Equal(t, `Manual uploads: 2 of 9 | sort: priority | search: "chest" | statuses: open`, out)
}
