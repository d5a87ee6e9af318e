// Package ui is the terminal dashboard: a priority-card header, the filtered
// and sorted case table, a detail pane and keyboard-driven bulk actions.
package ui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/imaging-case-console/internal/bus"
	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/filter"
	"github.com/Ashfaaq98/imaging-case-console/internal/repository"
	"github.com/Ashfaaq98/imaging-case-console/internal/selection"
)

const pageMain = "main"

// Deps wires the dashboard to the console components.
type Deps struct {
	Repo      *repository.Repository
	Engine    *filter.Engine
	Selection *selection.Coordinator
	// Notifications, when set, feeds info/success/error/auth messages to the status bar.
	Notifications *bus.Tee
	Theme         string
	Logger        *zap.Logger
}

// UI represents the terminal user interface
type UI struct {
	app    *tview.Application
	deps   Deps
	logger *zap.Logger

	// Layout components
	pages     *tview.Pages
	title     *tview.TextView
	cards     *tview.TextView
	summary   *tview.TextView
	table     *tview.Table
	detail    *tview.TextView
	statusBar *tview.TextView

	// State, touched only on the UI goroutine once running
	theme     Theme
	themeName string
	mode      viewMode
	visible   []cases.Record
	lastMsg   string

	running atomic.Bool
	// async runs background work; tests replace it to stay synchronous.
	async func(func())

	ctx    context.Context
	cancel context.CancelFunc
}

// NewUI creates a new terminal user interface
func NewUI(ctx context.Context, deps Deps) *UI {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Engine == nil {
		deps.Engine = filter.NewEngine()
	}
	if deps.Selection == nil {
		opts := selection.Options{Logger: logger}
		if deps.Repo != nil {
			opts.Mutator = deps.Repo
		}
		deps.Selection = selection.New(opts)
		deps.Selection.Bind(deps.Engine)
	}

	uiCtx, cancel := context.WithCancel(ctx)
	ui := &UI{
		app:    tview.NewApplication(),
		deps:   deps,
		logger: logger.With(zap.String("component", "ui")),
		ctx:    uiCtx,
		cancel: cancel,
		async:  func(fn func()) { go fn() },
	}

	name := deps.Theme
	if name == "" && detectTrueColor() {
		name = "neon"
	}
	ui.theme, ui.themeName = themeByName(name)

	ui.setupLayout()
	ui.setupKeybindings()
	ui.subscribe()
	ui.applyTheme()
	ui.render()
	return ui
}

// Start runs the TUI until Stop, ctx cancellation or the quit key.
func (ui *UI) Start(ctx context.Context) error {
	ui.logger.Info("starting dashboard")

	go func() {
		select {
		case <-ctx.Done():
		case <-ui.ctx.Done():
		}
		ui.cancel()
		ui.app.Stop()
	}()

	ui.running.Store(true)
	err := ui.app.Run()
	ui.running.Store(false)
	ui.logger.Info("dashboard stopped", zap.Error(err))
	return err
}

// Stop stops the TUI application
func (ui *UI) Stop() {
	ui.cancel()
	ui.app.Stop()
}

// queue runs fn on the UI goroutine and redraws. Before Start it runs fn inline.
func (ui *UI) queue(fn func()) {
	if ui.running.Load() {
		ui.app.QueueUpdateDraw(fn)
		return
	}
	fn()
}

func (ui *UI) subscribe() {
	if ui.deps.Repo != nil {
		ui.deps.Repo.OnChange(func(snap repository.Snapshot) {
			ui.queue(func() {
				ui.render()
				if snap.State == repository.StateError && snap.Err != nil {
					ui.setStatus("[%s]Refresh failed: %v[-]", ui.theme.TagError, snap.Err)
				}
			})
		})
	}
	ui.deps.Engine.OnChange(func(filter.State, filter.SortKey) {
		ui.queue(ui.render)
	})
	ui.deps.Selection.OnChange(func(int) {
		ui.queue(ui.renderSelection)
	})
	if ui.deps.Notifications != nil {
		ui.deps.Notifications.Listen(func(n bus.Notification) {
			ui.queue(func() { ui.showNotification(n) })
		})
	}
}

func (ui *UI) setupLayout() {
	ui.title = tview.NewTextView().SetDynamicColors(true)

	ui.cards = tview.NewTextView().SetDynamicColors(true)
	ui.cards.SetTitle(" PRIORITY ")
	ui.cards.SetBorder(true)
	ui.cards.SetTitleAlign(tview.AlignLeft)

	ui.summary = tview.NewTextView().SetDynamicColors(false)

	ui.table = tview.NewTable()
	ui.table.SetTitle(" Cases ")
	ui.table.SetBorder(true)
	ui.table.SetTitleAlign(tview.AlignLeft)
	ui.table.SetSelectable(true, false)
	// Pin header row so it stays visible when selecting/scrolling.
	ui.table.SetFixed(1, 0)
	ui.table.SetSelectionChangedFunc(func(row, col int) { ui.showDetail(row) })

	ui.detail = tview.NewTextView()
	ui.detail.SetTitle(" Case Details ")
	ui.detail.SetBorder(true)
	ui.detail.SetTitleAlign(tview.AlignLeft)
	ui.detail.SetDynamicColors(true)
	ui.detail.SetWordWrap(true)
	ui.detail.SetScrollable(true)

	ui.statusBar = tview.NewTextView().SetDynamicColors(true)

	body := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(ui.table, 0, 3, true).
		AddItem(ui.detail, 0, 2, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.title, 1, 0, false).
		AddItem(ui.cards, 3, 0, false).
		AddItem(ui.summary, 1, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(ui.statusBar, 1, 0, false)

	ui.pages = tview.NewPages().AddPage(pageMain, root, true, true)
	ui.app.SetRoot(ui.pages, true)
	ui.app.SetFocus(ui.table)
}

func (ui *UI) setupKeybindings() {
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// While a modal or form is active, allow it to handle all keys.
		if ui.isDialogActive() {
			return event
		}
		return ui.handleKey(event)
	})
}

func (ui *UI) isDialogActive() bool {
	name, _ := ui.pages.GetFrontPage()
	return name != pageMain
}

// handleKey maps dashboard keys to actions. Unhandled keys fall through to the table.
func (ui *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyCtrlC:
		ui.Stop()
		return nil
	case tcell.KeyTab:
		ui.cycleMode()
		return nil
	case tcell.KeyEsc:
		ui.setStatus("[%s]Ready[-]", ui.theme.TagAccent)
		return nil
	case tcell.KeyRune:
	default:
		return event
	}

	r := event.Rune()
	if p, ok := priorityKeys[r]; ok {
		ui.deps.Engine.Toggle(filter.DimPriorities, string(p))
		return nil
	}
	switch r {
	case 'q', 'Q':
		ui.Stop()
	case ' ':
		ui.toggleCurrent()
	case 'a':
		ui.deps.Selection.SelectAll(ui.visible)
		ui.setStatus("[%s]Selected %d visible cases[-]", ui.theme.TagAccent, ui.deps.Selection.Size())
	case 'x':
		ui.deps.Selection.Clear()
	case '/':
		ui.showSearch()
	case 'f':
		ui.showDimensionPicker()
	case 'c':
		ui.deps.Engine.ClearAll()
		ui.setStatus("[%s]Filters cleared[-]", ui.theme.TagSuccess)
	case 's':
		ui.deps.Engine.SetSort(ui.deps.Engine.SortKey().Next())
		ui.setStatus("[%s]Sort: %s[-]", ui.theme.TagAccent, ui.deps.Engine.SortKey())
	case 'r':
		ui.refresh()
	case 't':
		ui.setTheme(nextThemeName(ui.themeName))
	case '?':
		ui.showModal("Help", helpText)
	case 'j':
		ui.moveSelection(1)
	case 'k':
		ui.moveSelection(-1)
	case 'u':
		ui.showStatusPicker()
	case 'p':
		ui.showPriorityPicker()
	case 'o':
		ui.showAssignInput()
	case 'e':
		ui.runBulk(selection.ExportOp(""))
	case 'z':
		ui.confirmBulk(selection.ArchiveOp())
	case 'd':
		ui.confirmBulk(selection.DeleteOp())
	default:
		return event
	}
	return nil
}

// render rebuilds the cards, summary and table from the repository and engine.
func (ui *UI) render() {
	var all []cases.Record
	state := repository.StateIdle
	if ui.deps.Repo != nil {
		snap := ui.deps.Repo.Snapshot()
		all, state = snap.Cases, snap.State
	}
	fs := ui.deps.Engine.State()
	ui.visible = ui.mode.apply(ui.deps.Engine.View(all))

	ui.title.SetText(fmt.Sprintf(" [%s::b]Imaging Case Console[-::-]  [%s]%s[-]", ui.theme.TagAccent, ui.theme.TagMuted, state))
	ui.cards.SetText(priorityCards(ui.theme, all, fs))
	ui.summary.SetText(" " + filterSummary(fs, ui.deps.Engine.SortKey(), ui.mode, len(ui.visible), len(all)))

	row, _ := ui.table.GetSelection()
	ui.renderTable()
	if n := len(ui.visible); n > 0 {
		if row < 1 {
			row = 1
		}
		if row > n {
			row = n
		}
		ui.table.Select(row, 0)
	}
	ui.showDetail(row)
	ui.renderStatus()
}

func (ui *UI) renderTable() {
	ui.table.Clear()
	for col, header := range Columns {
		ui.table.SetCell(0, col, tview.NewTableCell(header).
			SetTextColor(ui.theme.TableHeader).
			SetBackgroundColor(ui.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}
	if len(ui.visible) == 0 {
		ui.table.SetCell(1, 0, tview.NewTableCell("No cases match").SetTextColor(ui.theme.TextMuted).SetSelectable(false))
		return
	}
	for i, rec := range ui.visible {
		bg := ui.theme.TableZebra1
		if i%2 == 1 {
			bg = ui.theme.TableZebra2
		}
		selected := ui.deps.Selection.Contains(rec.ID)
		for col, text := range rowCells(rec, selected) {
			cell := tview.NewTableCell(tview.Escape(text)).SetTextColor(ui.theme.TableRow).SetBackgroundColor(bg)
			switch {
			case col == colPriority:
				cell.SetTextColor(ui.theme.priorityColor(rec.Priority)).SetAttributes(tcell.AttrBold)
			case col == colSel && selected:
				cell.SetTextColor(ui.theme.Marked)
			case col == colPatient:
				cell.SetExpansion(1)
			}
			ui.table.SetCell(i+1, col, cell)
		}
	}
}

// renderSelection refreshes the selection column and status bar only.
func (ui *UI) renderSelection() {
	for i, rec := range ui.visible {
		cell := ui.table.GetCell(i+1, colSel)
		if cell == nil {
			continue
		}
		if ui.deps.Selection.Contains(rec.ID) {
			cell.SetText(markOn).SetTextColor(ui.theme.Marked)
		} else {
			cell.SetText(markOff).SetTextColor(ui.theme.TableRow)
		}
	}
	ui.renderStatus()
}

func (ui *UI) showDetail(row int) {
	if row < 1 || row > len(ui.visible) {
		ui.detail.SetText(fmt.Sprintf("[%s]No case selected[-]", ui.theme.TagMuted))
		return
	}
	ui.detail.SetText(detailText(ui.theme, ui.visible[row-1]))
	ui.detail.ScrollToBeginning()
}

func (ui *UI) current() (cases.Record, bool) {
	row, _ := ui.table.GetSelection()
	if row < 1 || row > len(ui.visible) {
		return cases.Record{}, false
	}
	return ui.visible[row-1], true
}

func (ui *UI) toggleCurrent() {
	rec, ok := ui.current()
	if !ok {
		return
	}
	ui.deps.Selection.Toggle(rec.ID)
	ui.moveSelection(1)
}

func (ui *UI) moveSelection(delta int) {
	if len(ui.visible) == 0 {
		return
	}
	row, _ := ui.table.GetSelection()
	row += delta
	if row < 1 {
		row = 1
	}
	if row > len(ui.visible) {
		row = len(ui.visible)
	}
	ui.table.Select(row, 0)
	ui.showDetail(row)
}

// cycleMode switches between the all, manual and system views. The
// selection is cleared because its cases may no longer be visible.
func (ui *UI) cycleMode() {
	ui.mode = ui.mode.next()
	ui.deps.Selection.Clear()
	ui.render()
	ui.setStatus("[%s]View: %s[-]", ui.theme.TagAccent, ui.mode)
}

func (ui *UI) refresh() {
	if ui.deps.Repo == nil {
		return
	}
	ui.setStatus("[%s]Refreshing...[-]", ui.theme.TagAccent)
	ui.async(func() {
		if err := ui.deps.Repo.Refetch(ui.ctx); err != nil {
			ui.logger.Debug("manual refresh failed", zap.Error(err))
			return
		}
		ui.queue(func() { ui.setStatus("[%s]Cases refreshed[-]", ui.theme.TagSuccess) })
	})
}

// targets returns the selected ids, or the highlighted case when nothing is selected.
func (ui *UI) targets() []string {
	if ids := ui.deps.Selection.IDsIn(ui.visible); len(ids) > 0 {
		return ids
	}
	if rec, ok := ui.current(); ok {
		return []string{rec.ID}
	}
	return nil
}

// runBulk dispatches op in the background and reports the summary.
func (ui *UI) runBulk(op selection.Operation) {
	ids := ui.targets()
	if len(ids) == 0 {
		ui.setStatus("[%s]No cases to act on[-]", ui.theme.TagWarning)
		return
	}
	ui.setStatus("[%s]Running %s on %d cases...[-]", ui.theme.TagAccent, op.Kind, len(ids))
	ui.async(func() {
		res := ui.deps.Selection.DispatchBulk(ui.ctx, op, ids)
		ui.queue(func() { ui.showBulkResult(res) })
	})
}

func (ui *UI) showBulkResult(res selection.BulkResult) {
	tag := ui.theme.TagSuccess
	if res.Err() != nil {
		tag = ui.theme.TagWarning
		if len(res.Succeeded()) == 0 {
			tag = ui.theme.TagError
		}
	}
	msg := fmt.Sprintf("%s: %s", res.Op, res.Summary())
	if res.ExportPath != "" {
		msg += " -> " + res.ExportPath
	}
	if err := res.Err(); err != nil {
		ui.logger.Warn("bulk operation partially failed", zap.Error(err))
	}
	ui.setStatus("[%s]%s[-]", tag, msg)
}

func (ui *UI) showNotification(n bus.Notification) {
	tag := ui.theme.TagAccent
	switch n.Kind {
	case bus.KindSuccess:
		tag = ui.theme.TagSuccess
	case bus.KindError:
		tag = ui.theme.TagError
	case bus.KindAuth:
		tag = ui.theme.TagWarning
	}
	ui.setStatus("[%s]%s[-]", tag, tview.Escape(n.Message))
}

// setStatus updates the status bar. Call it on the UI goroutine.
func (ui *UI) setStatus(format string, args ...interface{}) {
	ui.lastMsg = fmt.Sprintf(format, args...)
	ui.renderStatus()
}

func (ui *UI) renderStatus() {
	msg := ui.lastMsg
	if msg == "" {
		msg = fmt.Sprintf("[%s]Ready[-]", ui.theme.TagAccent)
	}
	ui.statusBar.SetText(fmt.Sprintf("[%s]%s[-] %s [%s]|[-] %s",
		ui.theme.TagMuted, time.Now().Format("15:04:05"),
		msg,
		ui.theme.TagMuted,
		shortcutHints(ui.theme, ui.deps.Selection.Size())))
}

// applyTheme pushes theme colors to widgets
func (ui *UI) applyTheme() {
	for _, box := range []*tview.Box{ui.cards.Box, ui.table.Box, ui.detail.Box} {
		box.SetBorderColor(ui.theme.Border)
		box.SetBackgroundColor(ui.theme.Surface)
	}
	ui.table.SetBorderColor(ui.theme.FocusBorder)
	ui.table.SetSelectedStyle(tcell.StyleDefault.Background(ui.theme.SelectionBg).Foreground(ui.theme.SelectionFg))
	for _, tv := range []*tview.TextView{ui.title, ui.summary, ui.statusBar, ui.detail, ui.cards} {
		tv.SetTextColor(ui.theme.TextPrimary)
		tv.SetBackgroundColor(ui.theme.Surface)
	}
	ui.summary.SetTextColor(ui.theme.TextMuted)
}

func (ui *UI) setTheme(name string) {
	ui.theme, ui.themeName = themeByName(name)
	ui.applyTheme()
	ui.render()
	ui.setStatus("[%s]Theme: %s[-]", ui.theme.TagAccent, ui.themeName)
}

// Stats reports dashboard counters.
func (ui *UI) Stats() map[string]interface{} {
	total := 0
	if ui.deps.Repo != nil {
		total = len(ui.deps.Repo.Cases())
	}
	return map[string]interface{}{
		"cases_loaded":   total,
		"cases_visible":  len(ui.visible),
		"cases_selected": ui.deps.Selection.Size(),
		"view":           ui.mode.String(),
		"sort":           string(ui.deps.Engine.SortKey()),
		"theme":          ui.themeName,
	}
}
