package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
	"github.com/Ashfaaq98/imaging-case-console/internal/derive"
	"github.com/Ashfaaq98/imaging-case-console/internal/filter"
	"github.com/Ashfaaq98/imaging-case-console/internal/selection"
)

const pageDialog = "dialog"

// centered wraps p in a fixed-size box in the middle of the screen.
func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

func (ui *UI) openDialog(p tview.Primitive, width, height int) {
	ui.pages.AddPage(pageDialog, centered(p, width, height), true, true)
	ui.app.SetFocus(p)
}

func (ui *UI) closeDialog() {
	ui.pages.RemovePage(pageDialog)
	ui.app.SetFocus(ui.table)
}

// escCloses makes Esc dismiss the dialog.
func (ui *UI) escCloses(ev *tcell.EventKey) *tcell.EventKey {
	if ev.Key() == tcell.KeyEsc {
		ui.closeDialog()
		return nil
	}
	return ev
}

func (ui *UI) showModal(title, text string) {
	modal := tview.NewTextView().SetText(text)
	modal.SetTitle(fmt.Sprintf(" %s ", title))
	modal.SetBorder(true)
	modal.SetBackgroundColor(ui.theme.Surface)
	modal.SetTextColor(ui.theme.TextPrimary)
	modal.SetBorderColor(ui.theme.FocusBorder)
	modal.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch ev.Key() {
		case tcell.KeyEsc, tcell.KeyEnter:
			ui.closeDialog()
			return nil
		case tcell.KeyRune:
			if ev.Rune() == 'q' || ev.Rune() == '?' {
				ui.closeDialog()
				return nil
			}
		}
		return ev
	})
	ui.openDialog(modal, 64, strings.Count(text, "\n")+3)
}

func (ui *UI) styleForm(form *tview.Form, title string) {
	form.SetTitle(" " + title + " ")
	form.SetBorder(true)
	form.SetBackgroundColor(ui.theme.Surface)
	form.SetFieldBackgroundColor(ui.theme.SelectionBg)
	form.SetFieldTextColor(ui.theme.TextPrimary)
	form.SetLabelColor(ui.theme.TextPrimary)
	form.SetButtonBackgroundColor(ui.theme.SelectionBg)
	form.SetButtonTextColor(ui.theme.SelectionFg)
	form.SetBorderColor(ui.theme.FocusBorder)
	form.SetInputCapture(ui.escCloses)
}

func (ui *UI) showSearch() {
	form := tview.NewForm()
	ui.styleForm(form, "Search")
	form.AddInputField("Text", ui.deps.Engine.State().Search, 40, nil, nil)
	apply := func() {
		text := form.GetFormItemByLabel("Text").(*tview.InputField).GetText()
		ui.closeDialog()
		ui.deps.Engine.SetSearch(text)
	}
	form.AddButton("Apply", apply)
	form.AddButton("Clear", func() {
		ui.closeDialog()
		ui.deps.Engine.SetSearch("")
	})
	ui.openDialog(form, 56, 7)
}

// showDimensionPicker lists the filter dimensions, then their values.
func (ui *UI) showDimensionPicker() {
	list := tview.NewList().ShowSecondaryText(false)
	list.SetTitle(" Filter by ")
	list.SetBorder(true)
	list.SetBackgroundColor(ui.theme.Surface)
	list.SetBorderColor(ui.theme.FocusBorder)
	list.SetMainTextColor(ui.theme.TextPrimary)
	list.SetSelectedBackgroundColor(ui.theme.SelectionBg)
	list.SetInputCapture(ui.escCloses)
	for i, d := range filter.Dimensions {
		dim := d
		list.AddItem(string(dim), "", rune('1'+i), func() {
			ui.closeDialog()
			ui.showMultiSelect(dim)
		})
	}
	ui.openDialog(list, 32, len(filter.Dimensions)+2)
}

// showMultiSelect offers every value present in the collection for d,
// plus values already active in the filter.
func (ui *UI) showMultiSelect(d filter.Dimension) {
	var all []cases.Record
	if ui.deps.Repo != nil {
		all = ui.deps.Repo.Cases()
	}
	current := ui.deps.Engine.State().Values(d)
	options := filter.Options(all, d)
	seen := map[string]bool{}
	for _, o := range options {
		seen[o] = true
	}
	for _, v := range current {
		if !seen[v] {
			options = append(options, v)
		}
	}

	working := map[string]bool{}
	for _, v := range current {
		working[v] = true
	}

	form := tview.NewForm()
	ui.styleForm(form, string(d))
	for _, opt := range options {
		k := opt
		form.AddCheckbox(k, working[k], func(b bool) { working[k] = b })
	}
	form.AddButton("Save", func() {
		var values []string
		for _, opt := range options {
			if working[opt] {
				values = append(values, opt)
			}
		}
		ui.closeDialog()
		ui.deps.Engine.SetDimension(d, values)
	})
	form.AddButton("Cancel", ui.closeDialog)
	ui.openDialog(form, 44, len(options)*2+5)
}

func (ui *UI) showChoice(title string, choices []string, onPick func(string)) {
	list := tview.NewList().ShowSecondaryText(false)
	list.SetTitle(" " + title + " ")
	list.SetBorder(true)
	list.SetBackgroundColor(ui.theme.Surface)
	list.SetBorderColor(ui.theme.FocusBorder)
	list.SetMainTextColor(ui.theme.TextPrimary)
	list.SetSelectedBackgroundColor(ui.theme.SelectionBg)
	list.SetInputCapture(ui.escCloses)
	for i, c := range choices {
		choice := c
		list.AddItem(choice, "", rune('1'+i), func() {
			ui.closeDialog()
			onPick(choice)
		})
	}
	ui.openDialog(list, 36, len(choices)+2)
}

func (ui *UI) showStatusPicker() {
	choices := make([]string, 0, len(cases.Statuses))
	for _, s := range cases.Statuses {
		choices = append(choices, string(s))
	}
	ui.showChoice(fmt.Sprintf("Set status (%d)", len(ui.targets())), choices, func(c string) {
		ui.runBulk(selection.StatusOp(cases.Status(c)))
	})
}

func (ui *UI) showPriorityPicker() {
	choices := make([]string, 0, len(derive.Priorities))
	for _, p := range derive.Priorities {
		choices = append(choices, string(p))
	}
	ui.showChoice(fmt.Sprintf("Set priority (%d)", len(ui.targets())), choices, func(c string) {
		ui.runBulk(selection.PriorityOp(derive.Priority(c)))
	})
}

func (ui *UI) showAssignInput() {
	form := tview.NewForm()
	ui.styleForm(form, fmt.Sprintf("Assign %d cases", len(ui.targets())))
	form.AddInputField("Assignee", "", 32, nil, nil)
	form.AddButton("Assign", func() {
		who := form.GetFormItemByLabel("Assignee").(*tview.InputField).GetText()
		ui.closeDialog()
		ui.runBulk(selection.AssignOp(who))
	})
	form.AddButton("Cancel", ui.closeDialog)
	ui.openDialog(form, 52, 7)
}

// confirmBulk asks before destructive operations.
func (ui *UI) confirmBulk(op selection.Operation) {
	n := len(ui.targets())
	if n == 0 {
		ui.setStatus("[%s]No cases to act on[-]", ui.theme.TagWarning)
		return
	}
	modal := tview.NewModal().
		SetText(fmt.Sprintf("Really %s %d case(s)?", op.Kind, n)).
		AddButtons([]string{"Yes", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			ui.pages.RemovePage(pageDialog)
			ui.app.SetFocus(ui.table)
			if label == "Yes" {
				ui.runBulk(op)
			}
		})
	modal.SetBackgroundColor(ui.theme.Surface)
	modal.SetTextColor(ui.theme.TextPrimary)
	modal.SetBorderColor(ui.theme.FocusBorder)
	modal.SetButtonBackgroundColor(ui.theme.SelectionBg)
	modal.SetButtonTextColor(ui.theme.SelectionFg)
	ui.pages.AddPage(pageDialog, modal, true, true)
	ui.app.SetFocus(modal)
}
