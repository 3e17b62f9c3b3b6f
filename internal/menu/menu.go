// Package menu renders the bot's screens. Rendering is a pure function of its
// input: the same draft or row always yields the same View.
package menu

import (
	"fmt"
	"strings"
	"time"

	"finbot/internal/callback"
	"finbot/internal/core"
	"finbot/internal/draft"

	"github.com/shopspring/decimal"
)

// Absent marks a field without a value.
const Absent = "—"

// Button is one inline keyboard button.
type Button struct {
	Label  string
	Action callback.Action
}

// View is a message text with its inline keyboard.
type View struct {
	Text     string
	Keyboard [][]Button
}

// Renderer builds views. Sep is the decimal separator used to display
// amounts.
type Renderer struct {
	Sep string
}

func New(sep string) *Renderer {
	if sep == "" {
		sep = "."
	}
	return &Renderer{Sep: sep}
}

func btn(label string, a callback.Action) Button { return Button{Label: label, Action: a} }

func row(b ...Button) []Button { return b }

func (r *Renderer) amount(d decimal.Decimal) string { return core.FormatAmount(d, r.Sep) }

// Main is the entry screen.
func (r *Renderer) Main() View {
	return View{
		Text: "What would you like to do?",
		Keyboard: [][]Button{
			row(btn("Add operation", callback.StartDraft{Mode: draft.ModeOperation}),
				btn("Transfer", callback.StartDraft{Mode: draft.ModeTransfer})),
			row(btn("Recent operations", callback.ListRecent{})),
			row(btn("Balances", callback.ShowBalances{}),
				btn("Classifications", callback.ShowClassifications{Period: core.PeriodCurrentMonth})),
			row(btn("Plans", callback.ShowPlans{})),
		},
	}
}

// Notice is a one-line message followed by the main menu.
func (r *Renderer) Notice(text string) View {
	v := r.Main()
	v.Text = text + "\n\n" + v.Text
	return v
}

// FieldValue renders one draft field for display.
func (r *Renderer) FieldValue(d *draft.Draft, f draft.Field) string {
	if !d.Has(f) {
		if f == draft.FieldNote {
			return core.NotePlaceholder
		}
		return Absent
	}
	switch f {
	case draft.FieldDate:
		return d.Date.Display()
	case draft.FieldCounterparty:
		return d.Counterparty
	case draft.FieldKind:
		return string(d.Kind)
	case draft.FieldAmount:
		return r.amount(*d.Amount)
	case draft.FieldClassification:
		return d.Classification
	case draft.FieldNote:
		return d.Note
	case draft.FieldSource:
		return d.Source
	case draft.FieldDestination:
		return d.Destination
	}
	return Absent
}

func (r *Renderer) fieldLines(b *strings.Builder, d *draft.Draft) {
	for _, f := range d.Fields() {
		fmt.Fprintf(b, "%s: %s\n", f, r.FieldValue(d, f))
	}
}

func fieldButtons(d *draft.Draft) [][]Button {
	var kb [][]Button
	var line []Button
	for _, f := range d.Fields() {
		line = append(line, btn(f.String(), callback.EditField{Field: f}))
		if len(line) == 2 {
			kb = append(kb, line)
			line = nil
		}
	}
	if len(line) > 0 {
		kb = append(kb, line)
	}
	return kb
}

func title(d *draft.Draft) string {
	switch d.Mode {
	case draft.ModeTransfer:
		return "New transfer"
	case draft.ModePlan:
		return "New plan"
	}
	return "New operation"
}

// Draft shows a new draft with one button per field. Confirm is offered
// only when the draft is complete.
func (r *Renderer) Draft(d *draft.Draft) View {
	var b strings.Builder
	b.WriteString(title(d) + "\n\n")
	r.fieldLines(&b, d)
	kb := fieldButtons(d)
	var last []Button
	if d.IsComplete() {
		last = append(last, btn("Confirm", callback.Confirm{}))
	}
	last = append(last, btn("Cancel", callback.Cancel{}))
	return View{Text: strings.TrimRight(b.String(), "\n"), Keyboard: append(kb, last)}
}

// RowEdit shows an edit draft of a stored row. Save is enabled like
// Confirm.
func (r *Renderer) RowEdit(d *draft.Draft) View {
	var b strings.Builder
	b.WriteString("Edit operation\n\n")
	r.fieldLines(&b, d)
	kb := fieldButtons(d)
	var last []Button
	if d.IsComplete() {
		last = append(last, btn("Save", callback.Save{}))
	}
	last = append(last, btn("Back", callback.Back{}))
	return View{Text: strings.TrimRight(b.String(), "\n"), Keyboard: append(kb, last)}
}

func (r *Renderer) rowLine(row core.Row) string {
	return fmt.Sprintf("%s %s %s %s", row.Date.Display(), row.Counterparty, r.amount(row.Amount), row.Classification)
}

// Recent lists operations numbered from 1 with one button per row.
func (r *Renderer) Recent(rows []core.Row) View {
	if len(rows) == 0 {
		return View{Text: "No operations yet.", Keyboard: [][]Button{row(btn("Back", callback.Back{}))}}
	}
	var b strings.Builder
	b.WriteString("Recent operations\n\n")
	var kb [][]Button
	var line []Button
	for i, rw := range rows {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.rowLine(rw))
		line = append(line, btn(fmt.Sprintf("%d", i+1), callback.OpenRow{Index: i}))
		if len(line) == 5 {
			kb = append(kb, line)
			line = nil
		}
	}
	if len(line) > 0 {
		kb = append(kb, line)
	}
	kb = append(kb, row(btn("Back", callback.Back{})))
	return View{Text: strings.TrimRight(b.String(), "\n"), Keyboard: kb}
}

// RowDetail shows one stored operation.
func (r *Renderer) RowDetail(rw core.Row) View {
	text := fmt.Sprintf("Operation\n\nDate: %s\nCounterparty: %s\nKind: %s\nAmount: %s\nClassification: %s\nNote: %s",
		rw.Date.Display(), rw.Counterparty, rw.Kind, r.amount(rw.Amount), rw.Classification, core.NoteOrPlaceholder(rw.Note))
	return View{
		Text: text,
		Keyboard: [][]Button{
			row(btn("Confirm", callback.Confirm{}), btn("Edit", callback.EditRow{}), btn("Delete", callback.DeleteRow{})),
			row(btn("Back", callback.Back{})),
		},
	}
}

// Calendar shows a month for the date editor. Weekdays start on Monday.
func (r *Renderer) Calendar(f draft.Field, year, month int, problem string) View {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(0, 1, -1).Day()

	kb := [][]Button{row(btn(fmt.Sprintf("%s %d", first.Month(), year), callback.Noop{}))}
	var header []Button
	for _, wd := range []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"} {
		header = append(header, btn(wd, callback.Noop{}))
	}
	kb = append(kb, header)

	offset := (int(first.Weekday()) + 6) % 7
	var week []Button
	for i := 0; i < offset; i++ {
		week = append(week, btn(" ", callback.Noop{}))
	}
	for day := 1; day <= days; day++ {
		week = append(week, btn(fmt.Sprintf("%d", day), callback.PickDay{Year: year, Month: month, Day: day}))
		if len(week) == 7 {
			kb = append(kb, week)
			week = nil
		}
	}
	if len(week) > 0 {
		for len(week) < 7 {
			week = append(week, btn(" ", callback.Noop{}))
		}
		kb = append(kb, week)
	}

	py, pm := core.PrevMonth(year, month)
	ny, nm := core.NextMonth(year, month)
	kb = append(kb,
		row(btn("<", callback.CalendarPage{Year: py, Month: pm}), btn(">", callback.CalendarPage{Year: ny, Month: nm})),
		row(btn("Back", callback.Back{})),
	)
	return View{Text: withProblem(fmt.Sprintf("Pick the %s:", strings.ToLower(f.String())), problem), Keyboard: kb}
}

// Choices lists values as buttons with a free text option.
func (r *Renderer) Choices(f draft.Field, choices []string, problem string) View {
	var kb [][]Button
	var line []Button
	for i, c := range choices {
		line = append(line, btn(c, callback.PickChoice{Index: i}))
		if len(line) == 2 {
			kb = append(kb, line)
			line = nil
		}
	}
	if len(line) > 0 {
		kb = append(kb, line)
	}
	kb = append(kb, row(btn("Other…", callback.CustomInput{}), btn("Back", callback.Back{})))
	text := fmt.Sprintf("Choose the %s or type a new one:", strings.ToLower(f.String()))
	return View{Text: withProblem(text, problem), Keyboard: kb}
}

// Kinds offers the operation kinds.
func (r *Renderer) Kinds(problem string, kinds ...core.Kind) View {
	if len(kinds) == 0 {
		kinds = core.EntryKinds
	}
	var line []Button
	for _, k := range kinds {
		line = append(line, btn(string(k), callback.PickKind{Kind: k}))
	}
	return View{
		Text:     withProblem("Choose the kind of operation:", problem),
		Keyboard: [][]Button{line, row(btn("Back", callback.Back{}))},
	}
}

// Prompt asks for free text. Optional fields get a Skip button.
func (r *Renderer) Prompt(text, problem string, skippable bool) View {
	last := []Button{btn("Back", callback.Back{})}
	if skippable {
		last = append([]Button{btn("Skip", callback.SkipNote{})}, last...)
	}
	return View{Text: withProblem(text, problem), Keyboard: [][]Button{last}}
}

func withProblem(text, problem string) string {
	if problem == "" {
		return text
	}
	return problem + "\n\n" + text
}

// Overview renders a list of named totals.
func (r *Renderer) Overview(o core.Overview) string {
	var b strings.Builder
	b.WriteString(o.Title + "\n\n")
	if len(o.Items) == 0 {
		b.WriteString("Nothing recorded.\n")
	}
	for _, it := range o.Items {
		fmt.Fprintf(&b, "%s: %s\n", it.Name, r.amount(it.Amount))
	}
	fmt.Fprintf(&b, "\nTotal: %s", r.amount(o.Total))
	return b.String()
}

// Balances shows per-counterparty balances.
func (r *Renderer) Balances(o core.Overview) View {
	return View{Text: r.Overview(o), Keyboard: [][]Button{row(btn("Back", callback.MainMenu{}))}}
}

// Classifications shows totals per classification with period buttons.
func (r *Renderer) Classifications(o core.Overview, current core.Period) View {
	var line []Button
	var kb [][]Button
	for _, p := range core.Periods {
		if p == current {
			continue
		}
		line = append(line, btn(p.String(), callback.ShowClassifications{Period: p}))
		if len(line) == 2 {
			kb = append(kb, line)
			line = nil
		}
	}
	if len(line) > 0 {
		kb = append(kb, line)
	}
	kb = append(kb, row(btn("Back", callback.MainMenu{})))
	return View{Text: r.Overview(o), Keyboard: kb}
}

// Plans lists the plans of a month.
func (r *Renderer) Plans(rows []core.Row, year, month int) View {
	var b strings.Builder
	fmt.Fprintf(&b, "Plans for %s %d\n\n", time.Month(month), year)
	total := decimal.Zero
	if len(rows) == 0 {
		b.WriteString("No plans yet.\n")
	}
	for _, p := range rows {
		total = total.Add(p.Amount)
		fmt.Fprintf(&b, "%s %s %s", p.Date.Display(), r.amount(p.Amount), p.Classification)
		if p.Note != "" && p.Note != core.NotePlaceholder {
			fmt.Fprintf(&b, " (%s)", p.Note)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nTotal: %s", r.amount(total))
	return View{
		Text: b.String(),
		Keyboard: [][]Button{
			row(btn("Add plan", callback.StartDraft{Mode: draft.ModePlan}), btn("Copy last month", callback.CopyPlans{})),
			row(btn("Back", callback.MainMenu{})),
		},
	}
}
