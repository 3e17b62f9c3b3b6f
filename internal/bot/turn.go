package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"finbot/internal/callback"
	"finbot/internal/core"
	"finbot/internal/draft"
	"finbot/internal/editor"
	"finbot/internal/ledger"
	"finbot/internal/log"
	"finbot/internal/menu"
)

// turn is the handling of one event for one session. The session lock is
// held for its whole lifetime.
type turn struct {
	b      *Bot
	s      *Session
	ev     Event
	logger *log.Logger
	notice string
}

func (t *turn) dispatch(ctx context.Context) error {
	switch {
	case t.ev.Payload != "":
		a, err := callback.Decode(t.ev.Payload)
		if err != nil {
			t.logger.WarnContext(ctx, "Undecodable callback", "payload", t.ev.Payload, log.FieldError, err)
			return t.stale(ctx)
		}
		return t.onAction(ctx, a)
	case t.ev.Command != "":
		return t.onCommand(ctx)
	default:
		return t.onText(ctx)
	}
}

func (t *turn) setState(ctx context.Context, st State) {
	if t.s.state != st {
		t.logger.DebugContext(ctx, "State changed", "from", t.s.state.String(), "to", st.String())
	}
	t.s.state = st
}

// alert adds a one-line message above the next screen.
func (t *turn) alert(msg string) {
	if t.notice == "" {
		t.notice = msg
		return
	}
	t.notice += "\n" + msg
}

// show presents v: a button press edits the message holding the button,
// anything else sends a new message.
func (t *turn) show(ctx context.Context, v menu.View) error {
	if t.notice != "" {
		v.Text = t.notice + "\n\n" + v.Text
		t.notice = ""
	}
	if t.ev.IsCallback() && t.ev.MessageID != 0 {
		return t.b.transport.Edit(ctx, MessageRef{ChatID: t.ev.ChatID, MessageID: t.ev.MessageID}, v)
	}
	_, err := t.b.transport.Send(ctx, t.ev.ChatID, v)
	return err
}

func (t *turn) ledgerFor(ctx context.Context) (Ledger, error) {
	return t.b.ledgers.LedgerFor(ctx, t.ev.ChatID)
}

func (t *turn) today() core.Date { return core.DateOf(t.b.opts.Now()) }

// stale answers an event that does not fit the current state by showing the
// current screen again.
func (t *turn) stale(ctx context.Context) error {
	t.alert("That button is no longer active.")
	return t.redisplay(ctx)
}

// redisplay renders the screen of the current state from session data.
func (t *turn) redisplay(ctx context.Context) error {
	s := t.s
	d := s.drafts.Current()
	switch s.state {
	case StateMenu, StatePersisting:
		if d != nil {
			return t.show(ctx, t.b.render.Draft(d))
		}
	case StateRowEdit:
		if d != nil {
			return t.show(ctx, t.b.render.RowEdit(d))
		}
	case StateFieldInput:
		if d != nil {
			return t.openField(ctx, s.field, "")
		}
	case StateRecent:
		return t.show(ctx, t.b.render.Recent(s.recent))
	case StateRowDetail:
		if s.selected != nil {
			return t.show(ctx, t.b.render.RowDetail(*s.selected))
		}
	}
	s.drafts.Clear()
	t.setState(ctx, StateIdle)
	return t.show(ctx, t.b.render.Main())
}

func (t *turn) onCommand(ctx context.Context) error {
	switch strings.ToLower(t.ev.Command) {
	case "start", "menu", "help":
		return t.home(ctx, "")
	case "add":
		return t.startDraft(ctx, draft.ModeOperation)
	case "transfer":
		return t.startDraft(ctx, draft.ModeTransfer)
	case "plan":
		return t.startDraft(ctx, draft.ModePlan)
	case "operations", "recent":
		return t.listRecent(ctx)
	case "balances":
		return t.balances(ctx)
	case "classifications":
		return t.classifications(ctx, core.PeriodCurrentMonth)
	case "plans":
		return t.plans(ctx)
	case "cancel":
		return t.home(ctx, "Cancelled.")
	case "setup":
		return t.setup(ctx)
	}
	return t.home(ctx, fmt.Sprintf("Unknown command /%s.", t.ev.Command))
}

func (t *turn) onText(ctx context.Context) error {
	switch t.s.state {
	case StateFieldInput:
		return t.accept(ctx, t.ev.Text)
	case StateIdle:
		return t.extract(ctx)
	}
	t.alert("Use the buttons, or /add to start a new operation.")
	return t.redisplay(ctx)
}

// onAction dispatches a button press. Every action type has a case.
func (t *turn) onAction(ctx context.Context, a callback.Action) error {
	s := t.s
	switch a := a.(type) {
	case callback.Noop:
		return nil
	case callback.MainMenu:
		return t.home(ctx, "")
	case callback.StartDraft:
		return t.startDraft(ctx, a.Mode)
	case callback.EditField:
		d := s.drafts.Current()
		if d == nil || (s.state != StateMenu && s.state != StateRowEdit) || !hasField(d, a.Field) {
			return t.stale(ctx)
		}
		s.returnTo = s.state
		return t.enterField(ctx, a.Field)
	case callback.CalendarPage:
		if !t.editing(draft.FieldDate) {
			return t.stale(ctx)
		}
		s.year, s.month = a.Year, a.Month
		return t.openField(ctx, s.field, "")
	case callback.PickDay:
		if !t.editing(draft.FieldDate) {
			return t.stale(ctx)
		}
		return t.accept(ctx, fmt.Sprintf("%04d-%02d-%02d", a.Year, a.Month, a.Day))
	case callback.PickChoice:
		if s.state != StateFieldInput || !editor.Choosable(s.field) || a.Index >= len(s.choices) {
			return t.stale(ctx)
		}
		return t.accept(ctx, s.choices[a.Index])
	case callback.PickKind:
		if !t.editing(draft.FieldKind) {
			return t.stale(ctx)
		}
		return t.accept(ctx, string(a.Kind))
	case callback.CustomInput:
		if s.state != StateFieldInput || !editor.Choosable(s.field) {
			return t.stale(ctx)
		}
		return t.show(ctx, t.b.render.Prompt(fmt.Sprintf("Type the %s:", strings.ToLower(s.field.String())), "", false))
	case callback.SkipNote:
		if !t.editing(draft.FieldNote) {
			return t.stale(ctx)
		}
		return t.accept(ctx, "")
	case callback.Confirm:
		switch s.state {
		case StateMenu:
			return t.confirm(ctx)
		case StateRowDetail:
			s.selected = nil
			return t.home(ctx, "Done.")
		}
		return t.stale(ctx)
	case callback.Cancel:
		return t.home(ctx, "Cancelled.")
	case callback.Back:
		return t.back(ctx)
	case callback.ListRecent:
		return t.listRecent(ctx)
	case callback.OpenRow:
		if s.state != StateRecent || a.Index >= len(s.recent) {
			return t.stale(ctx)
		}
		row := s.recent[a.Index]
		s.selected = &row
		t.setState(ctx, StateRowDetail)
		return t.show(ctx, t.b.render.RowDetail(row))
	case callback.EditRow:
		if s.state != StateRowDetail || s.selected == nil {
			return t.stale(ctx)
		}
		d := s.drafts.StartEdit(*s.selected)
		t.setState(ctx, StateRowEdit)
		return t.show(ctx, t.b.render.RowEdit(d))
	case callback.DeleteRow:
		if s.state != StateRowDetail || s.selected == nil {
			return t.stale(ctx)
		}
		return t.remove(ctx)
	case callback.Save:
		if s.state != StateRowEdit {
			return t.stale(ctx)
		}
		return t.save(ctx)
	case callback.ShowBalances:
		return t.balances(ctx)
	case callback.ShowClassifications:
		return t.classifications(ctx, a.Period)
	case callback.ShowPlans:
		return t.plans(ctx)
	case callback.CopyPlans:
		return t.copyPlans(ctx)
	default:
		return fmt.Errorf("unhandled action %T", a)
	}
}

func hasField(d *draft.Draft, f draft.Field) bool {
	for _, x := range d.Fields() {
		if x == f {
			return true
		}
	}
	return false
}

func (t *turn) editing(f draft.Field) bool {
	return t.s.state == StateFieldInput && t.s.field == f && t.s.drafts.Current() != nil
}

// home drops any draft and shows the main menu.
func (t *turn) home(ctx context.Context, msg string) error {
	t.s.drafts.Clear()
	t.setState(ctx, StateIdle)
	if msg != "" {
		t.alert(msg)
	}
	return t.show(ctx, t.b.render.Main())
}

// startDraft discards any draft in progress and opens a new one.
func (t *turn) startDraft(ctx context.Context, mode draft.Mode) error {
	if prev := t.s.drafts.Current(); prev != nil {
		t.logger.InfoContext(ctx, "Draft in progress discarded", log.FieldState, t.s.state.String())
	}
	d := t.s.drafts.StartNew(mode)
	if mode == draft.ModePlan {
		d.SetDate(core.LastDayOfMonth(t.today().Year(), t.today().Month()))
	}
	t.s.returnTo = StateMenu
	t.setState(ctx, StateMenu)
	return t.show(ctx, t.b.render.Draft(d))
}

func (t *turn) showDraft(ctx context.Context) error {
	d := t.s.drafts.Current()
	if t.s.state == StateRowEdit {
		return t.show(ctx, t.b.render.RowEdit(d))
	}
	return t.show(ctx, t.b.render.Draft(d))
}

// enterField opens the editor of f with a fresh calendar page and choice
// list.
func (t *turn) enterField(ctx context.Context, f draft.Field) error {
	s := t.s
	today := t.today()
	s.year, s.month = today.Year(), today.Month()
	if d := s.drafts.Current(); d != nil && d.Date != nil && f == draft.FieldDate {
		s.year, s.month = d.Date.Year(), d.Date.Month()
	}
	s.choices = nil
	if editor.Choosable(f) {
		s.choices = t.loadChoices(ctx, f)
	}
	s.field = f
	t.setState(ctx, StateFieldInput)
	return t.openField(ctx, f, "")
}

func (t *turn) loadChoices(ctx context.Context, f draft.Field) []string {
	l, err := t.ledgerFor(ctx)
	if err != nil {
		t.logger.WarnContext(ctx, "No ledger for choices", log.FieldError, err)
		return nil
	}
	var choices []string
	if f == draft.FieldClassification {
		choices, err = l.Classifications(ctx, t.b.opts.ClassificationLimit)
	} else {
		choices, err = l.Counterparties(ctx)
	}
	if err != nil {
		t.logger.WarnContext(ctx, "Failed to load choices", "field", f.String(), log.FieldError, err)
		return nil
	}
	return choices
}

// openField renders the prompt of the field being edited.
func (t *turn) openField(ctx context.Context, f draft.Field, problem string) error {
	e, ok := t.b.editors.For(f)
	if !ok {
		return fmt.Errorf("no editor for field %s", f)
	}
	s := t.s
	page := editor.Page{Year: s.year, Month: s.month, Choices: s.choices, Problem: problem}
	return t.show(ctx, e.Prompt(s.drafts.Current(), page))
}

// accept feeds input to the open editor. Invalid input re-prompts and keeps
// the state; valid input returns to the draft screen or to the field the
// editor asks for.
func (t *turn) accept(ctx context.Context, input string) error {
	s := t.s
	d := s.drafts.Current()
	if d == nil {
		return t.stale(ctx)
	}
	e, ok := t.b.editors.For(s.field)
	if !ok {
		return fmt.Errorf("no editor for field %s", s.field)
	}
	out, err := e.Accept(d, input)
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return t.openField(ctx, s.field, editor.Problem(err))
	}
	if err != nil {
		return err
	}
	if out.Next != 0 {
		return t.enterFieldWithNotice(ctx, out.Next, out.Notice)
	}
	t.setState(ctx, s.returnTo)
	return t.showDraft(ctx)
}

func (t *turn) enterFieldWithNotice(ctx context.Context, f draft.Field, notice string) error {
	t.alert(notice)
	return t.enterField(ctx, f)
}

func (t *turn) back(ctx context.Context) error {
	s := t.s
	switch s.state {
	case StateFieldInput:
		if s.drafts.Current() == nil {
			return t.home(ctx, "")
		}
		t.setState(ctx, s.returnTo)
		return t.showDraft(ctx)
	case StateRowDetail:
		return t.listRecent(ctx)
	case StateRowEdit:
		s.drafts.Clear()
		if s.selected == nil {
			return t.listRecent(ctx)
		}
		t.setState(ctx, StateRowDetail)
		return t.show(ctx, t.b.render.RowDetail(*s.selected))
	}
	return t.home(ctx, "")
}

// persistMessage renders a failed write for the user, keeping the raw
// diagnostic of persistence failures.
func persistMessage(err error) string {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return editor.Problem(err)
	case errors.Is(err, core.ErrPartialTransfer):
		return "Only one leg of the transfer was saved, check the sheet: " + err.Error()
	case errors.Is(err, ErrNoSpreadsheet):
		return "No spreadsheet yet. Send /setup followed by your spreadsheet link."
	}
	return "Could not save: " + err.Error()
}

func (t *turn) failed(ctx context.Context, op string, err error) {
	errType := log.ErrorTypePersistence
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		errType = log.ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		errType = log.ErrorTypeNotFound
	case errors.Is(err, core.ErrPartialTransfer):
		errType = log.ErrorTypePartialWrite
	}
	level := t.logger.WarnContext
	if errType == log.ErrorTypePartialWrite {
		level = t.logger.ErrorContext
	}
	level(ctx, "Ledger call failed", log.NewFields().WithOperation(op).WithError(err, errType).ToSlice()...)
}

// confirm writes a complete new draft. The draft survives a failed write so
// Confirm can be pressed again, except after a half written transfer.
func (t *turn) confirm(ctx context.Context) error {
	s := t.s
	d := s.drafts.Current()
	if d == nil {
		return t.stale(ctx)
	}
	if !d.IsComplete() {
		t.alert("Fill in every field first.")
		return t.showDraft(ctx)
	}
	l, err := t.ledgerFor(ctx)
	if err == nil {
		t.setState(ctx, StatePersisting)
		switch d.Mode {
		case draft.ModeTransfer:
			err = l.AppendTransfer(ctx, d.Transfer())
		case draft.ModePlan:
			err = l.AppendPlan(ctx, d.Row())
		default:
			err = l.Append(ctx, d.Row())
		}
	}
	if errors.Is(err, core.ErrPartialTransfer) {
		// One leg is in the sheet; confirming again would duplicate it.
		t.failed(ctx, log.OpTransfer, err)
		return t.home(ctx, persistMessage(err))
	}
	if err != nil {
		t.failed(ctx, log.OpAppend, err)
		t.setState(ctx, StateMenu)
		t.alert(persistMessage(err))
		return t.showDraft(ctx)
	}

	s.recent = nil
	s.drafts.Clear()
	msg := "Saved."
	switch d.Mode {
	case draft.ModeTransfer:
		msg = fmt.Sprintf("Transfer of %s from %s to %s saved.",
			core.FormatAmount(*d.Amount, t.b.render.Sep), d.Source, d.Destination)
	case draft.ModePlan:
		msg = "Plan saved."
	}
	return t.home(ctx, msg)
}

// save writes an edit draft over its original row.
func (t *turn) save(ctx context.Context) error {
	s := t.s
	d := s.drafts.Current()
	if d == nil || !d.IsEdit() {
		return t.stale(ctx)
	}
	if !d.IsComplete() {
		t.alert("Fill in every field first.")
		return t.showDraft(ctx)
	}
	row := d.Row()
	l, err := t.ledgerFor(ctx)
	if err == nil {
		t.setState(ctx, StatePersisting)
		err = l.Update(ctx, ledger.KeyOf(*d.Original), row)
	}
	switch {
	case ledger.IsNotFound(err):
		t.failed(ctx, log.OpUpdate, err)
		s.drafts.Clear()
		t.alert("That operation is no longer in the sheet.")
		return t.listRecent(ctx)
	case err != nil:
		t.failed(ctx, log.OpUpdate, err)
		t.setState(ctx, StateRowEdit)
		t.alert(persistMessage(err))
		return t.showDraft(ctx)
	}

	s.recent = nil
	s.drafts.Clear()
	s.selected = &row
	t.setState(ctx, StateRowDetail)
	t.alert("Saved.")
	return t.show(ctx, t.b.render.RowDetail(row))
}

func (t *turn) remove(ctx context.Context) error {
	s := t.s
	l, err := t.ledgerFor(ctx)
	if err == nil {
		_, err = l.Remove(ctx, ledger.KeyOf(*s.selected))
	}
	switch {
	case ledger.IsNotFound(err):
		t.failed(ctx, log.OpRemove, err)
		t.alert("That operation is no longer in the sheet.")
	case err != nil:
		t.failed(ctx, log.OpRemove, err)
		t.alert(persistMessage(err))
		return t.show(ctx, t.b.render.RowDetail(*s.selected))
	default:
		t.alert("Deleted.")
	}
	s.selected = nil
	return t.listRecent(ctx)
}

// listRecent refetches the recent operations window.
func (t *turn) listRecent(ctx context.Context) error {
	s := t.s
	l, err := t.ledgerFor(ctx)
	var rows []core.Row
	if err == nil {
		rows, err = l.Recent(ctx, t.b.opts.RecentLimit)
	}
	if err != nil {
		t.failed(ctx, log.OpRead, err)
		return t.home(ctx, persistMessage(err))
	}
	s.drafts.Clear()
	s.recent = rows
	s.selected = nil
	t.setState(ctx, StateRecent)
	return t.show(ctx, t.b.render.Recent(rows))
}

func (t *turn) balances(ctx context.Context) error {
	l, err := t.ledgerFor(ctx)
	var o core.Overview
	if err == nil {
		o, err = l.Balances(ctx)
	}
	if err != nil {
		t.failed(ctx, log.OpRead, err)
		return t.home(ctx, persistMessage(err))
	}
	t.s.drafts.Clear()
	t.setState(ctx, StateBalances)
	return t.show(ctx, t.b.render.Balances(o))
}

func (t *turn) classifications(ctx context.Context, p core.Period) error {
	l, err := t.ledgerFor(ctx)
	var o core.Overview
	if err == nil {
		o, err = l.Classify(ctx, p)
	}
	if err != nil {
		t.failed(ctx, log.OpRead, err)
		return t.home(ctx, persistMessage(err))
	}
	t.s.drafts.Clear()
	t.s.period = p
	t.setState(ctx, StateClassifications)
	return t.show(ctx, t.b.render.Classifications(o, p))
}

func (t *turn) plans(ctx context.Context) error {
	today := t.today()
	l, err := t.ledgerFor(ctx)
	var rows []core.Row
	if err == nil {
		rows, err = l.Plans(ctx, today.Year(), today.Month())
	}
	if err != nil {
		t.failed(ctx, log.OpRead, err)
		return t.home(ctx, persistMessage(err))
	}
	t.s.drafts.Clear()
	t.setState(ctx, StatePlans)
	return t.show(ctx, t.b.render.Plans(rows, today.Year(), today.Month()))
}

func (t *turn) copyPlans(ctx context.Context) error {
	l, err := t.ledgerFor(ctx)
	n := 0
	if err == nil {
		n, err = l.CopyPlans(ctx)
	}
	if err != nil {
		t.failed(ctx, log.OpAppend, err)
		return t.home(ctx, persistMessage(err))
	}
	if n == 0 {
		t.alert("Last month has no plans to copy.")
	} else {
		t.alert(fmt.Sprintf("Copied %d plans.", n))
	}
	return t.plans(ctx)
}

var sheetURL = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)
var sheetID = regexp.MustCompile(`^[a-zA-Z0-9_-]{20,}$`)

// spreadsheetIDFrom accepts a spreadsheet link or a bare id.
func spreadsheetIDFrom(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if m := sheetURL.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if sheetID.MatchString(s) {
		return s, true
	}
	return "", false
}

func (t *turn) setup(ctx context.Context) error {
	id, ok := spreadsheetIDFrom(t.ev.Args)
	if !ok {
		return t.home(ctx, "Send /setup followed by the link of your spreadsheet.")
	}
	if err := t.b.ledgers.Bind(ctx, t.ev.ChatID, id); err != nil {
		t.failed(ctx, log.OpStartup, err)
		return t.home(ctx, "Could not use that spreadsheet: "+err.Error())
	}
	t.logger.InfoContext(ctx, "Spreadsheet bound", log.FieldSpreadsheetID, id)
	return t.home(ctx, "Spreadsheet connected.")
}

// extract turns free text sent outside any flow into a draft for review.
// Failures leave the state unchanged.
func (t *turn) extract(ctx context.Context) error {
	if t.b.extractor == nil {
		return t.home(ctx, "Use /add to record an operation.")
	}
	d, err := t.b.extractor.Extract(ctx, t.ev.Text, t.today())
	if err != nil {
		t.logger.WarnContext(ctx, "Extraction failed", log.FieldOperation, log.OpExtract, log.FieldError, err)
		t.alert("Could not read an operation from that message.")
		return t.show(ctx, t.b.render.Main())
	}
	t.s.drafts.Adopt(d)
	t.s.returnTo = StateMenu
	t.setState(ctx, StateMenu)
	return t.show(ctx, t.b.render.Draft(d))
}
