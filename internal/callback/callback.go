// Package callback encodes the button actions of the bot's menus into the
// short payloads carried by inline keyboards and decodes them back.
//
// Every action is a distinct type implementing Action. Handlers switch on the
// concrete type; payload strings are only ever parsed here.
package callback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"finbot/internal/core"
	"finbot/internal/draft"
)

// MaxPayload is the largest payload an inline button may carry.
const MaxPayload = 64

var (
	ErrUnknownAction = errors.New("unknown callback action")
	ErrMalformed     = errors.New("malformed callback payload")
	ErrTooLong       = errors.New("callback payload too long")
)

// Action is one button press.
type Action interface {
	tag() string
	args() []string
}

type (
	// Noop is a button without effect, such as calendar headers.
	Noop struct{}
	// MainMenu shows the main menu.
	MainMenu struct{}
	// StartDraft starts composing a new operation, transfer or plan.
	StartDraft struct{ Mode draft.Mode }
	// EditField opens the editor of one draft field.
	EditField struct{ Field draft.Field }
	// CalendarPage moves the date editor to another month.
	CalendarPage struct{ Year, Month int }
	// PickDay accepts a calendar day.
	PickDay struct{ Year, Month, Day int }
	// PickChoice accepts the Index-th choice of the list on screen.
	PickChoice struct{ Index int }
	// PickKind accepts an operation kind.
	PickKind struct{ Kind core.Kind }
	// CustomInput asks for free text instead of a listed choice.
	CustomInput struct{}
	// SkipNote leaves the note empty.
	SkipNote struct{}
	// Confirm writes a complete new draft.
	Confirm struct{}
	// Cancel discards the draft.
	Cancel struct{}
	// Back returns to the previous screen.
	Back struct{}
	// ListRecent shows the most recent operations.
	ListRecent struct{}
	// OpenRow shows the Index-th operation of the recent list.
	OpenRow struct{ Index int }
	// EditRow starts editing the open operation.
	EditRow struct{}
	// DeleteRow removes the open operation.
	DeleteRow struct{}
	// Save writes an edited operation.
	Save struct{}
	// ShowBalances shows per-counterparty balances.
	ShowBalances struct{}
	// ShowClassifications shows totals per classification for a period.
	ShowClassifications struct{ Period core.Period }
	// ShowPlans shows the plans of the current month.
	ShowPlans struct{}
	// CopyPlans repeats last month's plans in the current month.
	CopyPlans struct{}
)

func (Noop) tag() string                { return "nop" }
func (MainMenu) tag() string            { return "main" }
func (StartDraft) tag() string          { return "new" }
func (EditField) tag() string           { return "f" }
func (CalendarPage) tag() string        { return "cal" }
func (PickDay) tag() string             { return "day" }
func (PickChoice) tag() string          { return "ch" }
func (PickKind) tag() string            { return "k" }
func (CustomInput) tag() string         { return "txt" }
func (SkipNote) tag() string            { return "skip" }
func (Confirm) tag() string             { return "ok" }
func (Cancel) tag() string              { return "x" }
func (Back) tag() string                { return "back" }
func (ListRecent) tag() string          { return "ops" }
func (OpenRow) tag() string             { return "row" }
func (EditRow) tag() string             { return "edit" }
func (DeleteRow) tag() string           { return "del" }
func (Save) tag() string                { return "save" }
func (ShowBalances) tag() string        { return "bal" }
func (ShowClassifications) tag() string { return "cls" }
func (ShowPlans) tag() string           { return "plans" }
func (CopyPlans) tag() string           { return "pcopy" }

func (Noop) args() []string                  { return nil }
func (MainMenu) args() []string              { return nil }
func (a StartDraft) args() []string          { return []string{itoa(int(a.Mode))} }
func (a EditField) args() []string           { return []string{itoa(int(a.Field))} }
func (a CalendarPage) args() []string        { return []string{itoa(a.Year), itoa(a.Month)} }
func (a PickDay) args() []string             { return []string{itoa(a.Year), itoa(a.Month), itoa(a.Day)} }
func (a PickChoice) args() []string          { return []string{itoa(a.Index)} }
func (a PickKind) args() []string            { return []string{string(a.Kind)} }
func (CustomInput) args() []string           { return nil }
func (SkipNote) args() []string              { return nil }
func (Confirm) args() []string               { return nil }
func (Cancel) args() []string                { return nil }
func (Back) args() []string                  { return nil }
func (ListRecent) args() []string            { return nil }
func (a OpenRow) args() []string             { return []string{itoa(a.Index)} }
func (EditRow) args() []string               { return nil }
func (DeleteRow) args() []string             { return nil }
func (Save) args() []string                  { return nil }
func (ShowBalances) args() []string          { return nil }
func (a ShowClassifications) args() []string { return []string{itoa(int(a.Period))} }
func (ShowPlans) args() []string             { return nil }
func (CopyPlans) args() []string             { return nil }

func itoa(i int) string { return strconv.Itoa(i) }

// Encode renders a as a button payload.
func Encode(a Action) (string, error) {
	s := strings.Join(append([]string{a.tag()}, a.args()...), ":")
	if len(s) > MaxPayload {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLong, len(s))
	}
	return s, nil
}

// Decode parses a button payload.
func Decode(payload string) (Action, error) {
	parts := strings.Split(payload, ":")
	tag, args := parts[0], parts[1:]
	ints := func(n int) ([]int, error) {
		if len(args) != n {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, payload)
		}
		out := make([]int, n)
		for i, a := range args {
			v, err := strconv.Atoi(a)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrMalformed, payload)
			}
			out[i] = v
		}
		return out, nil
	}
	bare := func(a Action) (Action, error) {
		if len(args) != 0 {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, payload)
		}
		return a, nil
	}

	switch tag {
	case "nop":
		return bare(Noop{})
	case "main":
		return bare(MainMenu{})
	case "txt":
		return bare(CustomInput{})
	case "skip":
		return bare(SkipNote{})
	case "ok":
		return bare(Confirm{})
	case "x":
		return bare(Cancel{})
	case "back":
		return bare(Back{})
	case "ops":
		return bare(ListRecent{})
	case "edit":
		return bare(EditRow{})
	case "del":
		return bare(DeleteRow{})
	case "save":
		return bare(Save{})
	case "bal":
		return bare(ShowBalances{})
	case "plans":
		return bare(ShowPlans{})
	case "pcopy":
		return bare(CopyPlans{})
	case "new":
		v, err := ints(1)
		if err != nil {
			return nil, err
		}
		m := draft.Mode(v[0])
		if !m.Valid() {
			return nil, fmt.Errorf("%w: mode %d", ErrMalformed, v[0])
		}
		return StartDraft{Mode: m}, nil
	case "f":
		v, err := ints(1)
		if err != nil {
			return nil, err
		}
		f := draft.Field(v[0])
		if !f.Valid() {
			return nil, fmt.Errorf("%w: field %d", ErrMalformed, v[0])
		}
		return EditField{Field: f}, nil
	case "cal":
		v, err := ints(2)
		if err != nil {
			return nil, err
		}
		if v[1] < 1 || v[1] > 12 {
			return nil, fmt.Errorf("%w: month %d", ErrMalformed, v[1])
		}
		return CalendarPage{Year: v[0], Month: v[1]}, nil
	case "day":
		v, err := ints(3)
		if err != nil {
			return nil, err
		}
		return PickDay{Year: v[0], Month: v[1], Day: v[2]}, nil
	case "ch":
		v, err := ints(1)
		if err != nil {
			return nil, err
		}
		if v[0] < 0 {
			return nil, fmt.Errorf("%w: index %d", ErrMalformed, v[0])
		}
		return PickChoice{Index: v[0]}, nil
	case "row":
		v, err := ints(1)
		if err != nil {
			return nil, err
		}
		if v[0] < 0 {
			return nil, fmt.Errorf("%w: index %d", ErrMalformed, v[0])
		}
		return OpenRow{Index: v[0]}, nil
	case "cls":
		v, err := ints(1)
		if err != nil {
			return nil, err
		}
		p := core.Period(v[0])
		if !p.Valid() {
			return nil, fmt.Errorf("%w: period %d", ErrMalformed, v[0])
		}
		return ShowClassifications{Period: p}, nil
	case "k":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, payload)
		}
		k, err := core.ParseKind(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return PickKind{Kind: k}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, tag)
}

// MustEncode is Encode for actions known to fit, such as those built by the
// menu renderer.
func MustEncode(a Action) string {
	s, err := Encode(a)
	if err != nil {
		panic(err)
	}
	return s
}
