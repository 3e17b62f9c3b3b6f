// Package editor implements one input handler per draft field. An editor
// prompts for a value, and accepts or rejects raw input; accepted values are
// stored in the draft in canonical form.
package editor

import (
	"errors"
	"fmt"
	"strings"

	"finbot/internal/core"
	"finbot/internal/draft"
	"finbot/internal/menu"
)

// Page is the context a prompt is rendered with.
type Page struct {
	// Year and Month select the calendar page of the date editor.
	Year, Month int
	// Choices are the listed values of the counterparty and classification
	// editors.
	Choices []string
	// Problem is shown above a re-prompt.
	Problem string
}

// Outcome tells the caller where to go after an accepted input.
type Outcome struct {
	// Next is the field to edit next; zero returns to the draft menu.
	Next draft.Field
	// Notice explains a forced jump to Next.
	Notice string
}

// Editor handles one field.
type Editor interface {
	Field() draft.Field
	Prompt(d *draft.Draft, p Page) menu.View
	// Accept validates input and stores it. A *core.ValidationError means
	// the draft is unchanged and the prompt should be shown again.
	Accept(d *draft.Draft, input string) (Outcome, error)
}

// Set holds the editors of every field.
type Set struct {
	editors map[draft.Field]Editor
}

// NewSet builds the editors rendering with r.
func NewSet(r *menu.Renderer) *Set {
	s := &Set{editors: map[draft.Field]Editor{}}
	for _, e := range []Editor{
		dateEditor{r: r, field: draft.FieldDate},
		choiceEditor{r: r, field: draft.FieldCounterparty},
		choiceEditor{r: r, field: draft.FieldSource},
		choiceEditor{r: r, field: draft.FieldDestination},
		choiceEditor{r: r, field: draft.FieldClassification},
		kindEditor{r: r},
		amountEditor{r: r},
		noteEditor{r: r},
	} {
		s.editors[e.Field()] = e
	}
	return s
}

// For returns the editor of f.
func (s *Set) For(f draft.Field) (Editor, bool) {
	e, ok := s.editors[f]
	return e, ok
}

// Choosable reports whether the editor of f lists choices.
func Choosable(f draft.Field) bool {
	switch f {
	case draft.FieldCounterparty, draft.FieldSource, draft.FieldDestination, draft.FieldClassification:
		return true
	}
	return false
}

func invalid(f draft.Field, err error) error {
	return &core.ValidationError{Field: strings.ToLower(f.String()), Err: err}
}

// Problem renders a validation error for a re-prompt.
func Problem(err error) string {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return "Invalid " + ve.Field + ": " + ve.Err.Error()
	}
	return err.Error()
}

type dateEditor struct {
	r     *menu.Renderer
	field draft.Field
}

func (e dateEditor) Field() draft.Field { return e.field }

func (e dateEditor) Prompt(_ *draft.Draft, p Page) menu.View {
	return e.r.Calendar(e.field, p.Year, p.Month, p.Problem)
}

func (e dateEditor) Accept(d *draft.Draft, input string) (Outcome, error) {
	date, err := core.ParseDate(input)
	if err != nil {
		return Outcome{}, invalid(e.field, err)
	}
	if err := date.Validate(); err != nil {
		return Outcome{}, invalid(e.field, err)
	}
	d.SetDate(date)
	return Outcome{}, nil
}

// choiceEditor serves the counterparty fields and the classification: a list
// of known values plus free text.
type choiceEditor struct {
	r     *menu.Renderer
	field draft.Field
}

func (e choiceEditor) Field() draft.Field { return e.field }

func (e choiceEditor) Prompt(_ *draft.Draft, p Page) menu.View {
	return e.r.Choices(e.field, p.Choices, p.Problem)
}

func (e choiceEditor) Accept(d *draft.Draft, input string) (Outcome, error) {
	v := strings.TrimSpace(input)
	if v == "" {
		if e.field == draft.FieldClassification {
			return Outcome{}, invalid(e.field, core.ErrEmptyClassification)
		}
		return Outcome{}, invalid(e.field, core.ErrEmptyCounterparty)
	}
	switch e.field {
	case draft.FieldCounterparty:
		d.SetCounterparty(v)
	case draft.FieldSource:
		if strings.EqualFold(v, d.Destination) {
			return Outcome{}, invalid(e.field, core.ErrSameCounterparty)
		}
		d.SetSource(v)
	case draft.FieldDestination:
		if strings.EqualFold(v, d.Source) {
			return Outcome{}, invalid(e.field, core.ErrSameCounterparty)
		}
		d.SetDestination(v)
	case draft.FieldClassification:
		d.SetClassification(v)
	}
	return Outcome{}, nil
}

type kindEditor struct{ r *menu.Renderer }

func (kindEditor) Field() draft.Field { return draft.FieldKind }

func (e kindEditor) Prompt(d *draft.Draft, p Page) menu.View {
	return e.r.Kinds(p.Problem, d.KindChoices()...)
}

func (e kindEditor) Accept(d *draft.Draft, input string) (Outcome, error) {
	k, err := core.ParseKind(input)
	if err != nil || k == core.KindPlan {
		return Outcome{}, invalid(draft.FieldKind, core.ErrInvalidKind)
	}
	if !d.AllowsKind(k) {
		if k == core.KindTransfer {
			return Outcome{}, invalid(draft.FieldKind, fmt.Errorf("%w: record transfers with /add so both legs are written", core.ErrInvalidKind))
		}
		return Outcome{}, invalid(draft.FieldKind, fmt.Errorf("%w: a transfer leg stays a transfer", core.ErrInvalidKind))
	}
	if d.SetKind(k) {
		return Outcome{
			Next:   draft.FieldAmount,
			Notice: fmt.Sprintf("The amount was cleared: a %s needs %s.", strings.ToLower(string(k)), d.AmountHint()),
		}, nil
	}
	return Outcome{}, nil
}

type amountEditor struct{ r *menu.Renderer }

func (amountEditor) Field() draft.Field { return draft.FieldAmount }

func (e amountEditor) Prompt(d *draft.Draft, p Page) menu.View {
	return e.r.Prompt(fmt.Sprintf("Send the amount (%s), e.g. 12,50:", d.AmountHint()), p.Problem, false)
}

func (e amountEditor) Accept(d *draft.Draft, input string) (Outcome, error) {
	a, err := core.ParseAmount(input)
	if err != nil {
		return Outcome{}, invalid(draft.FieldAmount, err)
	}
	if err := d.CheckAmount(a); err != nil {
		return Outcome{}, invalid(draft.FieldAmount, fmt.Errorf("%w: expected %s", core.ErrSignMismatch, d.AmountHint()))
	}
	d.SetAmount(a)
	return Outcome{}, nil
}

type noteEditor struct{ r *menu.Renderer }

func (noteEditor) Field() draft.Field { return draft.FieldNote }

func (e noteEditor) Prompt(_ *draft.Draft, p Page) menu.View {
	return e.r.Prompt("Send a note, or skip:", p.Problem, true)
}

func (noteEditor) Accept(d *draft.Draft, input string) (Outcome, error) {
	d.SetNote(input)
	return Outcome{}, nil
}
