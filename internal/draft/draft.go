// Package draft holds the operation a chat is composing or editing before it
// is written to the ledger.
package draft

import (
	"strings"

	"finbot/internal/core"

	"github.com/shopspring/decimal"
)

// Field names one editable value of a draft.
type Field int

const (
	FieldDate Field = iota + 1
	FieldCounterparty
	FieldKind
	FieldAmount
	FieldClassification
	FieldNote
	FieldSource
	FieldDestination
)

var fieldNames = map[Field]string{
	FieldDate:           "Date",
	FieldCounterparty:   "Counterparty",
	FieldKind:           "Kind",
	FieldAmount:         "Amount",
	FieldClassification: "Classification",
	FieldNote:           "Note",
	FieldSource:         "From",
	FieldDestination:    "To",
}

func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return "Unknown"
}

// Valid reports whether f is a known field.
func (f Field) Valid() bool {
	_, ok := fieldNames[f]
	return ok
}

// Mode selects the field set of a draft.
type Mode int

const (
	ModeOperation Mode = iota
	ModeTransfer
	ModePlan
)

func (m Mode) Valid() bool { return m >= ModeOperation && m <= ModePlan }

var modeFields = map[Mode][]Field{
	ModeOperation: {FieldDate, FieldCounterparty, FieldKind, FieldAmount, FieldClassification, FieldNote},
	ModeTransfer:  {FieldDate, FieldSource, FieldDestination, FieldAmount},
	ModePlan:      {FieldDate, FieldAmount, FieldClassification, FieldNote},
}

// Draft is a partially filled operation, transfer or plan. Absent values are
// nil or empty; nothing here is validated across fields except the amount
// sign when the kind changes.
type Draft struct {
	Mode           Mode
	Date           *core.Date
	Counterparty   string
	Kind           core.Kind
	Amount         *decimal.Decimal
	Classification string
	Note           string
	Source         string
	Destination    string

	// Original is the stored row an edit draft was seeded from. It is the
	// match key used to find the row again.
	Original *core.Row
}

// New returns an empty draft of the given mode.
func New(mode Mode) *Draft {
	return &Draft{Mode: mode}
}

// FromRow returns an edit draft pre-filled with row.
func FromRow(row core.Row) *Draft {
	orig := row
	date := row.Date
	amount := row.Amount
	mode := ModeOperation
	if row.Kind == core.KindPlan {
		mode = ModePlan
	}
	d := &Draft{
		Mode:           mode,
		Date:           &date,
		Counterparty:   row.Counterparty,
		Kind:           row.Kind,
		Amount:         &amount,
		Classification: row.Classification,
		Note:           row.Note,
		Original:       &orig,
	}
	if d.Note == core.NotePlaceholder {
		d.Note = ""
	}
	return d
}

// IsEdit reports whether the draft edits a stored row.
func (d *Draft) IsEdit() bool { return d.Original != nil }

// Fields returns the editable fields of the draft in display order.
func (d *Draft) Fields() []Field { return modeFields[d.Mode] }

// Has reports whether field f holds a value.
func (d *Draft) Has(f Field) bool {
	switch f {
	case FieldDate:
		return d.Date != nil
	case FieldCounterparty:
		return strings.TrimSpace(d.Counterparty) != ""
	case FieldKind:
		return d.Kind != ""
	case FieldAmount:
		return d.Amount != nil
	case FieldClassification:
		return strings.TrimSpace(d.Classification) != ""
	case FieldNote:
		return strings.TrimSpace(d.Note) != ""
	case FieldSource:
		return strings.TrimSpace(d.Source) != ""
	case FieldDestination:
		return strings.TrimSpace(d.Destination) != ""
	}
	return false
}

// Required reports whether a field must be set before the draft is complete.
func (d *Draft) Required(f Field) bool {
	return f != FieldNote
}

// IsComplete reports whether every required field of the mode is set.
func (d *Draft) IsComplete() bool {
	for _, f := range d.Fields() {
		if d.Required(f) && !d.Has(f) {
			return false
		}
	}
	return true
}

func (d *Draft) SetDate(date core.Date) { d.Date = &date }

func (d *Draft) SetCounterparty(s string) { d.Counterparty = strings.TrimSpace(s) }

func (d *Draft) SetSource(s string) { d.Source = strings.TrimSpace(s) }

func (d *Draft) SetDestination(s string) { d.Destination = strings.TrimSpace(s) }

func (d *Draft) SetClassification(s string) { d.Classification = strings.TrimSpace(s) }

func (d *Draft) SetNote(s string) { d.Note = strings.TrimSpace(s) }

func (d *Draft) SetAmount(a decimal.Decimal) {
	a = a.Round(2)
	d.Amount = &a
}

// SetKind stores the operation kind. Picking Transfer on a new operation
// turns the draft into a transfer draft with the counterparty as source. An
// amount that no longer fits the kind is cleared and cleared is true.
func (d *Draft) SetKind(k core.Kind) (cleared bool) {
	if k == core.KindTransfer && d.Mode == ModeOperation && !d.IsEdit() {
		d.Mode = ModeTransfer
		if d.Source == "" {
			d.Source = d.Counterparty
		}
		d.Counterparty = ""
	}
	d.Kind = k
	if d.Amount != nil && d.CheckAmount(*d.Amount) != nil {
		d.Amount = nil
		return true
	}
	return false
}

// KindChoices lists the kinds the draft may take. A saved row keeps its
// side of the transfer divide: a transfer is two rows pointing at each
// other, so an edit can neither create one from a single row nor turn one
// leg into something else.
func (d *Draft) KindChoices() []core.Kind {
	if !d.IsEdit() {
		return core.EntryKinds
	}
	if d.Original.Kind == core.KindTransfer {
		return []core.Kind{core.KindTransfer}
	}
	var out []core.Kind
	for _, k := range core.EntryKinds {
		if k != core.KindTransfer {
			out = append(out, k)
		}
	}
	return out
}

// AllowsKind reports whether k is one of KindChoices.
func (d *Draft) AllowsKind(k core.Kind) bool {
	for _, c := range d.KindChoices() {
		if c == k {
			return true
		}
	}
	return false
}

// CheckAmount applies the sign rule of the draft's mode and kind. Before a
// kind is chosen any amount is accepted. Stored transfer legs carry either
// sign, so editing one only rules out zero.
func (d *Draft) CheckAmount(a decimal.Decimal) error {
	switch d.Mode {
	case ModeTransfer:
		return core.CheckAmount(core.KindTransfer, a)
	case ModePlan:
		return core.CheckAmount(core.KindPlan, a)
	}
	switch {
	case d.Kind == "":
		return nil
	case d.Kind == core.KindTransfer && d.IsEdit():
		if a.IsZero() {
			return core.ErrSignMismatch
		}
		return nil
	}
	return core.CheckAmount(d.Kind, a)
}

// AmountHint describes the amounts the draft accepts.
func (d *Draft) AmountHint() string {
	switch {
	case d.Mode == ModeTransfer:
		return core.SignHint(core.KindTransfer)
	case d.Mode == ModePlan:
		return core.SignHint(core.KindPlan)
	case d.Kind == "":
		return "any amount"
	case d.Kind == core.KindTransfer && d.IsEdit():
		return "a non-zero amount"
	}
	return core.SignHint(d.Kind)
}

// Row builds the ledger row of an operation or plan draft. It does not
// validate; callers get validation from the ledger.
func (d *Draft) Row() core.Row {
	r := core.Row{
		Counterparty:   d.Counterparty,
		Kind:           d.Kind,
		Classification: d.Classification,
		Note:           core.NoteOrPlaceholder(d.Note),
	}
	if d.Mode == ModePlan {
		r.Counterparty = core.PlansCounterparty
		r.Kind = core.KindPlan
	}
	if d.Date != nil {
		r.Date = *d.Date
	}
	if d.Amount != nil {
		r.Amount = *d.Amount
	}
	return r
}

// Transfer builds the transfer of a transfer draft.
func (d *Draft) Transfer() core.Transfer {
	t := core.Transfer{From: d.Source, To: d.Destination}
	if d.Date != nil {
		t.Date = *d.Date
	}
	if d.Amount != nil {
		t.Amount = *d.Amount
	}
	return t
}
