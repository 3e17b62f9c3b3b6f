package ledger

import (
	"strings"

	"finbot/internal/core"

	"github.com/shopspring/decimal"
)

// Key identifies a row by value. The sheet offers no stable row id and is
// re-sorted after every write, so rows are found again by their content.
// Counterparty, Date and Amount are always compared; Classification and
// Note only when set. Two rows equal on every compared field cannot be told
// apart and the first one in sheet order wins.
type Key struct {
	Counterparty   string
	Date           core.Date
	Amount         decimal.Decimal
	Classification string
	Note           string
}

// KeyOf returns the widest key for a row.
func KeyOf(r core.Row) Key {
	return Key{
		Counterparty:   r.Counterparty,
		Date:           r.Date,
		Amount:         r.Amount,
		Classification: r.Classification,
		Note:           core.NoteOrPlaceholder(r.Note),
	}
}

// Matches compares the key with a parsed row: dates by calendar day,
// amounts at cent precision, text after trimming.
func (k Key) Matches(r core.Row) bool {
	if strings.TrimSpace(k.Counterparty) != strings.TrimSpace(r.Counterparty) {
		return false
	}
	if !k.Date.Same(r.Date) || !core.SameAmount(k.Amount, r.Amount) {
		return false
	}
	if c := strings.TrimSpace(k.Classification); c != "" && c != strings.TrimSpace(r.Classification) {
		return false
	}
	if n := strings.TrimSpace(k.Note); n != "" && core.NoteOrPlaceholder(n) != core.NoteOrPlaceholder(r.Note) {
		return false
	}
	return true
}

func (k Key) String() string {
	return k.Counterparty + " " + k.Date.Display() + " " + k.Amount.StringFixed(2)
}
