package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindDeposit    Kind = "Deposit"
	KindWithdrawal Kind = "Withdrawal"
	KindTransfer   Kind = "Transfer"
	KindPlan       Kind = "PlannedItem"
)

const (
	// TransferClassification is the classification written on both legs of a transfer.
	TransferClassification = "Transfer"
	// PlansCounterparty is the bank column value of every plan row.
	PlansCounterparty = "Plans"
	// NotePlaceholder replaces an empty note.
	NotePlaceholder = "-"
)

type (
	// Kind is the operation kind stored in the fourth ledger column.
	Kind string

	Date struct {
		time.Time
	}

	// Row is one ledger line: Year and Month are derived from Date when written.
	Row struct {
		Counterparty   string
		Kind           Kind
		Date           Date
		Amount         decimal.Decimal
		Classification string
		Note           string
	}

	// Transfer moves Amount (always positive) from one counterparty to another.
	Transfer struct {
		Date   Date
		From   string
		To     string
		Amount decimal.Decimal
	}
)

var (
	ErrInvalidDay          = errors.New("invalid day")
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidKind         = errors.New("invalid operation kind")
	ErrSignMismatch        = errors.New("amount sign does not match operation kind")
	ErrEmptyCounterparty   = errors.New("empty counterparty")
	ErrEmptyClassification = errors.New("empty classification")
	ErrSameCounterparty    = errors.New("source and destination must differ")
	ErrShortRow            = errors.New("row has too few columns")
	ErrNotFound            = errors.New("row not found")
	ErrPartialTransfer     = errors.New("transfer partially written")
)

// EntryKinds are the kinds a user may pick for a new operation.
var EntryKinds = []Kind{KindDeposit, KindWithdrawal, KindTransfer}

// ParseKind accepts any of the known kinds, case-insensitively.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for _, k := range []Kind{KindDeposit, KindWithdrawal, KindTransfer, KindPlan} {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// CheckAmount enforces the sign rule of a kind: withdrawals are negative,
// deposits are zero or positive, transfers and plans are strictly positive.
func CheckAmount(k Kind, amount decimal.Decimal) error {
	var ok bool
	switch k {
	case KindWithdrawal:
		ok = amount.IsNegative()
	case KindDeposit:
		ok = !amount.IsNegative()
	case KindTransfer, KindPlan:
		ok = amount.IsPositive()
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, k)
	}
	if !ok {
		return fmt.Errorf("%w: %s requires %s", ErrSignMismatch, k, SignHint(k))
	}
	return nil
}

// SignHint describes in words which amounts a kind accepts.
func SignHint(k Kind) string {
	switch k {
	case KindWithdrawal:
		return "a negative amount"
	case KindDeposit:
		return "zero or a positive amount"
	case KindTransfer, KindPlan:
		return "a positive amount"
	default:
		return "a known operation kind"
	}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// MonthName returns the English month name written in the Month column.
func (d Date) MonthName() string {
	return d.Time.Month().String()
}

// Display is the day-month-year form stored in the Date column.
func (d Date) Display() string {
	return d.Format("02.01.2006")
}

// ISO returns the canonical calendar date.
func (d Date) ISO() string {
	return d.Format("2006-01-02")
}

// Same reports whether both dates fall on the same calendar day.
func (d Date) Same(o Date) bool {
	y1, m1, d1 := d.Date()
	y2, m2, d2 := o.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// LastDayOfMonth returns the final calendar day of the given month.
func LastDayOfMonth(year, month int) Date {
	return DateOf(time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC))
}

// PrevMonth returns the month before (year, month), rolling January back to
// December of the previous year.
func PrevMonth(year, month int) (int, int) {
	if month <= 1 {
		return year - 1, 12
	}
	return year, month - 1
}

// NextMonth returns the month after (year, month), rolling December over to
// January of the next year.
func NextMonth(year, month int) (int, int) {
	if month >= 12 {
		return year + 1, 1
	}
	return year, month + 1
}

var dateLayouts = []string{
	"02.01.2006",
	"2.1.2006",
	"2006-01-02",
	"01/02/2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseDate accepts the layouts found in sheet cells: DD.MM.YYYY, ISO and MM/DD/YYYY.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// NoteOrPlaceholder returns the trimmed note, or "-" when it is blank.
func NoteOrPlaceholder(note string) string {
	if n := strings.TrimSpace(note); n != "" {
		return n
	}
	return NotePlaceholder
}

func (r Row) Validate() error {
	if err := r.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Err: err}
	}
	if strings.TrimSpace(r.Counterparty) == "" {
		return &ValidationError{Field: "counterparty", Err: ErrEmptyCounterparty}
	}
	if err := CheckAmount(r.Kind, r.Amount); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	if strings.TrimSpace(r.Classification) == "" {
		return &ValidationError{Field: "classification", Err: ErrEmptyClassification}
	}
	return nil
}

// Values renders the row as the eight Finance sheet columns.
func (r Row) Values() []string {
	return []string{
		fmt.Sprintf("%d", r.Date.Year()),
		r.Date.MonthName(),
		strings.TrimSpace(r.Counterparty),
		string(r.Kind),
		r.Date.Display(),
		r.Amount.StringFixed(2),
		strings.TrimSpace(r.Classification),
		NoteOrPlaceholder(r.Note),
	}
}

// PlanValues renders the row as the nine Plans sheet columns; the Remainder
// column is left empty for the sheet formula.
func (r Row) PlanValues() []string {
	v := r.Values()
	return []string{v[0], v[1], PlansCounterparty, string(KindPlan), v[4], v[5], "", v[6], v[7]}
}

// RowFromValues parses a Finance sheet row. Missing trailing cells are
// treated as empty; the kind column is kept verbatim.
func RowFromValues(v []string) (Row, error) {
	if len(v) < 6 {
		return Row{}, ErrShortRow
	}
	date, err := ParseDate(v[4])
	if err != nil {
		return Row{}, err
	}
	amount, err := ParseAmount(v[5])
	if err != nil {
		return Row{}, err
	}
	return Row{
		Counterparty:   strings.TrimSpace(v[2]),
		Kind:           Kind(strings.TrimSpace(v[3])),
		Date:           date,
		Amount:         amount,
		Classification: cell(v, 6),
		Note:           NoteOrPlaceholder(cell(v, 7)),
	}, nil
}

// RowFromPlanValues parses a Plans sheet row.
func RowFromPlanValues(v []string) (Row, error) {
	if len(v) < 6 {
		return Row{}, ErrShortRow
	}
	date, err := ParseDate(v[4])
	if err != nil {
		return Row{}, err
	}
	amount, err := ParseAmount(v[5])
	if err != nil {
		return Row{}, err
	}
	return Row{
		Counterparty:   PlansCounterparty,
		Kind:           KindPlan,
		Date:           date,
		Amount:         amount,
		Classification: cell(v, 7),
		Note:           NoteOrPlaceholder(cell(v, 8)),
	}, nil
}

func cell(v []string, i int) string {
	if i < len(v) {
		return strings.TrimSpace(v[i])
	}
	return ""
}

func (t Transfer) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Err: err}
	}
	from, to := strings.TrimSpace(t.From), strings.TrimSpace(t.To)
	if from == "" || to == "" {
		return &ValidationError{Field: "counterparty", Err: ErrEmptyCounterparty}
	}
	if strings.EqualFold(from, to) {
		return &ValidationError{Field: "destination", Err: ErrSameCounterparty}
	}
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Err: fmt.Errorf("%w: transfer requires a positive amount", ErrSignMismatch)}
	}
	return nil
}
