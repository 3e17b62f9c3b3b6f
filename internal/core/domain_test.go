package core

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := NewDate(2025, 3, 10)
	for _, in := range []string{"10.03.2025", "2025-03-10", "03/10/2025", "2025-03-10T00:00:00Z", " 10.3.2025 "} {
		got, err := ParseDate(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if !got.Same(want) {
			t.Fatalf("%q parsed as %s", in, got.ISO())
		}
	}
	if _, err := ParseDate("tomorrow"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestCheckAmount(t *testing.T) {
	cases := []struct {
		kind Kind
		amt  string
		ok   bool
	}{
		{KindWithdrawal, "-1500", true},
		{KindWithdrawal, "0", false},
		{KindWithdrawal, "10", false},
		{KindDeposit, "0", true},
		{KindDeposit, "10", true},
		{KindDeposit, "-1", false},
		{KindTransfer, "500", true},
		{KindTransfer, "-500", false},
		{KindTransfer, "0", false},
		{KindPlan, "1", true},
		{KindPlan, "0", false},
	}
	for _, tc := range cases {
		err := CheckAmount(tc.kind, decimal.RequireFromString(tc.amt))
		if tc.ok && err != nil {
			t.Errorf("%s %s: unexpected %v", tc.kind, tc.amt, err)
		}
		if !tc.ok && !errors.Is(err, ErrSignMismatch) {
			t.Errorf("%s %s: expected sign mismatch, got %v", tc.kind, tc.amt, err)
		}
	}
	if err := CheckAmount(Kind("Bonus"), decimal.NewFromInt(1)); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestRowValues(t *testing.T) {
	r := Row{
		Counterparty:   "Alpha",
		Kind:           KindWithdrawal,
		Date:           NewDate(2025, 3, 10),
		Amount:         decimal.RequireFromString("-1500"),
		Classification: "Groceries",
	}
	want := []string{"2025", "March", "Alpha", "Withdrawal", "10.03.2025", "-1500.00", "Groceries", "-"}
	if got := r.Values(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Values() = %v, want %v", got, want)
	}

	back, err := RowFromValues(want)
	if err != nil {
		t.Fatalf("RowFromValues: %v", err)
	}
	if !reflect.DeepEqual(back.Values(), want) {
		t.Fatalf("reparsed row renders %v", back.Values())
	}

	plan := r
	plan.Kind = KindPlan
	plan.Amount = decimal.NewFromInt(300)
	pv := plan.PlanValues()
	if len(pv) != 9 || pv[2] != PlansCounterparty || pv[3] != "PlannedItem" || pv[6] != "" || pv[7] != "Groceries" {
		t.Fatalf("PlanValues() = %v", pv)
	}
	pr, err := RowFromPlanValues(pv)
	if err != nil || !pr.Amount.Equal(decimal.NewFromInt(300)) || pr.Classification != "Groceries" {
		t.Fatalf("RowFromPlanValues() = %+v, %v", pr, err)
	}
}

func TestRowFromValuesErrors(t *testing.T) {
	bads := [][]string{
		{"2025", "March", "Alpha"},
		{"2025", "March", "Alpha", "Deposit", "someday", "10"},
		{"2025", "March", "Alpha", "Deposit", "10.03.2025", "ten"},
	}
	for i, v := range bads {
		if _, err := RowFromValues(v); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestRowValidate(t *testing.T) {
	good := Row{
		Counterparty:   "Alpha",
		Kind:           KindDeposit,
		Date:           NewDate(2025, 1, 1),
		Amount:         decimal.NewFromInt(10),
		Classification: "Salary",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Row{
		{Counterparty: "", Kind: KindDeposit, Date: NewDate(2025, 1, 1), Amount: decimal.NewFromInt(1), Classification: "c"},
		{Counterparty: "a", Kind: KindDeposit, Date: Date{}, Amount: decimal.NewFromInt(1), Classification: "c"},
		{Counterparty: "a", Kind: KindWithdrawal, Date: NewDate(2025, 1, 1), Amount: decimal.NewFromInt(1), Classification: "c"},
		{Counterparty: "a", Kind: KindDeposit, Date: NewDate(2025, 1, 1), Amount: decimal.NewFromInt(1), Classification: " "},
	}
	for i, r := range bads {
		var ve *ValidationError
		if err := r.Validate(); !errors.As(err, &ve) {
			t.Fatalf("case %d expected ValidationError, got %v", i, err)
		}
	}
}

func TestTransferValidate(t *testing.T) {
	tr := Transfer{Date: NewDate(2025, 3, 10), From: "Alpha", To: "Beta", Amount: decimal.NewFromInt(500)}
	if err := tr.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	same := tr
	same.To = "alpha"
	if err := same.Validate(); !errors.Is(err, ErrSameCounterparty) {
		t.Fatalf("expected ErrSameCounterparty, got %v", err)
	}
	neg := tr
	neg.Amount = decimal.NewFromInt(-5)
	if err := neg.Validate(); !errors.Is(err, ErrSignMismatch) {
		t.Fatalf("expected ErrSignMismatch, got %v", err)
	}
}

func TestLastDayOfMonth(t *testing.T) {
	if d := LastDayOfMonth(2024, 2); d.Day() != 29 {
		t.Fatalf("leap February ends on %d", d.Day())
	}
	if d := LastDayOfMonth(2025, 12); d.ISO() != "2025-12-31" {
		t.Fatalf("December ends on %s", d.ISO())
	}
}

func TestMonthNavigation(t *testing.T) {
	tests := []struct {
		year, month       int
		prevYear, prevMon int
		nextYear, nextMon int
	}{
		{2025, 1, 2024, 12, 2025, 2},
		{2025, 6, 2025, 5, 2025, 7},
		{2025, 12, 2025, 11, 2026, 1},
	}
	for _, tt := range tests {
		if y, m := PrevMonth(tt.year, tt.month); y != tt.prevYear || m != tt.prevMon {
			t.Errorf("PrevMonth(%d, %d) = %d, %d", tt.year, tt.month, y, m)
		}
		if y, m := NextMonth(tt.year, tt.month); y != tt.nextYear || m != tt.nextMon {
			t.Errorf("NextMonth(%d, %d) = %d, %d", tt.year, tt.month, y, m)
		}
	}
}
