// Package core provides money parsing and handling utilities.
//
// Amounts are signed decimals kept at two fractional digits. Sheet cells and
// user input may use a comma or a dot as decimal separator and may contain
// grouping spaces.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var amountCleaner = strings.NewReplacer(
	"\u00a0", "",
	"\u202f", "",
	" ", "",
	"'", "",
	"€", "",
)

// ParseAmount converts user or sheet text to a two-decimal amount.
//
// Examples:
//
//	ParseAmount("-1500")     -> -1500.00
//	ParseAmount("12,345")    -> 12.35 (half-up)
//	ParseAmount("1 500,5")   -> 1500.50
//	ParseAmount("+20")       -> 20.00
func ParseAmount(s string) (decimal.Decimal, error) {
	s = amountCleaner.Replace(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "+")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" || strings.ContainsAny(s, "eE") || strings.Count(s, ".") > 1 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d.Round(2), nil
}

// FormatAmount renders an amount with two decimals and the given separator.
func FormatAmount(d decimal.Decimal, sep string) string {
	s := d.StringFixed(2)
	if sep != "" && sep != "." {
		s = strings.Replace(s, ".", sep, 1)
	}
	return s
}

// SameAmount compares two amounts at cent precision.
func SameAmount(a, b decimal.Decimal) bool {
	return a.Round(2).Equal(b.Round(2))
}
