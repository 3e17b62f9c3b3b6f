package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1,23", "1.23", true},
		{"-1500", "-1500.00", true},
		{"+20", "20.00", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.50", true},
		{"1 500,5", "1500.50", true},
		{"1 000", "1000.00", true},
		{"0", "0.00", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.StringFixed(2) != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got.StringFixed(2), err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	d := decimal.RequireFromString("-1500.5")
	if got := FormatAmount(d, ","); got != "-1500,50" {
		t.Fatalf("comma format = %q", got)
	}
	if got := FormatAmount(d, "."); got != "-1500.50" {
		t.Fatalf("dot format = %q", got)
	}
}
