package core

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Period selects the rows included in a classification overview.
type Period int

const (
	PeriodCurrentMonth Period = iota
	PeriodPreviousMonth
	PeriodCurrentYear
	PeriodAllTime
)

// Periods lists every period in menu order.
var Periods = []Period{PeriodCurrentMonth, PeriodPreviousMonth, PeriodCurrentYear, PeriodAllTime}

func (p Period) String() string {
	switch p {
	case PeriodCurrentMonth:
		return "Current month"
	case PeriodPreviousMonth:
		return "Previous month"
	case PeriodCurrentYear:
		return "Current year"
	case PeriodAllTime:
		return "All time"
	default:
		return "Unknown period"
	}
}

// Valid reports whether p is a known period.
func (p Period) Valid() bool { return p >= PeriodCurrentMonth && p <= PeriodAllTime }

// Contains reports whether d falls inside the period relative to today.
func (p Period) Contains(d Date, today Date) bool {
	switch p {
	case PeriodCurrentMonth:
		return d.Year() == today.Year() && d.Month() == today.Month()
	case PeriodPreviousMonth:
		prev := today.AddDate(0, 0, -today.Day()+1).AddDate(0, -1, 0)
		return d.Year() == prev.Year() && d.Time.Month() == prev.Month()
	case PeriodCurrentYear:
		return d.Year() == today.Year()
	case PeriodAllTime:
		return true
	default:
		return false
	}
}

// NamedAmount represents an amount aggregated by name.
type NamedAmount struct {
	Name   string
	Amount decimal.Decimal
}

// Overview is a titled list of aggregated amounts with their sum.
type Overview struct {
	Title string
	Items []NamedAmount
	Total decimal.Decimal
}

// Balances sums every row per counterparty, sorted by counterparty name.
func Balances(rows []Row) Overview {
	o := aggregate(rows, func(r Row) (string, bool) { return r.Counterparty, true })
	sort.SliceStable(o.Items, func(i, j int) bool {
		return strings.ToLower(o.Items[i].Name) < strings.ToLower(o.Items[j].Name)
	})
	o.Title = "Balances"
	return o
}

// ByClassification sums rows of the period per classification, smallest
// amount first so the largest expenses lead the list.
func ByClassification(rows []Row, p Period, today time.Time) Overview {
	day := DateOf(today)
	o := aggregate(rows, func(r Row) (string, bool) {
		return r.Classification, p.Contains(r.Date, day)
	})
	sort.SliceStable(o.Items, func(i, j int) bool {
		if c := o.Items[i].Amount.Cmp(o.Items[j].Amount); c != 0 {
			return c < 0
		}
		return o.Items[i].Name < o.Items[j].Name
	})
	o.Title = p.String()
	return o
}

func aggregate(rows []Row, key func(Row) (string, bool)) Overview {
	sums := make(map[string]decimal.Decimal)
	var order []string
	total := decimal.Zero
	for _, r := range rows {
		name, ok := key(r)
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = NotePlaceholder
		}
		if _, seen := sums[name]; !seen {
			order = append(order, name)
		}
		sums[name] = sums[name].Add(r.Amount)
		total = total.Add(r.Amount)
	}
	items := make([]NamedAmount, 0, len(order))
	for _, name := range order {
		items = append(items, NamedAmount{Name: name, Amount: sums[name]})
	}
	return Overview{Items: items, Total: total}
}
