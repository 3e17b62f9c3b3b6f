package ledger

import (
	"context"

	"finbot/internal/amqp"
	"finbot/internal/core"
	"finbot/internal/log"
)

// Plans returns the plan rows dated in the given month, newest first.
func (l *Ledger) Plans(ctx context.Context, year, month int) ([]core.Row, error) {
	raw, err := l.read(ctx, l.plans)
	if err != nil {
		return nil, err
	}
	var out []core.Row
	for _, v := range raw {
		r, err := core.RowFromPlanValues(v)
		if err != nil {
			continue
		}
		if r.Date.Year() == year && r.Date.Month() == month {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// AppendPlan writes one plan row to the Plans sheet.
func (l *Ledger) AppendPlan(ctx context.Context, row core.Row) error {
	row.Counterparty = core.PlansCounterparty
	row.Kind = core.KindPlan
	if err := row.Validate(); err != nil {
		return err
	}
	values := row.PlanValues()
	if _, err := l.appendAll(ctx, log.OpAppend, l.plans, core.RowFromPlanValues, [][]string{values}); err != nil {
		return err
	}
	l.afterWrite(ctx, sheetPlans, amqp.ActionAppend, values, nil)
	l.sortByDate(ctx, l.plans)
	return nil
}

// CopyPlans repeats last month's plans on the last day of the current month
// and returns how many rows were written. Nothing is written when last month
// has no plans.
func (l *Ledger) CopyPlans(ctx context.Context) (int, error) {
	today := core.DateOf(l.opts.Now())
	prevYear, prevMonth := today.Year(), today.Month()-1
	if prevMonth == 0 {
		prevYear, prevMonth = prevYear-1, 12
	}
	prev, err := l.Plans(ctx, prevYear, prevMonth)
	if err != nil {
		return 0, err
	}
	if len(prev) == 0 {
		return 0, nil
	}

	target := core.LastDayOfMonth(today.Year(), today.Month())
	rows := make([][]string, 0, len(prev))
	// oldest first so the copies keep last month's order
	for i := len(prev) - 1; i >= 0; i-- {
		r := prev[i]
		r.Date = target
		rows = append(rows, r.PlanValues())
	}

	if _, err := l.appendAll(ctx, log.OpAppend, l.plans, core.RowFromPlanValues, rows); err != nil {
		return 0, err
	}
	for _, v := range rows {
		l.afterWrite(ctx, sheetPlans, amqp.ActionAppend, v, nil)
	}
	l.sortByDate(ctx, l.plans)
	l.logger.InfoContext(ctx, "Plans copied", "count", len(rows), log.FieldDate, target.Display())
	return len(rows), nil
}
