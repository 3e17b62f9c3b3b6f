package ledger

import (
	"context"
	"errors"
	"fmt"

	"finbot/internal/amqp"
	"finbot/internal/core"
	"finbot/internal/log"
)

// ExpandTransfer returns the two rows of a transfer: the source leg carries
// the negated amount and names the destination in its note, the destination
// leg carries the amount and names the source.
func ExpandTransfer(t core.Transfer) [2]core.Row {
	amount := t.Amount.Abs().Round(2)
	return [2]core.Row{
		{
			Counterparty:   t.From,
			Kind:           core.KindTransfer,
			Date:           t.Date,
			Amount:         amount.Neg(),
			Classification: core.TransferClassification,
			Note:           t.To,
		},
		{
			Counterparty:   t.To,
			Kind:           core.KindTransfer,
			Date:           t.Date,
			Amount:         amount,
			Classification: core.TransferClassification,
			Note:           t.From,
		},
	}
}

// AppendTransfer writes both legs as one logical operation. Tables that
// append several rows at once get a single call. Otherwise the legs are
// appended one by one and the first leg is removed again when the second
// fails; if that removal fails too the error wraps core.ErrPartialTransfer.
func (l *Ledger) AppendTransfer(ctx context.Context, t core.Transfer) error {
	if err := t.Validate(); err != nil {
		return err
	}
	legs := ExpandTransfer(t)
	values := [][]string{legs[0].Values(), legs[1].Values()}

	n, err := l.appendAll(ctx, log.OpTransfer, l.finance, core.RowFromValues, values)
	if err != nil {
		if n == 1 {
			return l.compensate(ctx, legs[0], err)
		}
		return err
	}

	l.logger.InfoContext(ctx, "Transfer appended",
		log.FieldOperation, log.OpTransfer, "from", t.From, "to", t.To, log.FieldAmount, t.Amount.StringFixed(2))
	l.afterWrite(ctx, sheetFinance, amqp.ActionAppend, values[0], nil)
	l.afterWrite(ctx, sheetFinance, amqp.ActionAppend, values[1], nil)
	l.sortByDate(ctx, l.finance)
	return nil
}

// compensate removes the already written first leg after the second leg
// failed. cause is the failure of the second append.
func (l *Ledger) compensate(ctx context.Context, first core.Row, cause error) error {
	raw, err := l.read(ctx, l.finance)
	if err == nil {
		_, _, err = l.removeFrom(ctx, l.finance, raw, KeyOf(first), core.RowFromValues)
	}
	if err != nil {
		l.logger.ErrorContext(ctx, "Transfer left half written", log.NewFields().
			WithError(err, log.ErrorTypePartialWrite).
			WithRow(first.Counterparty, string(first.Kind), first.Date.Display(), first.Amount.StringFixed(2)).ToSlice()...)
		l.afterWrite(ctx, sheetFinance, amqp.ActionAppend, first.Values(), nil)
		return fmt.Errorf("%w: %w", core.ErrPartialTransfer, errors.Join(cause, err))
	}
	l.logger.WarnContext(ctx, "Transfer rolled back after second leg failed", log.FieldError, cause)
	return cause
}
