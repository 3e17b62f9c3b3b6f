// Package ledger reconciles the bot's view of operations with the user's
// spreadsheet: it appends and re-sorts rows, finds rows again by value,
// updates or removes them, and writes transfers as two legs.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"finbot/internal/amqp"
	"finbot/internal/cache"
	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/retry"
	ports "finbot/internal/sheets"
)

const (
	sheetFinance = "finance"
	sheetPlans   = "plans"
)

// Publisher receives an event after every acknowledged write.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error
}

// Options carries the collaborators shared by every Ledger. All fields are
// optional.
type Options struct {
	Retry     retry.Policy
	Publisher Publisher
	Cache     cache.Cache[[]string]
	Logger    *log.Logger
	Now       func() time.Time
}

// Ledger is the Finance and Plans sheets of one chat's spreadsheet.
type Ledger struct {
	chatID        int64
	spreadsheetID string
	finance       ports.Table
	plans         ports.Table
	opts          Options
	logger        *log.Logger
}

// New binds a workbook to a chat.
func New(chatID int64, spreadsheetID string, wb ports.Workbook, opts Options) *Ledger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Ledger{
		chatID:        chatID,
		spreadsheetID: spreadsheetID,
		finance:       wb.Finance,
		plans:         wb.Plans,
		opts:          opts,
		logger: logger.WithComponent(log.ComponentLedger).
			With(log.FieldChatID, chatID, log.FieldSpreadsheetID, spreadsheetID),
	}
}

// SpreadsheetID returns the spreadsheet the ledger writes to.
func (l *Ledger) SpreadsheetID() string { return l.spreadsheetID }

// do runs one idempotent table call (a read or a sort) under the retry
// policy and wraps failures.
func (l *Ledger) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := retry.Do(ctx, l.opts.Retry, fn); err != nil {
		return &core.PersistenceError{Op: op, Err: err}
	}
	return nil
}

func (l *Ledger) read(ctx context.Context, t ports.Table) ([][]string, error) {
	var rows [][]string
	err := l.do(ctx, log.OpRead, func(ctx context.Context) error {
		var err error
		rows, err = t.ReadAllRows(ctx)
		return err
	})
	return rows, err
}

// sortByDate re-sorts a table after a write. The write itself has been
// acknowledged, so a failure here is logged and not returned.
func (l *Ledger) sortByDate(ctx context.Context, t ports.Table) {
	err := l.do(ctx, log.OpSort, func(ctx context.Context) error {
		return t.SortByColumn(ctx, ports.ColDate, ports.Descending)
	})
	if err != nil {
		l.logger.WarnContext(ctx, "Sort after write failed", log.FieldError, err)
	}
}

// Rows returns every parseable Finance row in sheet order.
func (l *Ledger) Rows(ctx context.Context) ([]core.Row, error) {
	raw, err := l.read(ctx, l.finance)
	if err != nil {
		return nil, err
	}
	out := make([]core.Row, 0, len(raw))
	for _, v := range raw {
		r, err := core.RowFromValues(v)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Recent returns the n newest operations, newest first.
func (l *Ledger) Recent(ctx context.Context, n int) ([]core.Row, error) {
	rows, err := l.Rows(ctx)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(rows)
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

func sortNewestFirst(rows []core.Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date.After(rows[j].Date.Time)
	})
}

// Append writes a validated row and re-sorts the sheet by date.
func (l *Ledger) Append(ctx context.Context, row core.Row) error {
	if err := row.Validate(); err != nil {
		return err
	}
	values := row.Values()
	if _, err := l.appendAll(ctx, log.OpAppend, l.finance, core.RowFromValues, [][]string{values}); err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "Operation appended", log.NewFields().
		WithOperation(log.OpAppend).
		WithRow(row.Counterparty, string(row.Kind), row.Date.Display(), values[ports.ColAmount]).ToSlice()...)
	l.afterWrite(ctx, sheetFinance, amqp.ActionAppend, values, nil)
	l.sortByDate(ctx, l.finance)
	return nil
}

// Locate scans the Finance sheet once from the top and returns the index
// and content of the first row matching key.
func (l *Ledger) Locate(ctx context.Context, key Key) (int, core.Row, error) {
	raw, err := l.read(ctx, l.finance)
	if err != nil {
		return -1, core.Row{}, err
	}
	return locate(raw, key, core.RowFromValues)
}

func locate(raw [][]string, key Key, parse func([]string) (core.Row, error)) (int, core.Row, error) {
	for i, v := range raw {
		r, err := parse(v)
		if err != nil {
			continue
		}
		if key.Matches(r) {
			return i, r, nil
		}
	}
	return -1, core.Row{}, fmt.Errorf("%w: %s", core.ErrNotFound, key)
}

// Update overwrites the row matching key with row in a single range write.
// When no row matches nothing is written and core.ErrNotFound is returned.
func (l *Ledger) Update(ctx context.Context, key Key, row core.Row) error {
	if err := validateStored(row); err != nil {
		return err
	}
	raw, err := l.read(ctx, l.finance)
	if err != nil {
		return err
	}
	values := row.Values()
	newKey := KeyOf(row)
	before := count(raw, newKey, core.RowFromValues)

	var (
		idx int
		old core.Row
	)
	err = l.write(ctx, log.OpUpdate, l.finance, raw,
		func(ctx context.Context, rows [][]string) error {
			i, r, err := locate(rows, key, core.RowFromValues)
			if err != nil {
				return retry.Permanent(err)
			}
			idx, old = i, r
			return l.finance.UpdateRange(ctx, i, values)
		},
		func(rows [][]string) bool { return count(rows, newKey, core.RowFromValues) > before })
	if err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "Operation updated", log.FieldRowIndex, idx, log.FieldCounterparty, row.Counterparty)
	l.afterWrite(ctx, sheetFinance, amqp.ActionUpdate, values, old.Values())
	if !old.Date.Same(row.Date) {
		l.sortByDate(ctx, l.finance)
	}
	return nil
}

// Remove deletes the row matching key and returns what was removed.
func (l *Ledger) Remove(ctx context.Context, key Key) (core.Row, error) {
	raw, err := l.read(ctx, l.finance)
	if err != nil {
		return core.Row{}, err
	}
	idx, old, err := l.removeFrom(ctx, l.finance, raw, key, core.RowFromValues)
	if err != nil {
		return core.Row{}, err
	}
	l.logger.InfoContext(ctx, "Operation removed", log.FieldRowIndex, idx, log.FieldCounterparty, old.Counterparty)
	l.afterWrite(ctx, sheetFinance, amqp.ActionRemove, nil, old.Values())
	return old, nil
}

// validateStored checks a row that may already exist in the sheet: kinds and
// signs written by other tools are accepted as they are.
func validateStored(r core.Row) error {
	if err := r.Date.Validate(); err != nil {
		return &core.ValidationError{Field: "date", Err: err}
	}
	if strings.TrimSpace(r.Counterparty) == "" {
		return &core.ValidationError{Field: "counterparty", Err: core.ErrEmptyCounterparty}
	}
	if strings.TrimSpace(r.Classification) == "" {
		return &core.ValidationError{Field: "classification", Err: core.ErrEmptyClassification}
	}
	return nil
}

// afterWrite drops cached lookups and publishes the audit event.
func (l *Ledger) afterWrite(ctx context.Context, sheet, action string, values, previous []string) {
	if l.opts.Cache != nil {
		l.opts.Cache.DeletePrefix(l.spreadsheetID + "/")
	}
	if l.opts.Publisher == nil {
		return
	}
	msg := amqp.NewLedgerEventMessage(l.chatID, l.spreadsheetID, sheet, action, values, previous)
	if err := l.opts.Publisher.PublishLedgerEvent(ctx, msg); err != nil {
		l.logger.WarnContext(ctx, "Ledger event not published",
			log.FieldEventID, msg.ID.String(), log.FieldAction, action, log.FieldError, err)
	}
}

// IsNotFound reports whether err means a row could not be located.
func IsNotFound(err error) bool { return errors.Is(err, core.ErrNotFound) }
