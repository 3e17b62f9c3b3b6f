package ledger

import (
	"context"
	"errors"

	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/retry"
	ports "finbot/internal/sheets"
)

type parseFunc func([]string) (core.Row, error)

// write runs a table write that must not be repeated blindly: appends add
// a row every time and deletes address rows by position. A rate-limited
// request was rejected before it was applied and is simply sent again.
// Any other retryable failure may have reached the sheet before the
// response was lost, so the table is read again first: applied reports
// whether the write is already visible, and if not attempt runs against
// the fresh rows, locating its target again.
func (l *Ledger) write(ctx context.Context, op string, t ports.Table, rows [][]string,
	attempt func(ctx context.Context, rows [][]string) error,
	applied func(rows [][]string) bool,
) error {
	uncertain := false
	err := retry.Do(ctx, l.opts.Retry, func(ctx context.Context) error {
		if uncertain {
			fresh, err := t.ReadAllRows(ctx)
			if err != nil {
				return err
			}
			if applied(fresh) {
				l.logger.WarnContext(ctx, "Write was applied although the call failed", log.FieldOperation, op)
				return nil
			}
			rows = fresh
		}
		err := attempt(ctx, rows)
		uncertain = err != nil && !errors.Is(err, retry.ErrRateLimit)
		return err
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrNotFound) {
		var pe *retry.PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}
		return err
	}
	return &core.PersistenceError{Op: op, Err: err}
}

// count returns how many rows match key.
func count(rows [][]string, key Key, parse parseFunc) int {
	n := 0
	for _, v := range rows {
		if r, err := parse(v); err == nil && key.Matches(r) {
			n++
		}
	}
	return n
}

// removeFrom deletes the first row matching key. The delete counts as
// applied once fewer rows match than before, so a retry never removes the
// row that moved into the freed position.
func (l *Ledger) removeFrom(ctx context.Context, t ports.Table, rows [][]string, key Key, parse parseFunc) (int, core.Row, error) {
	before := count(rows, key, parse)
	var (
		idx int
		old core.Row
	)
	err := l.write(ctx, log.OpRemove, t, rows,
		func(ctx context.Context, rows [][]string) error {
			i, r, err := locate(rows, key, parse)
			if err != nil {
				return retry.Permanent(err)
			}
			idx, old = i, r
			return t.DeleteRow(ctx, i)
		},
		func(rows [][]string) bool { return count(rows, key, parse) < before })
	if err != nil {
		return -1, core.Row{}, err
	}
	return idx, old, nil
}

// appendAll appends rows in order and returns how many were written.
// Several rows go out in one call when the table supports it. An append
// counts as applied once more rows match it than matched before, which
// accounts for identical rows already in the sheet or earlier in the batch.
func (l *Ledger) appendAll(ctx context.Context, op string, t ports.Table, parse parseFunc, values [][]string) (int, error) {
	raw, err := l.read(ctx, t)
	if err != nil {
		return 0, err
	}
	keys := make([]Key, len(values))
	for i, v := range values {
		r, err := parse(v)
		if err != nil {
			return 0, &core.ValidationError{Field: "row", Err: err}
		}
		keys[i] = KeyOf(r)
	}
	baseline := func(i int) int {
		n := count(raw, keys[i], parse)
		for _, v := range values[:i] {
			if r, err := parse(v); err == nil && keys[i].Matches(r) {
				n++
			}
		}
		return n
	}

	if batch, ok := t.(ports.RowsAppender); ok && len(values) > 1 {
		before := baseline(0)
		err := l.write(ctx, op, t, raw,
			func(ctx context.Context, _ [][]string) error { return batch.AppendRows(ctx, values) },
			func(rows [][]string) bool { return count(rows, keys[0], parse) > before })
		if err != nil {
			return 0, err
		}
		return len(values), nil
	}

	for i, v := range values {
		before := baseline(i)
		key := keys[i]
		err := l.write(ctx, op, t, raw,
			func(ctx context.Context, _ [][]string) error { return t.AppendRow(ctx, v) },
			func(rows [][]string) bool { return count(rows, key, parse) > before })
		if err != nil {
			return i, err
		}
	}
	return len(values), nil
}
