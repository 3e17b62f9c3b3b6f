package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const upsertUser = `
INSERT INTO users (chat_id, spreadsheet_id) VALUES (?, ?)
ON CONFLICT(chat_id) DO UPDATE SET spreadsheet_id = excluded.spreadsheet_id, updated_at = CURRENT_TIMESTAMP
`

func (q *Queries) UpsertUser(ctx context.Context, chatID int64, spreadsheetID string) error {
	_, err := q.db.ExecContext(ctx, upsertUser, chatID, spreadsheetID)
	return err
}

const getUserSpreadsheet = `SELECT spreadsheet_id FROM users WHERE chat_id = ?`

func (q *Queries) GetUserSpreadsheet(ctx context.Context, chatID int64) (string, error) {
	row := q.db.QueryRowContext(ctx, getUserSpreadsheet, chatID)
	var id string
	err := row.Scan(&id)
	return id, err
}

const insertLedgerEvent = `
INSERT OR IGNORE INTO ledger_events (id, chat_id, spreadsheet_id, sheet, action, row_values, previous, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertLedgerEventParams struct {
	ID            string
	ChatID        int64
	SpreadsheetID string
	Sheet         string
	Action        string
	RowValues     string
	Previous      string
	OccurredAt    time.Time
}

func (q *Queries) InsertLedgerEvent(ctx context.Context, arg InsertLedgerEventParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertLedgerEvent,
		arg.ID,
		arg.ChatID,
		arg.SpreadsheetID,
		arg.Sheet,
		arg.Action,
		arg.RowValues,
		arg.Previous,
		arg.OccurredAt,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listLedgerEvents = `
SELECT id, chat_id, spreadsheet_id, sheet, action, row_values, previous, occurred_at
FROM ledger_events
WHERE spreadsheet_id = ?
ORDER BY occurred_at DESC, recorded_at DESC
LIMIT ?
`

type LedgerEventRow struct {
	ID            string
	ChatID        int64
	SpreadsheetID string
	Sheet         string
	Action        string
	RowValues     string
	Previous      string
	OccurredAt    time.Time
}

func (q *Queries) ListLedgerEvents(ctx context.Context, spreadsheetID string, limit int64) ([]LedgerEventRow, error) {
	rows, err := q.db.QueryContext(ctx, listLedgerEvents, spreadsheetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LedgerEventRow
	for rows.Next() {
		var i LedgerEventRow
		if err := rows.Scan(
			&i.ID,
			&i.ChatID,
			&i.SpreadsheetID,
			&i.Sheet,
			&i.Action,
			&i.RowValues,
			&i.Previous,
			&i.OccurredAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
