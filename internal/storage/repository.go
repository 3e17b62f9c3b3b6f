package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrUserNotFound is returned when a chat has no bound spreadsheet.
var ErrUserNotFound = errors.New("user not found")

// LedgerEvent is one audited write to a spreadsheet.
type LedgerEvent struct {
	ID            string
	ChatID        int64
	SpreadsheetID string
	Sheet         string
	Action        string
	Values        []string
	Previous      []string
	OccurredAt    time.Time
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite schema ready", "path", dbPath, "version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// BindSpreadsheet stores the spreadsheet used by a chat, replacing any
// previous binding.
func (r *SQLiteRepository) BindSpreadsheet(ctx context.Context, chatID int64, spreadsheetID string) error {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return errors.New("empty spreadsheet id")
	}
	if err := r.queries.UpsertUser(ctx, chatID, spreadsheetID); err != nil {
		return fmt.Errorf("bind spreadsheet: %w", err)
	}
	slog.InfoContext(ctx, "Spreadsheet bound", "chat_id", chatID, "spreadsheet_id", spreadsheetID)
	return nil
}

// SpreadsheetFor returns the spreadsheet bound to a chat or ErrUserNotFound.
func (r *SQLiteRepository) SpreadsheetFor(ctx context.Context, chatID int64) (string, error) {
	id, err := r.queries.GetUserSpreadsheet(ctx, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get user spreadsheet: %w", err)
	}
	return id, nil
}

// RecordLedgerEvent stores an event once; redelivered events with the same
// id are ignored and reported as not inserted.
func (r *SQLiteRepository) RecordLedgerEvent(ctx context.Context, e LedgerEvent) (bool, error) {
	values, err := encodeCells(e.Values)
	if err != nil {
		return false, err
	}
	previous, err := encodeCells(e.Previous)
	if err != nil {
		return false, err
	}
	n, err := r.queries.InsertLedgerEvent(ctx, InsertLedgerEventParams{
		ID:            e.ID,
		ChatID:        e.ChatID,
		SpreadsheetID: e.SpreadsheetID,
		Sheet:         e.Sheet,
		Action:        e.Action,
		RowValues:     values,
		Previous:      previous,
		OccurredAt:    e.OccurredAt.UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("insert ledger event: %w", err)
	}
	return n > 0, nil
}

// ListLedgerEvents returns the newest events of a spreadsheet first.
func (r *SQLiteRepository) ListLedgerEvents(ctx context.Context, spreadsheetID string, limit int) ([]LedgerEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.queries.ListLedgerEvents(ctx, spreadsheetID, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list ledger events: %w", err)
	}
	out := make([]LedgerEvent, 0, len(rows))
	for _, row := range rows {
		e := LedgerEvent{
			ID:            row.ID,
			ChatID:        row.ChatID,
			SpreadsheetID: row.SpreadsheetID,
			Sheet:         row.Sheet,
			Action:        row.Action,
			OccurredAt:    row.OccurredAt,
		}
		if err := json.Unmarshal([]byte(row.RowValues), &e.Values); err != nil {
			return nil, fmt.Errorf("decode values of event %s: %w", row.ID, err)
		}
		if err := json.Unmarshal([]byte(row.Previous), &e.Previous); err != nil {
			return nil, fmt.Errorf("decode previous values of event %s: %w", row.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func encodeCells(cells []string) (string, error) {
	if cells == nil {
		cells = []string{}
	}
	b, err := json.Marshal(cells)
	if err != nil {
		return "", fmt.Errorf("encode cells: %w", err)
	}
	return string(b), nil
}
