package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "finbot.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestBindAndResolveSpreadsheet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.SpreadsheetFor(ctx, 1); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := repo.BindSpreadsheet(ctx, 1, "sheet-a"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := repo.BindSpreadsheet(ctx, 1, "sheet-b"); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	id, err := repo.SpreadsheetFor(ctx, 1)
	if err != nil || id != "sheet-b" {
		t.Fatalf("SpreadsheetFor = %q, %v", id, err)
	}
	if err := repo.BindSpreadsheet(ctx, 2, "  "); err == nil {
		t.Fatal("expected error for blank spreadsheet id")
	}
}

func TestRecordLedgerEventIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	first := LedgerEvent{
		ID:            "e1",
		ChatID:        1,
		SpreadsheetID: "sheet-a",
		Sheet:         "finance",
		Action:        "append",
		Values:        []string{"2025", "March", "Alpha"},
		OccurredAt:    base,
	}
	inserted, err := repo.RecordLedgerEvent(ctx, first)
	if err != nil || !inserted {
		t.Fatalf("first insert = %v, %v", inserted, err)
	}
	inserted, err = repo.RecordLedgerEvent(ctx, first)
	if err != nil || inserted {
		t.Fatalf("duplicate insert = %v, %v", inserted, err)
	}

	second := first
	second.ID = "e2"
	second.Action = "remove"
	second.Values = nil
	second.Previous = []string{"2025", "March", "Alpha"}
	second.OccurredAt = base.Add(time.Minute)
	if _, err := repo.RecordLedgerEvent(ctx, second); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	events, err := repo.ListLedgerEvents(ctx, "sheet-a", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 || events[0].ID != "e2" || events[1].ID != "e1" {
		t.Fatalf("unexpected events %+v", events)
	}
	if len(events[0].Values) != 0 || len(events[0].Previous) != 3 || events[1].Values[2] != "Alpha" {
		t.Fatalf("cells not round-tripped: %+v", events)
	}

	bad := first
	bad.ID = "e3"
	bad.Action = "rename"
	if _, err := repo.RecordLedgerEvent(ctx, bad); err == nil {
		t.Fatal("expected check constraint failure for unknown action")
	}
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finbot.db")
	for i := 0; i < 2; i++ {
		version, err := RunMigrations(path)
		if err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		if version != 1 {
			t.Fatalf("run %d: version = %d, want 1", i+1, version)
		}
	}
}
