package services

import (
	"context"
	"errors"
	"testing"

	"finbot/internal/bot"
	"finbot/internal/core"
	"finbot/internal/ledger"
	"finbot/internal/log"
	"finbot/internal/sheets/memory"
	"finbot/internal/storage"

	"github.com/shopspring/decimal"
)

type fakeRegistry struct {
	bound map[int64]string
	err   error
}

func (f *fakeRegistry) SpreadsheetFor(_ context.Context, chatID int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	id, ok := f.bound[chatID]
	if !ok {
		return "", storage.ErrUserNotFound
	}
	return id, nil
}

func (f *fakeRegistry) BindSpreadsheet(_ context.Context, chatID int64, id string) error {
	if f.bound == nil {
		f.bound = map[int64]string{}
	}
	f.bound[chatID] = id
	return nil
}

type failingBackend struct{ *memory.Store }

func (failingBackend) EnsureSheets(context.Context, string) error { return errors.New("forbidden") }

func TestSpreadsheetFor(t *testing.T) {
	tests := []struct {
		name      string
		registry  Registry
		defaultID string
		want      string
		wantErr   error
	}{
		{name: "bound chat", registry: &fakeRegistry{bound: map[int64]string{1: "sheet-1"}}, defaultID: "def", want: "sheet-1"},
		{name: "unbound chat uses default", registry: &fakeRegistry{}, defaultID: "def", want: "def"},
		{name: "no registry uses default", defaultID: "def", want: "def"},
		{name: "nothing configured", registry: &fakeRegistry{}, wantErr: bot.ErrNoSpreadsheet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewLedgerService(tt.registry, memory.New(), tt.defaultID, ledger.Options{Logger: log.Discard()})
			got, err := s.SpreadsheetFor(context.Background(), 1)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("spreadsheet = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSpreadsheetForRegistryFailure(t *testing.T) {
	s := NewLedgerService(&fakeRegistry{err: errors.New("disk I/O error")}, memory.New(), "def", ledger.Options{Logger: log.Discard()})
	if _, err := s.SpreadsheetFor(context.Background(), 1); err == nil || errors.Is(err, bot.ErrNoSpreadsheet) {
		t.Fatalf("registry failures must surface, got %v", err)
	}
}

func TestLedgersAreIsolatedPerSpreadsheet(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistry{bound: map[int64]string{1: "a", 2: "b"}}
	s := NewLedgerService(reg, memory.New(), "", ledger.Options{Logger: log.Discard()})

	l1, err := s.LedgerFor(ctx, 1)
	if err != nil {
		t.Fatalf("LedgerFor: %v", err)
	}
	row := core.Row{
		Counterparty:   "Alpha",
		Kind:           core.KindDeposit,
		Date:           core.NewDate(2025, 3, 15),
		Amount:         decimal.NewFromInt(10),
		Classification: "Salary",
	}
	if err := l1.Append(ctx, row); err != nil {
		t.Fatalf("Append: %v", err)
	}

	l2, err := s.LedgerFor(ctx, 2)
	if err != nil {
		t.Fatalf("LedgerFor: %v", err)
	}
	rows, err := l2.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("chat 2 sees %d rows of chat 1", len(rows))
	}
}

func TestBind(t *testing.T) {
	ctx := context.Background()

	t.Run("records binding", func(t *testing.T) {
		reg := &fakeRegistry{}
		s := NewLedgerService(reg, memory.New(), "", ledger.Options{Logger: log.Discard()})
		if err := s.Bind(ctx, 3, "sheet-3"); err != nil {
			t.Fatalf("Bind: %v", err)
		}
		if got, _ := s.SpreadsheetFor(ctx, 3); got != "sheet-3" {
			t.Fatalf("spreadsheet = %q", got)
		}
	})

	t.Run("unusable spreadsheet is not bound", func(t *testing.T) {
		reg := &fakeRegistry{}
		s := NewLedgerService(reg, failingBackend{memory.New()}, "", ledger.Options{Logger: log.Discard()})
		if err := s.Bind(ctx, 3, "sheet-3"); err == nil {
			t.Fatalf("expected error")
		}
		if _, ok := reg.bound[3]; ok {
			t.Fatalf("chat bound despite failure")
		}
	})

	t.Run("no registry", func(t *testing.T) {
		s := NewLedgerService(nil, memory.New(), "def", ledger.Options{Logger: log.Discard()})
		if err := s.Bind(ctx, 3, "sheet-3"); !errors.Is(err, ErrNoRegistry) {
			t.Fatalf("err = %v, want ErrNoRegistry", err)
		}
	})
}
