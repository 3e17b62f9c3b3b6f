//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"finbot/internal/core"
	ports "finbot/internal/sheets"

	"github.com/shopspring/decimal"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_FinanceRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	client, err := NewFromEnv(ctx)
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	if err := client.EnsureSheets(ctx, spreadsheetID); err != nil {
		t.Fatalf("EnsureSheets: %v", err)
	}
	wb, err := client.Open(ctx, spreadsheetID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	row := core.Row{
		Counterparty:   "Integration",
		Kind:           core.KindDeposit,
		Date:           core.DateOf(time.Now()),
		Amount:         decimal.RequireFromString("1.23"),
		Classification: "Test",
		Note:           time.Now().Format(time.RFC3339Nano),
	}
	if err := wb.Finance.AppendRow(ctx, row.Values()); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if err := wb.Finance.SortByColumn(ctx, ports.ColDate, ports.Descending); err != nil {
		t.Fatalf("SortByColumn: %v", err)
	}

	rows, err := wb.Finance.ReadAllRows(ctx)
	if err != nil {
		t.Fatalf("ReadAllRows: %v", err)
	}
	for i, v := range rows {
		got, err := core.RowFromValues(v)
		if err != nil || got.Note != row.Note {
			continue
		}
		if err := wb.Finance.DeleteRow(ctx, i); err != nil {
			t.Fatalf("DeleteRow: %v", err)
		}
		return
	}
	t.Fatalf("appended row not found after sort")
}
