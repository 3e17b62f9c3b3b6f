package sheets

import (
	"context"
	"errors"
)

// SortOrder selects the direction of SortByColumn.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

// Column positions shared by the Finance and Plans sheets. Plans inserts a
// Remainder column at index 6, shifting Classification and Note right.
const (
	ColYear = iota
	ColMonth
	ColCounterparty
	ColKind
	ColDate
	ColAmount
	ColClassification
	ColNote
)

const (
	FinanceWidth = 8
	PlansWidth   = 9
)

var (
	FinanceHeader = []string{"Year", "Month", "Bank", "Operation", "Date", "Amount", "Classification", "Note"}
	PlansHeader   = []string{"Year", "Month", "Bank", "Operation", "Date", "Amount", "Remainder", "Classification", "Note"}
)

// ErrRowOutOfRange is returned when a row index does not address a data row.
var ErrRowOutOfRange = errors.New("row index out of range")

// Ports for outbound adapters.
type (
	// Table is a row-oriented sheet without its header row. Row indices are
	// zero-based positions among the data rows as returned by ReadAllRows;
	// any write may shift them.
	Table interface {
		ReadAllRows(ctx context.Context) ([][]string, error)
		AppendRow(ctx context.Context, values []string) error
		UpdateRange(ctx context.Context, rowIndex int, values []string) error
		DeleteRow(ctx context.Context, rowIndex int) error
		SortByColumn(ctx context.Context, col int, order SortOrder) error
	}

	// RowsAppender is implemented by tables that append several rows in a
	// single call, so either all of them land or none does.
	RowsAppender interface {
		AppendRows(ctx context.Context, rows [][]string) error
	}

	// Workbook groups the two sheets of one user spreadsheet.
	Workbook struct {
		Finance Table
		Plans   Table
	}

	// Opener resolves a spreadsheet id into its tables.
	Opener interface {
		Open(ctx context.Context, spreadsheetID string) (Workbook, error)
	}

	// Initializer creates the Finance and Plans sheets with their headers
	// when they are missing.
	Initializer interface {
		EnsureSheets(ctx context.Context, spreadsheetID string) error
	}
)
