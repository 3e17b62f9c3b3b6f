package memory

import (
	"bufio"
	"context"
	"os"
	"sort"
	"strings"
	"sync"

	"finbot/internal/core"
	ports "finbot/internal/sheets"
)

// Table keeps rows in process memory. It is safe for concurrent use.
type Table struct {
	mu    sync.Mutex
	width int
	rows  [][]string
}

var (
	_ ports.Table        = (*Table)(nil)
	_ ports.RowsAppender = (*Table)(nil)
	_ ports.Opener       = (*Store)(nil)
	_ ports.Initializer  = (*Store)(nil)
)

// NewTable returns an empty table whose rows are padded or cut to width.
func NewTable(width int, rows ...[]string) *Table {
	t := &Table{width: width}
	for _, r := range rows {
		t.rows = append(t.rows, t.fit(r))
	}
	return t
}

func (t *Table) fit(values []string) []string {
	out := make([]string, t.width)
	copy(out, values)
	return out
}

func (t *Table) ReadAllRows(_ context.Context) ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (t *Table) AppendRow(ctx context.Context, values []string) error {
	return t.AppendRows(ctx, [][]string{values})
}

func (t *Table) AppendRows(_ context.Context, rows [][]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range rows {
		t.rows = append(t.rows, t.fit(r))
	}
	return nil
}

func (t *Table) UpdateRange(_ context.Context, rowIndex int, values []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rowIndex < 0 || rowIndex >= len(t.rows) {
		return ports.ErrRowOutOfRange
	}
	t.rows[rowIndex] = t.fit(values)
	return nil
}

func (t *Table) DeleteRow(_ context.Context, rowIndex int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rowIndex < 0 || rowIndex >= len(t.rows) {
		return ports.ErrRowOutOfRange
	}
	t.rows = append(t.rows[:rowIndex], t.rows[rowIndex+1:]...)
	return nil
}

// SortByColumn orders rows by the column, comparing dates and amounts by
// value when both cells parse and falling back to text otherwise. The sort
// is stable, like the Sheets SortRange request.
func (t *Table) SortByColumn(_ context.Context, col int, order ports.SortOrder) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if col < 0 || col >= t.width {
		return ports.ErrRowOutOfRange
	}
	sort.SliceStable(t.rows, func(i, j int) bool {
		c := compareCells(t.rows[i][col], t.rows[j][col])
		if order == ports.Descending {
			return c > 0
		}
		return c < 0
	})
	return nil
}

func compareCells(a, b string) int {
	if da, err := core.ParseDate(a); err == nil {
		if db, err := core.ParseDate(b); err == nil {
			return da.Compare(db.Time)
		}
	}
	if xa, err := core.ParseAmount(a); err == nil {
		if xb, err := core.ParseAmount(b); err == nil {
			return xa.Cmp(xb)
		}
	}
	return strings.Compare(a, b)
}

// Store hands out one Workbook per spreadsheet id, created on first use.
type Store struct {
	mu     sync.Mutex
	books  map[string]ports.Workbook
	seeded [][]string
}

func New() *Store {
	return &Store{books: map[string]ports.Workbook{}}
}

// NewFromFile seeds every new Finance table with the rows listed in path,
// one row per line with cells separated by ";". Missing files are ignored.
func NewFromFile(path string) *Store {
	s := New()
	for _, line := range readLines(path) {
		cells := strings.Split(line, ";")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		s.seeded = append(s.seeded, cells)
	}
	return s
}

func (s *Store) Open(_ context.Context, spreadsheetID string) (ports.Workbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wb, ok := s.books[spreadsheetID]; ok {
		return wb, nil
	}
	wb := ports.Workbook{
		Finance: NewTable(ports.FinanceWidth, s.seeded...),
		Plans:   NewTable(ports.PlansWidth),
	}
	s.books[spreadsheetID] = wb
	return wb, nil
}

// EnsureSheets creates the workbook if needed; headers are implicit.
func (s *Store) EnsureSheets(ctx context.Context, spreadsheetID string) error {
	_, err := s.Open(ctx, spreadsheetID)
	return err
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
