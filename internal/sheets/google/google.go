package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"finbot/internal/retry"
	ports "finbot/internal/sheets"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	defaultFinanceSheet = "Finance"
	defaultPlansSheet   = "Plans"
)

// Client opens user spreadsheets through one Sheets service.
type Client struct {
	svc          *gsheet.Service
	financeSheet string
	plansSheet   string

	mu       sync.Mutex
	sheetIDs map[string]int64 // "<spreadsheet>/<sheet title>" -> sheetId
}

// Ensure interface conformance
var (
	_ ports.Opener       = (*Client)(nil)
	_ ports.Initializer  = (*Client)(nil)
	_ ports.Table        = (*table)(nil)
	_ ports.RowsAppender = (*table)(nil)
)

// NewFromEnv creates a Sheets client using service account credentials.
// Optional sheet names: GOOGLE_FINANCE_SHEET (default "Finance") and
// GOOGLE_PLANS_SHEET (default "Plans").
func NewFromEnv(ctx context.Context) (*Client, error) {
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, os.Getenv("GOOGLE_FINANCE_SHEET"), os.Getenv("GOOGLE_PLANS_SHEET")), nil
}

// New wraps an existing service. Blank sheet names fall back to the defaults.
func New(svc *gsheet.Service, financeSheet, plansSheet string) *Client {
	financeSheet = strings.TrimSpace(financeSheet)
	if financeSheet == "" {
		financeSheet = defaultFinanceSheet
	}
	plansSheet = strings.TrimSpace(plansSheet)
	if plansSheet == "" {
		plansSheet = defaultPlansSheet
	}
	return &Client{
		svc:          svc,
		financeSheet: financeSheet,
		plansSheet:   plansSheet,
		sheetIDs:     map[string]int64{},
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API
// with connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// Open returns the Finance and Plans tables of a spreadsheet. No request is
// made until a table method is called.
func (c *Client) Open(_ context.Context, spreadsheetID string) (ports.Workbook, error) {
	if c.svc == nil {
		return ports.Workbook{}, errors.New("sheets service not initialized")
	}
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return ports.Workbook{}, errors.New("missing spreadsheet id")
	}
	return ports.Workbook{
		Finance: &table{c: c, spreadsheetID: spreadsheetID, sheet: c.financeSheet, width: ports.FinanceWidth},
		Plans:   &table{c: c, spreadsheetID: spreadsheetID, sheet: c.plansSheet, width: ports.PlansWidth},
	}, nil
}

// EnsureSheets adds the Finance and Plans sheets when missing and writes
// their header row when the first row is blank. Existing data is kept.
func (c *Client) EnsureSheets(ctx context.Context, spreadsheetID string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	ids, err := c.loadSheetIDs(ctx, spreadsheetID)
	if err != nil {
		return err
	}

	var reqs []*gsheet.Request
	for _, name := range []string{c.financeSheet, c.plansSheet} {
		if _, ok := ids[name]; ok {
			continue
		}
		reqs = append(reqs, &gsheet.Request{AddSheet: &gsheet.AddSheetRequest{
			Properties: &gsheet.SheetProperties{Title: name},
		}})
	}
	if len(reqs) > 0 {
		_, err := c.svc.Spreadsheets.BatchUpdate(spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
			Context(ctx).Do()
		if err != nil {
			return classify(fmt.Errorf("add sheets: %w", err))
		}
		if _, err := c.loadSheetIDs(ctx, spreadsheetID); err != nil {
			return err
		}
	}

	headers := map[string][]string{c.financeSheet: ports.FinanceHeader, c.plansSheet: ports.PlansHeader}
	for name, header := range headers {
		rng := fmt.Sprintf("%s!A1:%s1", name, columnLetter(len(header)))
		resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return classify(fmt.Errorf("read header %s: %w", rng, err))
		}
		if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
			continue
		}
		vr := &gsheet.ValueRange{Values: [][]any{toAny(header)}}
		_, err = c.svc.Spreadsheets.Values.Update(spreadsheetID, rng, vr).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return classify(fmt.Errorf("write header %s: %w", rng, err))
		}
	}
	return nil
}

func (c *Client) loadSheetIDs(ctx context.Context, spreadsheetID string) (map[string]int64, error) {
	resp, err := c.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, classify(fmt.Errorf("read spreadsheet %s: %w", spreadsheetID, err))
	}
	out := make(map[string]int64, len(resp.Sheets))
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range resp.Sheets {
		if s.Properties == nil {
			continue
		}
		out[s.Properties.Title] = s.Properties.SheetId
		c.sheetIDs[spreadsheetID+"/"+s.Properties.Title] = s.Properties.SheetId
	}
	return out, nil
}

func (c *Client) sheetID(ctx context.Context, spreadsheetID, sheet string) (int64, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[spreadsheetID+"/"+sheet]
	c.mu.Unlock()
	if ok {
		return id, nil
	}
	ids, err := c.loadSheetIDs(ctx, spreadsheetID)
	if err != nil {
		return 0, err
	}
	id, ok = ids[sheet]
	if !ok {
		return 0, retry.Permanent(fmt.Errorf("sheet %q not found in spreadsheet %s", sheet, spreadsheetID))
	}
	return id, nil
}

// table addresses one sheet; data rows start on sheet row 2.
type table struct {
	c             *Client
	spreadsheetID string
	sheet         string
	width         int
}

func (t *table) lastCol() string { return columnLetter(t.width) }

func (t *table) ReadAllRows(ctx context.Context) ([][]string, error) {
	rng := fmt.Sprintf("%s!A2:%s", t.sheet, t.lastCol())
	resp, err := t.c.svc.Spreadsheets.Values.Get(t.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, classify(fmt.Errorf("read %s: %w", rng, err))
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		out[i] = toStrings(row)
	}
	return out, nil
}

func (t *table) AppendRow(ctx context.Context, values []string) error {
	return t.AppendRows(ctx, [][]string{values})
}

func (t *table) AppendRows(ctx context.Context, rows [][]string) error {
	vr := &gsheet.ValueRange{Values: make([][]any, 0, len(rows))}
	for _, r := range rows {
		vr.Values = append(vr.Values, toAny(r))
	}
	rng := fmt.Sprintf("%s!A1", t.sheet)
	_, err := t.c.svc.Spreadsheets.Values.Append(t.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return classify(fmt.Errorf("append to %s: %w", t.sheet, err))
	}
	return nil
}

func (t *table) UpdateRange(ctx context.Context, rowIndex int, values []string) error {
	if rowIndex < 0 {
		return retry.Permanent(ports.ErrRowOutOfRange)
	}
	sheetRow := rowIndex + 2
	rng := fmt.Sprintf("%s!A%d:%s%d", t.sheet, sheetRow, t.lastCol(), sheetRow)
	vr := &gsheet.ValueRange{Values: [][]any{toAny(values)}}
	_, err := t.c.svc.Spreadsheets.Values.Update(t.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return classify(fmt.Errorf("update %s: %w", rng, err))
	}
	return nil
}

func (t *table) DeleteRow(ctx context.Context, rowIndex int) error {
	if rowIndex < 0 {
		return retry.Permanent(ports.ErrRowOutOfRange)
	}
	id, err := t.c.sheetID(ctx, t.spreadsheetID, t.sheet)
	if err != nil {
		return err
	}
	req := &gsheet.Request{DeleteDimension: &gsheet.DeleteDimensionRequest{
		Range: &gsheet.DimensionRange{
			SheetId:         id,
			Dimension:       "ROWS",
			StartIndex:      int64(rowIndex + 1),
			EndIndex:        int64(rowIndex + 2),
			ForceSendFields: []string{"SheetId"},
		},
	}}
	return t.batch(ctx, "delete row", req)
}

func (t *table) SortByColumn(ctx context.Context, col int, order ports.SortOrder) error {
	if col < 0 || col >= t.width {
		return retry.Permanent(fmt.Errorf("sort column %d outside sheet %s", col, t.sheet))
	}
	id, err := t.c.sheetID(ctx, t.spreadsheetID, t.sheet)
	if err != nil {
		return err
	}
	dir := "ASCENDING"
	if order == ports.Descending {
		dir = "DESCENDING"
	}
	req := &gsheet.Request{SortRange: &gsheet.SortRangeRequest{
		Range: &gsheet.GridRange{
			SheetId:          id,
			StartRowIndex:    1,
			StartColumnIndex: 0,
			EndColumnIndex:   int64(t.width),
			ForceSendFields:  []string{"SheetId", "StartColumnIndex"},
		},
		SortSpecs: []*gsheet.SortSpec{{
			DimensionIndex:  int64(col),
			SortOrder:       dir,
			ForceSendFields: []string{"DimensionIndex"},
		}},
	}}
	return t.batch(ctx, "sort", req)
}

func (t *table) batch(ctx context.Context, what string, reqs ...*gsheet.Request) error {
	_, err := t.c.svc.Spreadsheets.BatchUpdate(t.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do()
	if err != nil {
		return classify(fmt.Errorf("%s on %s: %w", what, t.sheet, err))
	}
	return nil
}

// classify maps API failures onto the retry policy: 429 is a rate limit,
// other 4xx responses are permanent, everything else may be retried.
func classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch {
	case gerr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", retry.ErrRateLimit, err)
	case gerr.Code >= 400 && gerr.Code < 500 && gerr.Code != http.StatusRequestTimeout:
		return retry.Permanent(err)
	default:
		return err
	}
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// columnLetter returns the A1 column name of a 1-based column number.
func columnLetter(n int) string {
	var s string
	for n > 0 {
		n--
		s = string(rune('A'+n%26)) + s
		n /= 26
	}
	return s
}
