package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"finbot/internal/retry"
	ports "finbot/internal/sheets"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type call struct {
	method string
	path   string
	body   string
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, call{method: r.Method, path: r.URL.Path, body: string(body)})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.Contains(r.URL.Path, "/limited"):
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"quota exceeded"}}`)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/values/"):
		fmt.Fprint(w, `{"range":"Finance!A2:H","values":[["2025","March","Alpha","Withdrawal","10.03.2025","-1500.00","Groceries","-"],[],["2025","March","Beta"]]}`)
	case r.Method == http.MethodGet:
		fmt.Fprint(w, `{"sheets":[{"properties":{"title":"Finance","sheetId":0}},{"properties":{"title":"Plans","sheetId":7}}]}`)
	default:
		fmt.Fprint(w, `{}`)
	}
}

func (f *fakeAPI) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newFakeClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return New(svc, "", ""), api
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	for _, k := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		if had {
			t.Cleanup(func() { os.Setenv(k, old) })
		}
	}
	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestOpenRequiresSpreadsheetID(t *testing.T) {
	c, _ := newFakeClient(t)
	if _, err := c.Open(context.Background(), " "); err == nil {
		t.Fatal("expected error for blank spreadsheet id")
	}
	if _, err := (&Client{}).Open(context.Background(), "id"); err == nil {
		t.Fatal("expected error for missing service")
	}
}

func TestTableReadAndWrite(t *testing.T) {
	c, api := newFakeClient(t)
	ctx := context.Background()
	wb, err := c.Open(ctx, "sid")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	rows, err := wb.Finance.ReadAllRows(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 3 || rows[0][2] != "Alpha" || len(rows[1]) != 0 {
		t.Fatalf("unexpected rows %v", rows)
	}
	if got := api.last().path; !strings.Contains(got, "Finance!A2:H") {
		t.Fatalf("read range path = %s", got)
	}

	if err := wb.Finance.AppendRow(ctx, []string{"2025", "March", "Alpha"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if c := api.last(); c.method != http.MethodPost || !strings.HasSuffix(c.path, ":append") || !strings.Contains(c.body, `"Alpha"`) {
		t.Fatalf("unexpected append call %+v", c)
	}

	if err := wb.Plans.UpdateRange(ctx, 3, []string{"x"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if c := api.last(); c.method != http.MethodPut || !strings.Contains(c.path, "Plans!A5:I5") {
		t.Fatalf("unexpected update call %+v", c)
	}

	if err := wb.Finance.DeleteRow(ctx, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	del := api.last()
	if !strings.HasSuffix(del.path, ":batchUpdate") || !strings.Contains(del.body, `"sheetId":0`) ||
		!strings.Contains(del.body, `"startIndex":3`) || !strings.Contains(del.body, `"endIndex":4`) {
		t.Fatalf("unexpected delete call %+v", del)
	}

	if err := wb.Plans.SortByColumn(ctx, ports.ColDate, ports.Descending); err != nil {
		t.Fatalf("sort: %v", err)
	}
	srt := api.last()
	if !strings.Contains(srt.body, `"sheetId":7`) || !strings.Contains(srt.body, `"DESCENDING"`) ||
		!strings.Contains(srt.body, `"dimensionIndex":4`) || !strings.Contains(srt.body, `"endColumnIndex":9`) {
		t.Fatalf("unexpected sort call %+v", srt)
	}

	if err := wb.Finance.SortByColumn(ctx, 12, ports.Ascending); !retry.IsPermanent(err) {
		t.Fatalf("expected permanent error for bad column, got %v", err)
	}
}

func TestSheetIDIsCached(t *testing.T) {
	c, api := newFakeClient(t)
	ctx := context.Background()
	wb, _ := c.Open(ctx, "sid")
	_ = wb.Finance.DeleteRow(ctx, 0)
	_ = wb.Finance.DeleteRow(ctx, 0)
	gets := 0
	for _, cl := range api.calls {
		if cl.method == http.MethodGet {
			gets++
		}
	}
	if gets != 1 {
		t.Fatalf("expected one spreadsheet lookup, got %d", gets)
	}
}

func TestRateLimitIsClassified(t *testing.T) {
	c, _ := newFakeClient(t)
	wb, _ := c.Open(context.Background(), "limited")
	err := wb.Finance.AppendRow(context.Background(), []string{"a"})
	if !errors.Is(err, retry.ErrRateLimit) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	plain := errors.New("dial tcp: timeout")
	if got := classify(plain); got != plain {
		t.Fatalf("non-API errors must pass through")
	}
	if err := classify(&googleapi.Error{Code: 403}); !retry.IsPermanent(err) {
		t.Fatalf("403 should be permanent")
	}
	if err := classify(&googleapi.Error{Code: 503}); retry.IsPermanent(err) || errors.Is(err, retry.ErrRateLimit) {
		t.Fatalf("503 should be retryable, got %v", err)
	}
	if err := classify(&googleapi.Error{Code: 429}); !errors.Is(err, retry.ErrRateLimit) {
		t.Fatalf("429 should be a rate limit")
	}
}

func TestColumnLetter(t *testing.T) {
	cases := map[int]string{1: "A", 8: "H", 9: "I", 26: "Z", 27: "AA", 52: "AZ"}
	for n, want := range cases {
		if got := columnLetter(n); got != want {
			t.Errorf("columnLetter(%d) = %q, want %q", n, got, want)
		}
	}
}
