package query

import (
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mcpwatch/gateway/internal/domain/query"
	"github.com/mcpwatch/gateway/internal/domain/session"
)

type fakeReader struct {
	result      query.QueryResult
	queryErr    error
	servers     []query.ServerAggregate
	sessions    []query.SessionAggregate
	clients     []query.ClientAggregate
	methods     []string
	clearCalled bool
	lastOpts    query.LogQueryOptions
}

func (f *fakeReader) Query(_ context.Context, opts query.LogQueryOptions) (query.QueryResult, error) {
	f.lastOpts = opts
	return f.result, f.queryErr
}
func (f *fakeReader) GetServers(context.Context) ([]query.ServerAggregate, error)  { return f.servers, nil }
func (f *fakeReader) GetSessions(context.Context, string) ([]query.SessionAggregate, error) {
	return f.sessions, nil
}
func (f *fakeReader) GetClients(context.Context) ([]query.ClientAggregate, error) { return f.clients, nil }
func (f *fakeReader) GetMethods(context.Context, string) ([]string, error)        { return f.methods, nil }
func (f *fakeReader) ClearAll(context.Context) error {
	f.clearCalled = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHandleLogs_ExpandsRequestAndResponseRows(t *testing.T) {
	reqJSON := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	respJSON := `{"jsonrpc":"2.0","id":1,"result":{}}`
	reader := &fakeReader{result: query.QueryResult{
		Rows: []query.LogRow{
			{ID: 1, Method: "tools/list", RequestJSON: &reqJSON},
			{ID: 2, Method: "tools/list", ResponseJSON: &respJSON},
		},
	}}
	h := NewHandler(reader, session.New(time.Minute, time.Minute), testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	h.handleLogs(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"direction":"request"`) {
		t.Errorf("expected request row in response body: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"direction":"response"`) {
		t.Errorf("expected response row in response body: %s", rec.Body.String())
	}
}

func TestHandleLogs_InvalidLimit_Returns400(t *testing.T) {
	reader := &fakeReader{}
	h := NewHandler(reader, session.New(time.Minute, time.Minute), testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/logs?limit=abc", nil)
	h.handleLogs(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid limit, got %d", rec.Code)
	}
}

func TestHandleClear_ClearsReaderAndSessions(t *testing.T) {
	reader := &fakeReader{}
	sessions := session.New(time.Minute, time.Minute)
	defer sessions.Close()
	sessions.SetClientInfo("sess-1", session.ClientInfo{Name: "vscode"})

	h := NewHandler(reader, sessions, testLogger())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/logs/clear", nil)
	h.handleClear(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if !reader.clearCalled {
		t.Error("expected reader.ClearAll to be called")
	}
	if _, ok := sessions.ClientInfo("sess-1"); ok {
		t.Error("expected session store cleared")
	}
}

func TestHandleLogsExport_WritesCSV(t *testing.T) {
	reqJSON := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	reader := &fakeReader{result: query.QueryResult{
		Rows: []query.LogRow{
			{ID: 1, Method: "tools/list", ServerName: "foo", SessionID: "sess-1", RequestJSON: &reqJSON},
		},
	}}
	h := NewHandler(reader, session.New(time.Minute, time.Minute), testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/logs/export.csv", nil)
	h.handleLogsExport(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv content type, got %q", ct)
	}

	cr := csv.NewReader(strings.NewReader(rec.Body.String()))
	rows, err := cr.ReadAll()
	if err != nil {
		t.Fatalf("failed to parse CSV output: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 data row, got %d rows", len(rows))
	}
	if rows[0][0] != "id" {
		t.Errorf("expected header row, got %v", rows[0])
	}
	if rows[1][4] != "foo" {
		t.Errorf("expected server_name column 'foo', got %v", rows[1])
	}
}

func TestParseLogQueryOptions_StringFilterWithOperatorPrefix(t *testing.T) {
	q := url.Values{"method": {"contains:tools"}}
	opts, err := parseLogQueryOptions(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Method == nil || opts.Method.Op != query.OpContains || opts.Method.Values[0] != "tools" {
		t.Errorf("unexpected method filter: %+v", opts.Method)
	}
}

func TestParseLogQueryOptions_NumericFilter(t *testing.T) {
	q := url.Values{"durationGt": {"100"}, "durationLte": {"500"}}
	opts, err := parseLogQueryOptions(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DurationMs == nil || *opts.DurationMs.Gt != 100 || *opts.DurationMs.Lte != 500 {
		t.Errorf("unexpected duration filter: %+v", opts.DurationMs)
	}
}

func TestParseLogQueryOptions_DefaultOrderAndLimit(t *testing.T) {
	opts, err := parseLogQueryOptions(url.Values{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Order != "desc" {
		t.Errorf("expected default order desc, got %q", opts.Order)
	}
	if opts.Limit != query.DefaultLimit {
		t.Errorf("expected default limit %d, got %d", query.DefaultLimit, opts.Limit)
	}
}

func TestParseLogQueryOptions_InvalidOrder_ReturnsError(t *testing.T) {
	_, err := parseLogQueryOptions(url.Values{"order": {"sideways"}})
	if err == nil {
		t.Error("expected error for invalid order value")
	}
}

func TestParseLogQueryOptions_InvalidAfter_ReturnsError(t *testing.T) {
	_, err := parseLogQueryOptions(url.Values{"after": {"not-a-date"}})
	if err == nil {
		t.Error("expected error for invalid after timestamp")
	}
}
