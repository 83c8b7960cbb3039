package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcpwatch/gateway/internal/adapter/outbound/memory"
	"github.com/mcpwatch/gateway/internal/domain/capture"
	"github.com/mcpwatch/gateway/internal/domain/session"
	"github.com/mcpwatch/gateway/internal/domain/upstream"
)

type fakeCaptureSink struct {
	records []capture.Record
}

func (f *fakeCaptureSink) Write(_ context.Context, rec capture.Record) {
	f.records = append(f.records, rec)
}

func (f *fakeCaptureSink) BackfillServerInfo(context.Context, string, string, []byte, string, string) {}

func proxyTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestProxyHandler(t *testing.T, upstreamURL string) (*ProxyHandler, *fakeCaptureSink) {
	t.Helper()
	store := memory.NewUpstreamStore()
	if err := store.Add(context.Background(), &upstream.McpServer{Name: "foo", URL: upstreamURL}); err != nil {
		t.Fatalf("failed to seed upstream: %v", err)
	}
	sessions := session.New(time.Minute, time.Minute)
	t.Cleanup(sessions.Close)
	sink := &fakeCaptureSink{}
	metrics := NewMetrics(prometheus.NewRegistry())
	h := NewProxyHandler(store, sessions, sink, metrics, proxyTestLogger())
	return h, sink
}

func TestSetTimeout_IgnoresNonPositive(t *testing.T) {
	h, _ := newTestProxyHandler(t, "http://example.invalid")
	h.SetTimeout(0)
	if h.timeout != proxyTimeout {
		t.Errorf("expected timeout unchanged at default, got %v", h.timeout)
	}
	h.SetTimeout(5 * time.Second)
	if h.timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", h.timeout)
	}
}

func TestServeHTTP_UnknownRoute_Returns404(t *testing.T) {
	h, _ := newTestProxyHandler(t, "http://example.invalid")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandlePost_ForwardsAndCaptures(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	defer up.Close()

	h, sink := newTestProxyHandler(t, up.URL)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/servers/foo/mcp", strings.NewReader(body))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(sink.records) != 2 {
		t.Fatalf("expected request+response captured, got %d records", len(sink.records))
	}
}

func TestHandlePost_InvalidJSON_Returns400(t *testing.T) {
	h, _ := newTestProxyHandler(t, "http://example.invalid")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/servers/foo/mcp", strings.NewReader("not json"))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON-RPC body, got %d", rec.Code)
	}
}

func TestHandlePost_UpstreamUnreachable_Returns502WithSyntheticError(t *testing.T) {
	h, sink := newTestProxyHandler(t, "http://127.0.0.1:1")
	h.SetTimeout(200 * time.Millisecond)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/servers/foo/mcp", strings.NewReader(body))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
	if len(sink.records) != 2 {
		t.Fatalf("expected request + synthetic error captured, got %d", len(sink.records))
	}
	var env struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode synthetic error body: %v", err)
	}
	if env.Error.Code != -32603 {
		t.Errorf("expected synthetic -32603 error code, got %d", env.Error.Code)
	}
}

func TestHandleMCP_UnknownServer_Returns404(t *testing.T) {
	h, _ := newTestProxyHandler(t, "http://example.invalid")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/servers/missing/mcp", strings.NewReader(`{}`))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unregistered server, got %d", rec.Code)
	}
}

func TestHandleMCP_UnsupportedMethod_Returns405(t *testing.T) {
	h, _ := newTestProxyHandler(t, "http://example.invalid")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/servers/foo/mcp", nil)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHandleGet_ForwardsNonStreamResponse(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	}))
	defer up.Close()

	h, _ := newTestProxyHandler(t, up.URL)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/servers/foo/mcp", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("expected forwarded 200/ok, got %d/%q", rec.Code, rec.Body.String())
	}
}

func TestHandleDelete_ForwardsVerbatim(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE forwarded, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer up.Close()

	h, _ := newTestProxyHandler(t, up.URL)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/servers/foo/mcp", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandlePost_Unauthorized_SetsGatewayCookie(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer up.Close()

	h, sink := newTestProxyHandler(t, up.URL)
	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/servers/foo/mcp", strings.NewReader(body))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 forwarded, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), "mcp-gateway-server=foo") {
		t.Errorf("expected gateway cookie on 401, got %q", rec.Header().Get("Set-Cookie"))
	}
	if len(sink.records) != 2 {
		t.Fatalf("expected request + synthetic error captured for the 401, got %d", len(sink.records))
	}
}

func TestHandlePost_SSEResponse_RelaysAndCapturesFrame(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "data: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n\n")
	}))
	defer up.Close()

	h, sink := newTestProxyHandler(t, up.URL)
	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/servers/foo/mcp", strings.NewReader(body))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("expected text/event-stream relayed to client, got %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), `"result":{}`) {
		t.Errorf("expected the SSE frame relayed verbatim to the client, got %q", rec.Body.String())
	}

	var gotResponse bool
	for _, rec := range sink.records {
		if rec.Response != nil {
			gotResponse = true
		}
	}
	if !gotResponse {
		t.Errorf("expected the SSE response frame to be captured, got records %+v", sink.records)
	}
}

func TestHandleWellKnown_PassesThrough(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/oauth-protected-resource" {
			t.Errorf("expected well-known doc path forwarded, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"resource":"foo"}`)
	}))
	defer up.Close()

	h, _ := newTestProxyHandler(t, up.URL)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/servers/foo/mcp/.well-known/oauth-protected-resource", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"resource":"foo"`) {
		t.Errorf("expected discovery document relayed verbatim, got %q", rec.Body.String())
	}
}

func TestHandleRegister_Unauthorized_SetsGatewayCookie(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/register" {
			t.Errorf("expected /register forwarded, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer up.Close()

	h, _ := newTestProxyHandler(t, up.URL)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/servers/foo/mcp/register", strings.NewReader(`{}`))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 forwarded, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), "mcp-gateway-server=foo") {
		t.Errorf("expected gateway cookie on 401, got %q", rec.Header().Get("Set-Cookie"))
	}
}

func TestHandlePost_StatelessInitialize_TransitionsToRealSession(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Mcp-Session-Id", "sess-123")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"serverInfo":{"name":"upstream-foo","version":"9.9"}}}`)
	}))
	defer up.Close()

	h, _ := newTestProxyHandler(t, up.URL)
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"clientInfo":{"name":"vscode","version":"1.0"}}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/servers/foo/mcp", strings.NewReader(body))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Mcp-Session-Id") != "sess-123" {
		t.Fatalf("expected upstream session id relayed, got %q", rec.Header().Get("Mcp-Session-Id"))
	}

	si, ok := h.sessions.ServerInfo("sess-123")
	if !ok {
		t.Fatal("expected the stateless serverInfo transitioned onto the new session id")
	}
	if si.Version != "9.9" {
		t.Errorf("expected transitioned serverInfo version 9.9, got %q", si.Version)
	}
	ci, ok := h.sessions.ClientInfo("sess-123")
	if !ok {
		t.Fatal("expected the stateless clientInfo transitioned onto the new session id")
	}
	if ci.Name != "vscode" {
		t.Errorf("expected transitioned clientInfo name vscode, got %q", ci.Name)
	}
}
