package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcpwatch/gateway/internal/domain/capture"
	"github.com/mcpwatch/gateway/internal/domain/proxy"
	"github.com/mcpwatch/gateway/internal/domain/session"
	"github.com/mcpwatch/gateway/internal/domain/sse"
	"github.com/mcpwatch/gateway/internal/domain/upstream"
	"github.com/mcpwatch/gateway/pkg/mcp"
)

// tracer emits one span around each upstream forward, so a trace backend can
// show the gateway's own overhead alongside the upstream's latency.
var tracer = otel.Tracer("github.com/mcpwatch/gateway/internal/adapter/inbound/http")

// proxyTimeout bounds a non-streaming upstream round trip, per §5's
// "server-wide default (e.g., 30s for non-SSE)". SSE reads are unbounded.
const proxyTimeout = 30 * time.Second

// maxRequestBody caps the JSON-RPC request body the gateway will buffer.
const maxRequestBody = 4 << 20 // 4 MiB

// ProxyHandler implements the proxy router (C5) and the OAuth pass-through
// (C6): it forwards MCP traffic to registered upstreams, capturing every
// exchange through C3 on the way.
type ProxyHandler struct {
	upstreams upstream.Store
	sessions  *session.Store
	sink      capture.Sink
	client    *http.Client
	metrics   *Metrics
	logger    *slog.Logger
	timeout   time.Duration
}

// NewProxyHandler wires C5/C6 against the registry, session store, and
// capture sink.
func NewProxyHandler(upstreams upstream.Store, sessions *session.Store, sink capture.Sink, metrics *Metrics, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		upstreams: upstreams,
		sessions:  sessions,
		sink:      sink,
		client:    &http.Client{},
		metrics:   metrics,
		logger:    logger,
		timeout:   proxyTimeout,
	}
}

// SetTimeout overrides the non-SSE upstream round-trip bound (§server.proxy_timeout).
// Values <= 0 are ignored.
func (h *ProxyHandler) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	h.timeout = d
}

// ServeHTTP dispatches on the route shapes in §4.5/§4.6.
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, ok := proxy.Match(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch route.Kind {
	case proxy.KindWellKnownNoServer:
		writeJSONError(w, http.StatusBadRequest, "server_not_specified")
	case proxy.KindWellKnown:
		h.handleWellKnown(w, r, route)
	case proxy.KindRegister:
		h.handleRegister(w, r, route)
	case proxy.KindMCP:
		h.handleMCP(w, r, route)
	default:
		http.NotFound(w, r)
	}
}

func (h *ProxyHandler) handleMCP(w http.ResponseWriter, r *http.Request, route proxy.Route) {
	ctx := r.Context()
	srv, err := h.upstreams.Get(ctx, route.Name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r, srv)
	case http.MethodGet:
		h.handleGet(w, r, srv)
	case http.MethodDelete:
		h.handleDelete(w, r, srv)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost implements §4.5's POST handler.
func (h *ProxyHandler) handlePost(w http.ResponseWriter, r *http.Request, srv *upstream.McpServer) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil || len(body) > maxRequestBody {
		writeJSONRPCParseError(w, nil)
		return
	}
	if _, derr := mcp.DecodeMessage(body); derr != nil {
		writeJSONRPCParseError(w, nil)
		return
	}

	method := requestMethod(body)
	reqID := mcp.RawID(body)
	sessionKey := sessionKeyFromRequest(r)

	if method == "initialize" {
		if ci := mcp.RawClientInfo(body); ci != nil {
			var info session.ClientInfo
			if json.Unmarshal(ci, &info) == nil {
				h.sessions.SetClientInfo(sessionKey, info)
			}
		}
	}

	md := h.buildMetadata(r, srv.Name, sessionKey)
	h.sink.Write(ctx, capture.BuildRequest(body, md))
	h.sessions.StartRequest(srv.Name, sessionKey, idToken(reqID))

	headers := proxy.BuildOutboundHeaders(r.Header, true, sessionKey, srv.Headers)

	fwdCtx, span := tracer.Start(ctx, "proxy.forward", trace.WithAttributes(
		attribute.String("upstream.name", srv.Name),
		attribute.String("mcp.method", method),
	))
	defer span.End()

	upCtx, cancel := context.WithCancel(fwdCtx)
	timer := time.AfterFunc(h.timeout, cancel)

	upReq, err := http.NewRequestWithContext(upCtx, http.MethodPost, srv.URL, bytes.NewReader(body))
	if err != nil {
		timer.Stop()
		cancel()
		span.RecordError(err)
		span.SetStatus(codes.Error, "build upstream request failed")
		h.writeTransportFailure(w, ctx, method, reqID, md, srv.Name, sessionKey, err)
		return
	}
	upReq.Header = headers

	resp, err := h.client.Do(upReq)
	if err != nil {
		timer.Stop()
		cancel()
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream request failed")
		h.writeTransportFailure(w, ctx, method, reqID, md, srv.Name, sessionKey, err)
		return
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	span.SetStatus(codes.Ok, "")

	if isSSE(resp) {
		timer.Stop()
		defer cancel()
		h.relaySSE(w, resp, method, reqID, md, srv, sessionKey)
		return
	}
	timer.Stop()
	cancel()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		h.writeTransportFailure(w, ctx, method, reqID, md, srv.Name, sessionKey, err)
		return
	}

	h.finishNonStream(ctx, resp, respBody, method, sessionKey, srv)
	writeUpstreamResponse(w, resp, respBody, srv.Name)
}

// handleGet implements §4.5's GET handler: identical to POST minus the
// request body and Content-Type header.
func (h *ProxyHandler) handleGet(w http.ResponseWriter, r *http.Request, srv *upstream.McpServer) {
	ctx := r.Context()
	sessionKey := sessionKeyFromRequest(r)
	headers := proxy.BuildOutboundHeaders(r.Header, false, sessionKey, srv.Headers)

	fwdCtx, span := tracer.Start(ctx, "proxy.forward", trace.WithAttributes(
		attribute.String("upstream.name", srv.Name),
		attribute.String("mcp.method", "GET /mcp"),
	))
	defer span.End()

	upCtx, cancel := context.WithCancel(fwdCtx)
	timer := time.AfterFunc(h.timeout, cancel)

	upReq, err := http.NewRequestWithContext(upCtx, http.MethodGet, srv.URL, nil)
	if err != nil {
		timer.Stop()
		cancel()
		span.RecordError(err)
		span.SetStatus(codes.Error, "build upstream request failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	upReq.Header = headers

	resp, err := h.client.Do(upReq)
	if err != nil {
		timer.Stop()
		cancel()
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream request failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	span.SetStatus(codes.Ok, "")

	md := h.buildMetadata(r, srv.Name, sessionKey)

	if isSSE(resp) {
		timer.Stop()
		defer cancel()
		h.relaySSE(w, resp, "GET /mcp", nil, md, srv, sessionKey)
		return
	}
	timer.Stop()
	cancel()

	respBody, _ := io.ReadAll(resp.Body)
	writeUpstreamResponse(w, resp, respBody, srv.Name)
}

// handleDelete implements §4.5's DELETE handler: session termination,
// forwarded and returned unchanged.
func (h *ProxyHandler) handleDelete(w http.ResponseWriter, r *http.Request, srv *upstream.McpServer) {
	ctx := r.Context()
	sessionKey := sessionKeyFromRequest(r)
	headers := proxy.BuildOutboundHeaders(r.Header, false, sessionKey, srv.Headers)

	upCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	upReq, err := http.NewRequestWithContext(upCtx, http.MethodDelete, srv.URL, nil)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	upReq.Header = headers

	resp, err := h.client.Do(upReq)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	writeUpstreamResponse(w, resp, respBody, srv.Name)
}

// finishNonStream applies the non-SSE tail of §4.5 step 7/8: classify and
// persist the response, backfill server identity on an initialize
// handshake, and touch the registry on success.
func (h *ProxyHandler) finishNonStream(ctx context.Context, resp *http.Response, body []byte, method, sessionKey string, srv *upstream.McpServer) {
	reqID := mcp.RawID(body)
	durationMs, _ := h.sessions.FinishRequest(srv.Name, sessionKey, idToken(reqID))
	md := capture.Metadata{
		ServerName: srv.Name,
		SessionID:  sessionKey,
		DurationMs: durationMs.Milliseconds(),
		HTTPStatus: resp.StatusCode,
	}

	if resp.StatusCode == http.StatusUnauthorized {
		h.sink.Write(ctx, capture.BuildSyntheticError(resp.StatusCode, "upstream authentication required", body, method, reqID, md))
		return
	}

	if mcp.IsJSONRPCMessage(body) {
		h.sink.Write(ctx, capture.BuildResponse(body, method, md))
	} else {
		h.sink.Write(ctx, capture.BuildSyntheticError(resp.StatusCode, "non-JSON-RPC upstream response", body, method, reqID, md))
	}

	if method == "initialize" {
		if si := mcp.RawServerInfo(body); si != nil {
			var info session.ServerInfo
			if json.Unmarshal(si, &info) == nil {
				h.sessions.SetServerInfo(sessionKey, info)
				if newSession := resp.Header.Get(proxy.SessionIDHeader); newSession != "" {
					h.sessions.TransitionStateless(newSession)
				}
				h.sink.BackfillServerInfo(ctx, srv.Name, sessionKey, reqID, info.Version, info.Title)
			}
		}
	}

	if resp.StatusCode < 400 {
		_ = h.upstreams.Touch(ctx, srv.Name)
	}
}

// writeTransportFailure implements §4.5's failure model: a transport error
// becomes a synthetic JSON-RPC -32603 error returned to the client and
// captured.
func (h *ProxyHandler) writeTransportFailure(w http.ResponseWriter, ctx context.Context, method string, reqID json.RawMessage, md capture.Metadata, serverName, sessionKey string, upstreamErr error) {
	h.sessions.FinishRequest(serverName, sessionKey, idToken(reqID))
	rec := capture.BuildSyntheticError(-32603, upstreamErr.Error(), nil, method, reqID, md)
	h.sink.Write(ctx, rec)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write(rec.Response)
}

// relaySSE implements §4.5's SSE branch: tee the upstream body into an
// unmodified client passthrough and a background C4->C3 capture task.
func (h *ProxyHandler) relaySSE(w http.ResponseWriter, resp *http.Response, method string, reqID json.RawMessage, md capture.Metadata, srv *upstream.McpServer, sessionKey string) {
	for k, vv := range resp.Header {
		if isAutoManagedHeader(k) {
			continue
		}
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	pr, pw := io.Pipe()
	tee := io.TeeReader(resp.Body, pw)

	captureDone := make(chan struct{})
	go func() {
		defer close(captureDone)
		defer pr.Close()
		h.captureSSE(pr, method, reqID, md, srv, sessionKey)
	}()

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := tee.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			break
		}
	}
	_ = pw.Close()
	<-captureDone

	if resp.StatusCode < 400 {
		_ = h.upstreams.Touch(context.Background(), srv.Name)
	}
}

// captureSSE runs on the background task described in §4.5's SSE branch:
// it never propagates failures to the client path.
func (h *ProxyHandler) captureSSE(r io.Reader, method string, reqID json.RawMessage, md capture.Metadata, srv *upstream.McpServer, sessionKey string) {
	ctx := context.Background()
	parser := sse.NewParser(r)
	for {
		ev, err := parser.Next(ctx)
		if err != nil {
			return
		}
		if ev.Data == "" {
			continue
		}
		if h.metrics != nil {
			h.metrics.SseFramesCaptured.WithLabelValues(srv.Name).Inc()
		}

		data := []byte(ev.Data)
		if !mcp.IsJSONRPCMessage(data) {
			h.sink.Write(ctx, capture.BuildSseEvent(capture.SseFrame{ID: ev.ID, Event: ev.Event, Data: ev.Data, Retry: ev.Retry}, method, md))
			continue
		}

		if mcp.IsJSONRPCResponse(data) {
			eventID := mcp.RawID(data)
			durationMs, _ := h.sessions.FinishRequest(srv.Name, sessionKey, idToken(eventID))
			rmd := md
			rmd.DurationMs = durationMs.Milliseconds()
			h.sink.Write(ctx, capture.BuildResponse(data, method, rmd))

			if method == "initialize" {
				if si := mcp.RawServerInfo(data); si != nil {
					var info session.ServerInfo
					if json.Unmarshal(si, &info) == nil {
						h.sessions.SetServerInfo(sessionKey, info)
						h.sink.BackfillServerInfo(ctx, srv.Name, sessionKey, eventID, info.Version, info.Title)
					}
				}
			}
			continue
		}

		// A request/notification arriving over the downstream SSE channel
		// (server-initiated); captured as an opaque event under the
		// originating method label.
		h.sink.Write(ctx, capture.BuildSseEvent(capture.SseFrame{ID: ev.ID, Event: ev.Event, Data: ev.Data, Retry: ev.Retry}, method, md))
	}
}

// ---------------------------------------------------------------------------
// OAuth pass-through (C6)
// ---------------------------------------------------------------------------

func (h *ProxyHandler) handleWellKnown(w http.ResponseWriter, r *http.Request, route proxy.Route) {
	ctx := r.Context()
	srv, err := h.upstreams.Get(ctx, route.Name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	target := srv.BaseURL() + "/.well-known/" + route.Doc
	h.passthrough(w, r, target, route.Name)
}

func (h *ProxyHandler) handleRegister(w http.ResponseWriter, r *http.Request, route proxy.Route) {
	ctx := r.Context()
	srv, err := h.upstreams.Get(ctx, route.Name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	target := srv.BaseURL() + "/register"
	h.passthrough(w, r, target, route.Name)
}

// passthrough forwards r verbatim to target and relays the response
// verbatim, appending the gateway's own cookie to a 401 response per §4.6.
func (h *ProxyHandler) passthrough(w http.ResponseWriter, r *http.Request, target, serverName string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var bodyReader io.Reader
	if r.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		bodyReader = bytes.NewReader(body)
	}

	upReq, err := http.NewRequestWithContext(ctx, r.Method, target, bodyReader)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	upReq.Header = r.Header.Clone()

	resp, err := h.client.Do(upReq)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	for k, vv := range resp.Header {
		if isAutoManagedHeader(k) {
			continue
		}
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		w.Header().Add("Set-Cookie", proxy.GatewayCookie(serverName))
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (h *ProxyHandler) buildMetadata(r *http.Request, serverName, sessionKey string) capture.Metadata {
	md := capture.Metadata{
		ServerName: serverName,
		SessionID:  sessionKey,
		UserAgent:  r.Header.Get("User-Agent"),
		ClientIP:   IPFromContext(r.Context()),
	}
	if ci, ok := h.sessions.ClientInfo(sessionKey); ok {
		md.ClientName = ci.Name
		md.ClientVersion = ci.Version
		md.ClientTitle = ci.Title
	}
	if si, ok := h.sessions.ServerInfo(sessionKey); ok {
		md.ServerVersion = si.Version
		md.ServerTitle = si.Title
	}
	return md
}

func sessionKeyFromRequest(r *http.Request) string {
	if id := r.Header.Get(proxy.SessionIDHeader); id != "" {
		return id
	}
	return session.Stateless
}

func requestMethod(raw []byte) string {
	var req struct {
		Method string `json:"method"`
	}
	if json.Unmarshal(raw, &req) != nil {
		return ""
	}
	return req.Method
}

// idToken converts a raw JSON-RPC id to the string token used as the
// RequestTracker map key. It need not be human-readable, only stable
// between the StartRequest and FinishRequest calls for the same exchange.
func idToken(id json.RawMessage) string {
	if len(id) == 0 {
		return ""
	}
	return string(id)
}

func isSSE(resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	return strings.HasPrefix(strings.TrimSpace(ct), "text/event-stream")
}

func isAutoManagedHeader(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "transfer-encoding", "connection":
		return true
	}
	return false
}

// writeUpstreamResponse relays resp's non-auto-managed headers and body
// verbatim, adding the gateway's own cookie on a 401 so a retried request
// carries the upstream identity hint back in, per §4.6's cookie contract
// extended to the main proxy path (not just the OAuth pass-through).
func writeUpstreamResponse(w http.ResponseWriter, resp *http.Response, body []byte, serverName string) {
	for k, vv := range resp.Header {
		if isAutoManagedHeader(k) {
			continue
		}
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		w.Header().Add("Set-Cookie", proxy.GatewayCookie(serverName))
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}

func writeJSONRPCParseError(w http.ResponseWriter, id json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	env := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"error":   map[string]any{"code": -32700, "message": "Parse error: invalid JSON-RPC request"},
	}
	if id == nil {
		env["id"] = nil
	}
	_ = json.NewEncoder(w).Encode(env)
}
