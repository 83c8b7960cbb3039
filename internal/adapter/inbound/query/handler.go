// Package query implements the query API (C8): HTTP routes over C1's read
// side and C2's clear operation.
package query

import (
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mcpwatch/gateway/internal/domain/query"
	"github.com/mcpwatch/gateway/internal/domain/session"
)

// Handler serves the query API's HTTP routes against a query.Reader and
// the session store's clear operation.
type Handler struct {
	reader   query.Reader
	sessions *session.Store
	logger   *slog.Logger
}

// NewHandler wires C8 against C1's reader and C2.
func NewHandler(reader query.Reader, sessions *session.Store, logger *slog.Logger) *Handler {
	return &Handler{reader: reader, sessions: sessions, logger: logger}
}

// Routes registers the query API under mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /logs", h.handleLogs)
	mux.HandleFunc("GET /logs/export.csv", h.handleLogsExport)
	mux.HandleFunc("GET /servers", h.handleServers)
	mux.HandleFunc("GET /sessions", h.handleSessions)
	mux.HandleFunc("GET /clients", h.handleClients)
	mux.HandleFunc("GET /methods", h.handleMethods)
	mux.HandleFunc("POST /logs/clear", h.handleClear)
}

// ApiLogEntry is one expanded row in GET /logs's response, per §4.9: a
// CaptureRecord with both request and response becomes two entries.
type ApiLogEntry struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	JSONRPCID  *string   `json:"jsonrpcId,omitempty"`
	ServerName string    `json:"serverName"`
	SessionID  string    `json:"sessionId"`
	DurationMs int64     `json:"durationMs"`
	HTTPStatus int       `json:"httpStatus"`
	Direction  string    `json:"direction"`

	RequestJSON  json.RawMessage `json:"request,omitempty"`
	ResponseJSON json.RawMessage `json:"response,omitempty"`
	ErrorJSON    json.RawMessage `json:"error,omitempty"`

	ClientName    *string `json:"clientName,omitempty"`
	ClientVersion *string `json:"clientVersion,omitempty"`
	ClientTitle   *string `json:"clientTitle,omitempty"`
	ServerVersion *string `json:"serverVersion,omitempty"`
	ServerTitle   *string `json:"serverTitle,omitempty"`
	UserAgent     *string `json:"userAgent,omitempty"`
	ClientIP      *string `json:"clientIp,omitempty"`
}

type logsResponse struct {
	Data       []ApiLogEntry `json:"data"`
	Pagination pagination    `json:"pagination"`
}

type pagination struct {
	HasMore         bool       `json:"hasMore"`
	OldestTimestamp *time.Time `json:"oldestTimestamp,omitempty"`
	NewestTimestamp *time.Time `json:"newestTimestamp,omitempty"`
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	opts, err := parseLogQueryOptions(r.URL.Query())
	if err != nil {
		writeInvalidParam(w, err.Error())
		return
	}

	result, err := h.reader.Query(r.Context(), opts)
	if err != nil {
		h.logger.Error("query logs failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := logsResponse{
		Pagination: pagination{
			HasMore:         result.HasMore,
			OldestTimestamp: result.OldestTimestamp,
			NewestTimestamp: result.NewestTimestamp,
		},
	}
	for _, row := range result.Rows {
		resp.Data = append(resp.Data, expandRow(row)...)
	}
	writeJSON(w, http.StatusOK, resp)
}

// expandRow implements §4.9's expansion: request before response before
// sse-event, each becoming its own ApiLogEntry.
func expandRow(row query.LogRow) []ApiLogEntry {
	base := ApiLogEntry{
		ID:            row.ID,
		Timestamp:     row.Timestamp,
		Method:        row.Method,
		JSONRPCID:     row.JSONRPCID,
		ServerName:    row.ServerName,
		SessionID:     row.SessionID,
		DurationMs:    row.DurationMs,
		HTTPStatus:    row.HTTPStatus,
		ClientName:    row.ClientName,
		ClientVersion: row.ClientVersion,
		ClientTitle:   row.ClientTitle,
		ServerVersion: row.ServerVersion,
		ServerTitle:   row.ServerTitle,
		UserAgent:     row.UserAgent,
		ClientIP:      row.ClientIP,
	}

	var out []ApiLogEntry
	if row.RequestJSON != nil {
		e := base
		e.Direction = "request"
		e.RequestJSON = json.RawMessage(*row.RequestJSON)
		out = append(out, e)
	}
	if row.ResponseJSON != nil {
		e := base
		e.Direction = "response"
		e.ResponseJSON = json.RawMessage(*row.ResponseJSON)
		if row.ErrorJSON != nil {
			e.ErrorJSON = json.RawMessage(*row.ErrorJSON)
		}
		out = append(out, e)
	}
	if row.RequestJSON == nil && row.ResponseJSON == nil {
		e := base
		e.Direction = "sse-event"
		out = append(out, e)
	}
	return out
}

// handleLogsExport implements §6's GET /logs/export.csv: the same filter
// grammar as GET /logs, rendered as CSV instead of JSON.
func (h *Handler) handleLogsExport(w http.ResponseWriter, r *http.Request) {
	opts, err := parseLogQueryOptions(r.URL.Query())
	if err != nil {
		writeInvalidParam(w, err.Error())
		return
	}
	if opts.Limit == query.DefaultLimit {
		opts.Limit = query.MaxLimit
	}

	result, err := h.reader.Query(r.Context(), opts)
	if err != nil {
		h.logger.Error("export logs failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=logs-export.csv")
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	defer cw.Flush()
	_ = cw.Write([]string{
		"id", "timestamp", "direction", "method", "server_name", "session_id",
		"duration_ms", "http_status",
	})
	for _, row := range result.Rows {
		for _, e := range expandRow(row) {
			_ = cw.Write([]string{
				strconv.FormatInt(e.ID, 10),
				e.Timestamp.UTC().Format(time.RFC3339),
				e.Direction,
				e.Method,
				e.ServerName,
				e.SessionID,
				strconv.FormatInt(e.DurationMs, 10),
				strconv.Itoa(e.HTTPStatus),
			})
		}
	}
}

func (h *Handler) handleServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.reader.GetServers(r.Context())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": servers})
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	serverName := r.URL.Query().Get("server")
	sessions, err := h.reader.GetSessions(r.Context(), serverName)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": sessions})
}

func (h *Handler) handleClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.reader.GetClients(r.Context())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": clients})
}

func (h *Handler) handleMethods(w http.ResponseWriter, r *http.Request) {
	serverName := r.URL.Query().Get("server")
	methods, err := h.reader.GetMethods(r.Context(), serverName)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": methods})
}

// handleClear implements §4.9's POST /logs/clear: clears C1 and C2.
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.reader.ClearAll(r.Context()); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.sessions.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeInvalidParam(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": "INVALID_PARAM", "message": message},
	})
}

// parseLogQueryOptions implements §6's query parameter grammar: repeated
// keys for multi-select, an optional "operator:" value prefix, and
// field-specific default operators.
func parseLogQueryOptions(q map[string][]string) (query.LogQueryOptions, error) {
	var opts query.LogQueryOptions

	opts.ServerName = parseStringFilter(q["server"], query.OpIs)
	opts.SessionID = parseStringFilter(q["session"], query.OpIs)
	opts.ClientName = parseStringFilter(q["client"], query.OpIs)
	opts.Method = parseStringFilter(q["method"], query.OpContains)

	opts.SearchQueries = q["searchQuery"]

	var err error
	if opts.DurationMs, err = parseNumericFilter(q, "duration"); err != nil {
		return opts, err
	}
	if opts.Tokens, err = parseNumericFilter(q, "tokens"); err != nil {
		return opts, err
	}

	if v := firstOf(q["after"]); v != "" {
		t, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			return opts, errInvalidParam("after", v)
		}
		opts.After = &t
	}
	if v := firstOf(q["before"]); v != "" {
		t, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			return opts, errInvalidParam("before", v)
		}
		opts.Before = &t
	}

	opts.Limit = query.DefaultLimit
	if v := firstOf(q["limit"]); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil || n < 1 || n > query.MaxLimit {
			return opts, errInvalidParam("limit", v)
		}
		opts.Limit = n
	}

	opts.Order = "desc"
	if v := firstOf(q["order"]); v != "" {
		if v != "asc" && v != "desc" {
			return opts, errInvalidParam("order", v)
		}
		opts.Order = v
	}

	return opts, nil
}

// parseStringFilter strips an optional "is:"/"contains:" prefix from each
// value, defaulting to defaultOp when no prefix is present.
func parseStringFilter(values []string, defaultOp query.MatchOp) *query.StringFilter {
	if len(values) == 0 {
		return nil
	}
	f := &query.StringFilter{Op: defaultOp}
	for i, v := range values {
		op, rest, ok := splitOperatorPrefix(v)
		if ok {
			if i == 0 {
				f.Op = op
			}
			v = rest
		}
		f.Values = append(f.Values, v)
	}
	return f
}

func splitOperatorPrefix(v string) (query.MatchOp, string, bool) {
	if rest, ok := strings.CutPrefix(v, "is:"); ok {
		return query.OpIs, rest, true
	}
	if rest, ok := strings.CutPrefix(v, "contains:"); ok {
		return query.OpContains, rest, true
	}
	return "", v, false
}

// parseNumericFilter reads the {field}Eq/{field}Gt/{field}Lt/{field}Gte/{field}Lte
// query keys into a NumericFilter.
func parseNumericFilter(q map[string][]string, field string) (*query.NumericFilter, error) {
	var f query.NumericFilter
	hasFilter := false

	if vs, ok := q[field+"Eq"]; ok {
		for _, v := range vs {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, errInvalidParam(field+"Eq", v)
			}
			f.Eq = append(f.Eq, n)
		}
		hasFilter = hasFilter || len(vs) > 0
	}
	for key, dst := range map[string]**int64{field + "Gt": &f.Gt, field + "Lt": &f.Lt, field + "Gte": &f.Gte, field + "Lte": &f.Lte} {
		if vs, ok := q[key]; ok && len(vs) > 0 {
			n, err := strconv.ParseInt(vs[0], 10, 64)
			if err != nil {
				return nil, errInvalidParam(key, vs[0])
			}
			*dst = &n
			hasFilter = true
		}
	}

	if !hasFilter {
		return nil, nil
	}
	return &f, nil
}

func firstOf(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func errInvalidParam(field, value string) error {
	return &invalidParamError{field: field, value: value}
}

type invalidParamError struct {
	field, value string
}

func (e *invalidParamError) Error() string {
	return "invalid value for " + e.field + ": " + e.value
}
