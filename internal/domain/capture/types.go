// Package capture implements the capture recorder (C3): pure builders that
// turn proxied request/response/SSE-event traffic into CaptureRecords, the
// unit persisted by C1.
package capture

import (
	"encoding/json"
	"time"
)

// Metadata carries the identity and timing columns attached to every
// CaptureRecord, per §3.
type Metadata struct {
	ServerName string `json:"serverName"`
	SessionID  string `json:"sessionId"`
	DurationMs int64  `json:"durationMs"`
	HTTPStatus int    `json:"httpStatus"`

	ClientName    string `json:"clientName,omitempty"`
	ClientVersion string `json:"clientVersion,omitempty"`
	ClientTitle   string `json:"clientTitle,omitempty"`
	ServerVersion string `json:"serverVersion,omitempty"`
	ServerTitle   string `json:"serverTitle,omitempty"`

	UserAgent string `json:"userAgent,omitempty"`
	ClientIP  string `json:"clientIp,omitempty"`
}

// SseFrame is the raw SSE frame captured for direction="sse-event" rows.
type SseFrame struct {
	ID    string `json:"id,omitempty"`
	Event string `json:"event,omitempty"`
	Data  string `json:"data,omitempty"`
	Retry int    `json:"retry,omitempty"`
}

// Record is the unit persisted by C1. Exactly one of Request, Response, or
// SseEvent is non-nil.
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	Method    string          `json:"method"`
	ID        json.RawMessage `json:"id,omitempty"`
	Metadata  Metadata        `json:"metadata"`

	Request  json.RawMessage `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
	SseEvent *SseFrame       `json:"sseEvent,omitempty"`
}
