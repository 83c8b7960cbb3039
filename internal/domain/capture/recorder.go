package capture

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcpwatch/gateway/pkg/mcp"
)

// BuildRequest constructs a request Record from an inbound JSON-RPC
// request, before it is forwarded upstream (§4.3, written before
// forwarding per §5's ordering guarantee).
func BuildRequest(raw []byte, md Metadata) Record {
	method := requestMethod(raw)
	return Record{
		Timestamp: time.Now().UTC(),
		Method:    method,
		ID:        mcp.RawID(raw),
		Metadata:  md,
		Request:   json.RawMessage(raw),
	}
}

// BuildResponse constructs a response Record pairing with the originating
// request's method and id. durationMs and httpStatus come from the caller
// (RequestTracker lookup, upstream HTTP status).
func BuildResponse(raw []byte, method string, md Metadata) Record {
	return Record{
		Timestamp: time.Now().UTC(),
		Method:    method,
		ID:        mcp.RawID(raw),
		Metadata:  md,
		Response:  json.RawMessage(raw),
	}
}

// BuildSseEvent constructs an sse-event Record for an opaque (non
// JSON-RPC) SSE frame. method is a synthetic tag: the originating request's
// method when known, or a fallback such as "GET /mcp".
func BuildSseEvent(frame SseFrame, method string, md Metadata) Record {
	f := frame
	return Record{
		Timestamp: time.Now().UTC(),
		Method:    method,
		Metadata:  md,
		SseEvent:  &f,
	}
}

// BuildSyntheticError wraps a non-JSON-RPC upstream body (or a transport
// failure) into a synthetic JSON-RPC error response so every persisted row
// is still a valid Record, per §4.3's error-response capture rule and
// §4.5's transport-failure rule (code -32603).
func BuildSyntheticError(code int, message string, rawBody []byte, method string, reqID json.RawMessage, md Metadata) Record {
	synthetic := syntheticErrorResponse(code, message, rawBody, reqID)
	return Record{
		Timestamp: time.Now().UTC(),
		Method:    method,
		ID:        reqID,
		Metadata:  md,
		Response:  synthetic,
	}
}

// syntheticErrorResponse builds the JSON-RPC error envelope
// {jsonrpc, id, error:{code, message, data:{rawBody}}}.
func syntheticErrorResponse(code int, message string, rawBody []byte, reqID json.RawMessage) json.RawMessage {
	type errData struct {
		RawBody string `json:"rawBody,omitempty"`
	}
	type errObj struct {
		Code    int     `json:"code"`
		Message string  `json:"message"`
		Data    errData `json:"data"`
	}
	type envelope struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Error   errObj          `json:"error"`
	}
	env := envelope{
		JSONRPC: "2.0",
		ID:      reqID,
		Error: errObj{
			Code:    code,
			Message: message,
			Data:    errData{RawBody: string(rawBody)},
		},
	}
	out, err := json.Marshal(env)
	if err != nil {
		return json.RawMessage(fmt.Sprintf(`{"jsonrpc":"2.0","id":null,"error":{"code":%d,"message":%q}}`, code, message))
	}
	return out
}

func requestMethod(raw []byte) string {
	var req struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return ""
	}
	return req.Method
}
