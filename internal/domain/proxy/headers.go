package proxy

import (
	"net/http"
	"strings"
)

// DefaultProtocolVersion is forwarded when the client omits
// MCP-Protocol-Version, per §6.
const DefaultProtocolVersion = "2025-06-18"

// SessionIDHeader is the upstream-assigned session header.
const SessionIDHeader = "Mcp-Session-Id"

// ProtocolVersionHeader carries the negotiated MCP wire version.
const ProtocolVersionHeader = "MCP-Protocol-Version"

// strippedResponseHeaders are dropped from the upstream response before it
// is relayed to the client: they describe the upstream connection, not
// the one the gateway terminates.
var strippedResponseHeaders = []string{"Content-Length", "Transfer-Encoding", "Connection"}

// BuildOutboundHeaders constructs the header set forwarded to the
// upstream per §6's header contract. includeContentType is false for
// GET/DELETE. staticHeaders are the registry's per-server static headers,
// already filtered of the auto-managed set by the caller.
func BuildOutboundHeaders(client http.Header, includeContentType bool, sessionID string, staticHeaders map[string]string) http.Header {
	out := make(http.Header)

	if includeContentType {
		if ct := client.Get("Content-Type"); ct != "" {
			out.Set("Content-Type", ct)
		} else {
			out.Set("Content-Type", "application/json")
		}
	}

	pv := client.Get(ProtocolVersionHeader)
	if pv == "" {
		pv = DefaultProtocolVersion
	}
	out.Set(ProtocolVersionHeader, pv)

	// The session id header is forwarded even when empty: upstreams that
	// require a session reject accordingly, which the gateway passes
	// through rather than synthesizing (Open Question (b)).
	out.Set(SessionIDHeader, sessionID)

	if accept := client.Get("Accept"); accept != "" {
		out.Set("Accept", accept)
	}
	if auth := client.Get("Authorization"); auth != "" {
		out.Set("Authorization", auth)
	}

	for k, v := range staticHeaders {
		if isAutoManaged(k) {
			continue
		}
		out.Set(k, v)
	}

	return out
}

// isAutoManaged reports whether a registered static header name collides
// with one of the headers the gateway manages itself, per §4.5 step 6
// ("minus content-length, transfer-encoding, connection").
func isAutoManaged(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "transfer-encoding", "connection":
		return true
	}
	return false
}

// StripAutoManaged removes the headers the gateway owns from an upstream
// response before copying the rest to the client response, per §6.
func StripAutoManaged(h http.Header) {
	for _, name := range strippedResponseHeaders {
		h.Del(name)
	}
}

// GatewayCookie is the cookie appended on 401 pass-through alongside any
// upstream Set-Cookie headers, per §4.6/§6.
func GatewayCookie(serverName string) string {
	return "mcp-gateway-server=" + serverName + "; Path=/.well-known; HttpOnly; SameSite=Lax"
}
