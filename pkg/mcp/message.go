// Package mcp provides MCP message types and JSON-RPC codec utilities for
// the observability gateway.
package mcp

import (
	"encoding/json"
)

// RawID extracts the request/response id from the raw message bytes as a
// json.RawMessage so numeric, string, and null ids round-trip byte for
// byte. The SDK's own ID type does not marshal cleanly through
// interface{}, so the gateway reads it directly off the wire.
func RawID(raw []byte) json.RawMessage {
	if raw == nil {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields["id"]
}

// RawClientInfo extracts params.clientInfo from a raw `initialize` request,
// returning nil if absent or malformed.
func RawClientInfo(raw []byte) json.RawMessage {
	var req struct {
		Params struct {
			ClientInfo json.RawMessage `json:"clientInfo"`
		} `json:"params"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil
	}
	return req.Params.ClientInfo
}

// RawServerInfo extracts result.serverInfo from a raw `initialize`
// response, returning nil if absent or malformed.
func RawServerInfo(raw []byte) json.RawMessage {
	var resp struct {
		Result struct {
			ServerInfo json.RawMessage `json:"serverInfo"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}
	return resp.Result.ServerInfo
}

// RawError extracts the response.error object, or nil if absent.
func RawError(raw []byte) json.RawMessage {
	var resp struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}
	return resp.Error
}

// IsJSONRPCResponse reports whether a decoded object looks like a JSON-RPC
// 2.0 response: jsonrpc="2.0" and either "result" or "error" present. Used
// by C4 to classify embedded SSE payloads per §4.4.
func IsJSONRPCResponse(raw []byte) bool {
	var env struct {
		JSONRPC string          `json:"jsonrpc"`
		Result  json.RawMessage `json:"result"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	return env.JSONRPC == "2.0" && (env.Result != nil || env.Error != nil)
}

// IsJSONRPCMessage reports whether raw looks like any JSON-RPC 2.0 message
// (request, notification, or response).
func IsJSONRPCMessage(raw []byte) bool {
	var env struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Result  json.RawMessage `json:"result"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	return env.JSONRPC == "2.0" && (env.Method != "" || env.Result != nil || env.Error != nil)
}
