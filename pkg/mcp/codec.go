package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// DecodeMessage deserializes wire-format JSON-RPC bytes, returning either a
// *jsonrpc.Request or *jsonrpc.Response.
func DecodeMessage(data []byte) (jsonrpc.Message, error) {
	return jsonrpc.DecodeMessage(data)
}
