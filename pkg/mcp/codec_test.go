package mcp

import (
	"strings"
	"testing"
)

func TestDecodeMessage_Request(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	if err != nil {
		t.Fatalf("DecodeMessage() error: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a decoded message")
	}
}

func TestDecodeMessage_InvalidJSON_ReturnsError(t *testing.T) {
	_, err := DecodeMessage([]byte(`not json`))
	if err == nil {
		t.Error("expected an error decoding malformed JSON-RPC")
	}
}

func TestRawID_ExtractsRawValue(t *testing.T) {
	id := RawID([]byte(`{"jsonrpc":"2.0","id":42,"method":"ping"}`))
	if string(id) != "42" {
		t.Errorf("expected id 42, got %q", id)
	}
}

func TestRawID_NilInput(t *testing.T) {
	if RawID(nil) != nil {
		t.Error("expected nil for nil input")
	}
}

func TestRawClientInfo_ExtractsFromInitializeRequest(t *testing.T) {
	ci := RawClientInfo([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"clientInfo":{"name":"vscode","version":"1.0"}}}`))
	if ci == nil {
		t.Fatal("expected clientInfo extracted")
	}
	if !strings.Contains(string(ci), `"name":"vscode"`) {
		t.Errorf("expected clientInfo to contain name, got %s", ci)
	}
}

func TestRawClientInfo_Absent_ReturnsNil(t *testing.T) {
	if ci := RawClientInfo([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)); ci != nil {
		t.Errorf("expected nil clientInfo, got %s", ci)
	}
}

func TestRawServerInfo_ExtractsFromInitializeResponse(t *testing.T) {
	si := RawServerInfo([]byte(`{"jsonrpc":"2.0","id":1,"result":{"serverInfo":{"name":"foo","version":"2.0"}}}`))
	if si == nil {
		t.Fatal("expected serverInfo extracted")
	}
}

func TestRawError_ExtractsErrorObject(t *testing.T) {
	e := RawError([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"not found"}}`))
	if e == nil {
		t.Fatal("expected error object extracted")
	}
}

func TestRawError_Absent_ReturnsNil(t *testing.T) {
	if e := RawError([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)); e != nil {
		t.Errorf("expected nil error, got %s", e)
	}
}

func TestIsJSONRPCResponse_True(t *testing.T) {
	if !IsJSONRPCResponse([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)) {
		t.Error("expected a result envelope to classify as a response")
	}
	if !IsJSONRPCResponse([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-1,"message":"x"}}`)) {
		t.Error("expected an error envelope to classify as a response")
	}
}

func TestIsJSONRPCResponse_False(t *testing.T) {
	if IsJSONRPCResponse([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)) {
		t.Error("expected a request envelope not to classify as a response")
	}
	if IsJSONRPCResponse([]byte(`not json`)) {
		t.Error("expected malformed input not to classify as a response")
	}
}

func TestIsJSONRPCMessage_MatchesRequestNotificationAndResponse(t *testing.T) {
	cases := []string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","method":"notifications/progress"}`,
		`{"jsonrpc":"2.0","id":1,"result":{}}`,
	}
	for _, c := range cases {
		if !IsJSONRPCMessage([]byte(c)) {
			t.Errorf("expected %s to classify as a JSON-RPC message", c)
		}
	}
}

func TestIsJSONRPCMessage_RejectsNonJSONRPC(t *testing.T) {
	if IsJSONRPCMessage([]byte(`{"hello":"world"}`)) {
		t.Error("expected a non-JSON-RPC envelope to be rejected")
	}
	if IsJSONRPCMessage([]byte(`not json`)) {
		t.Error("expected malformed input to be rejected")
	}
}

