// Package state provides file-based persistence for the gateway's
// registry (C9). Persistence format is opaque to the core per §4.1; this
// adapter is one concrete, optional implementation of "load-at-start /
// save-on-mutation".
package state

import "time"

// RegistryState is the top-level structure persisted to registry.json.
type RegistryState struct {
	// Version is the schema version for forward compatibility.
	Version string `json:"version"`
	// Upstreams are the registered MCP servers.
	Upstreams []UpstreamEntry `json:"upstreams"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// UpstreamEntry is the persisted form of upstream.McpServer.
type UpstreamEntry struct {
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	Headers         map[string]string `json:"headers,omitempty"`
	LastActivity    *time.Time        `json:"last_activity,omitempty"`
	ExchangeCount   int64             `json:"exchange_count"`
	Health          string            `json:"health"`
	LastHealthCheck *time.Time        `json:"last_health_check,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}
