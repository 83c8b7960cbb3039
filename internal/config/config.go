// Package config provides configuration types for the mcpwatch gateway.
//
// The schema is intentionally small: the gateway's only durable inputs are
// where to listen, where to keep the registry and capture store, and how
// often to probe upstream health. Everything else — policy, auth, rate
// limiting, TLS termination — belongs to a reverse proxy or a host wrapper,
// not to the observability core.
package config

// GatewayConfig is the top-level configuration for the mcpwatch gateway.
type GatewayConfig struct {
	// Server configures the HTTP listener that serves the proxy, the
	// query API, and the metrics/health endpoints.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Registry configures where the upstream registry (C9) is persisted.
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`

	// Storage configures the capture store (C1).
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Session configures the in-memory session-state store (C2).
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// HealthCheck configures the upstream health prober (C7).
	HealthCheck HealthCheckConfig `yaml:"health_check" mapstructure:"health_check"`

	// DevMode enables development defaults (verbose logging, relaxed
	// origin checks).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
// TLS termination is expected to happen in front of the gateway (reverse
// proxy); the gateway itself only speaks plain HTTP.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn" (or "warning"), "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// AllowedOrigins is the set of Origin header values accepted by
	// DNSRebindingProtection. Empty means same-origin/no-Origin requests
	// only.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`

	// ProxyTimeout bounds non-SSE upstream forwarding (e.g., "30s").
	// Defaults to "30s" if not specified.
	ProxyTimeout string `yaml:"proxy_timeout" mapstructure:"proxy_timeout" validate:"omitempty"`

	// ShutdownGracePeriod bounds how long in-flight handlers get to
	// finish on shutdown before the server forces close (e.g., "10s").
	ShutdownGracePeriod string `yaml:"shutdown_grace_period" mapstructure:"shutdown_grace_period" validate:"omitempty"`
}

// RegistryConfig configures the upstream registry (C9)'s persistence.
type RegistryConfig struct {
	// Path is the file the registry snapshot is loaded from and saved to
	// (e.g., "registry.json"). Defaults to "registry.json", relative to
	// the working directory.
	Path string `yaml:"path" mapstructure:"path"`

	// Upstreams seeds the registry at first boot, before any registry
	// file exists. Ignored once a registry file is present.
	Upstreams []UpstreamSeed `yaml:"upstreams" mapstructure:"upstreams" validate:"omitempty,dive"`
}

// UpstreamSeed is one registry entry supplied via config, for first-boot
// seeding only; the registry file is authoritative thereafter.
type UpstreamSeed struct {
	// Name is the unique, case-insensitively normalized upstream name.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// URL is the absolute upstream base URL.
	URL string `yaml:"url" mapstructure:"url" validate:"required,url"`

	// Headers are static headers forwarded on every request to this
	// upstream.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`
}

// StorageConfig configures the capture store (C1).
type StorageConfig struct {
	// Path is the SQLite database file (e.g., "mcpwatch.db"). Defaults
	// to "mcpwatch.db", relative to the working directory.
	Path string `yaml:"path" mapstructure:"path"`

	// BusyTimeout is the SQLite busy-timeout pragma (e.g., "5s").
	// Defaults to "5s" per §4.8's durability policy.
	BusyTimeout string `yaml:"busy_timeout" mapstructure:"busy_timeout" validate:"omitempty"`
}

// SessionConfig configures the session-state store (C2)'s RequestTracker
// eviction.
type SessionConfig struct {
	// RequestTTL bounds how long a started-but-unfinished request stays
	// in the RequestTracker before eviction (e.g., "5m").
	RequestTTL string `yaml:"request_ttl" mapstructure:"request_ttl" validate:"omitempty"`

	// CleanupInterval is how often expired RequestTracker entries are
	// swept (e.g., "1m").
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty"`
}

// HealthCheckConfig configures the upstream health prober (C7).
type HealthCheckConfig struct {
	// Interval is how often every registered upstream is probed (e.g.,
	// "5s"). Defaults to 5000ms per §4.7.
	Interval string `yaml:"interval" mapstructure:"interval" validate:"omitempty"`

	// ProbeTimeout bounds a single probe (e.g., "5s").
	ProbeTimeout string `yaml:"probe_timeout" mapstructure:"probe_timeout" validate:"omitempty"`

	// Concurrency bounds probes in flight per tick.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"omitempty,min=1"`
}

// SetDevDefaults applies permissive defaults for development mode. These
// are applied before validation so required fields are satisfied with a
// minimal config.
func (c *GatewayConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "debug"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *GatewayConfig) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ProxyTimeout == "" {
		c.Server.ProxyTimeout = "30s"
	}
	if c.Server.ShutdownGracePeriod == "" {
		c.Server.ShutdownGracePeriod = "10s"
	}

	if c.Registry.Path == "" {
		c.Registry.Path = "registry.json"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "mcpwatch.db"
	}
	if c.Storage.BusyTimeout == "" {
		c.Storage.BusyTimeout = "5s"
	}

	if c.Session.RequestTTL == "" {
		c.Session.RequestTTL = "5m"
	}
	if c.Session.CleanupInterval == "" {
		c.Session.CleanupInterval = "1m"
	}

	if c.HealthCheck.Interval == "" {
		c.HealthCheck.Interval = "5s"
	}
	if c.HealthCheck.ProbeTimeout == "" {
		c.HealthCheck.ProbeTimeout = "5s"
	}
	if c.HealthCheck.Concurrency == 0 {
		c.HealthCheck.Concurrency = 8
	}
}
