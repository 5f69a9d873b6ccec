package config

import (
	"time"
)

type Config struct {
	Version       int           `toml:"version"`
	Session       Session       `toml:"session"`
	Catalog       Catalog       `toml:"catalog"`
	MCP           MCP           `toml:"mcp"`
	History       History       `toml:"history"`
	Observability Observability `toml:"observability"`
	Watch         Watch         `toml:"watch"`
}

// Session selects the project and the policy a server starts with. Context
// and mode references are preset names or file paths.
type Session struct {
	Project    string   `toml:"project"`
	Context    string   `toml:"context"`
	Modes      []string `toml:"modes"`
	PolicyDirs []string `toml:"policy_dirs"`
}

// Catalog controls which tools are registered. OpenAPISpec is a file path
// or http(s) URL whose operations become additional placeholder tools.
type Catalog struct {
	DisableBuiltins bool     `toml:"disable_builtins"`
	OpenAPISpec     string   `toml:"openapi_spec"`
	Operations      []string `toml:"operations"`
}

type MCP struct {
	Transport      string        `toml:"transport"`
	Address        string        `toml:"address"`
	ServerName     string        `toml:"server_name"`
	ServerVersion  string        `toml:"server_version"`
	SchemaProfile  string        `toml:"schema_profile"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	MaxConcurrent  int           `toml:"max_concurrent"`
	SchemaCache    int           `toml:"schema_cache"`
	RateLimit      MCPRateLimit  `toml:"rate_limit"`
}

type MCPRateLimit struct {
	Enabled                 bool `toml:"enabled"`
	RequestsPerMinute       int  `toml:"requests_per_minute"`
	Burst                   int  `toml:"burst"`
	SSERequestsPerMinute    int  `toml:"sse_requests_per_minute"`
	SSEConnectionsPerMinute int  `toml:"sse_connections_per_minute"`
}

type History struct {
	Enabled       bool          `toml:"enabled"`
	Path          string        `toml:"path"`
	QueueCapacity int           `toml:"queue_capacity"`
	BatchSize     int           `toml:"batch_size"`
	FlushInterval time.Duration `toml:"flush_interval"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Address       string `toml:"address"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	EnableTracing bool   `toml:"enable_tracing"`
	EnableMetrics bool   `toml:"enable_metrics"`
}

type Watch struct {
	Enabled  bool          `toml:"enabled"`
	Debounce time.Duration `toml:"debounce"`
}

const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportSDK   = "sdk"
	TransportHTTP  = "http"
)

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
