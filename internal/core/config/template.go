package config

import (
	"fmt"
	"strings"
)

// DefaultTOML renders a commented configuration file holding every default.
// Parsing it yields DefaultConfig.
func DefaultTOML() string {
	cfg := DefaultConfig()
	quoted := func(values []string) string {
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = fmt.Sprintf("%q", v)
		}
		return "[" + strings.Join(out, ", ") + "]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "version = %d\n\n", cfg.Version)

	b.WriteString("[session]\n")
	b.WriteString("# Project root, relative to the working directory.\n")
	fmt.Fprintf(&b, "project = %q\n", cfg.Session.Project)
	b.WriteString("# Preset name, file path, or <name>_context.json in policy_dirs.\n")
	fmt.Fprintf(&b, "context = %q\n", cfg.Session.Context)
	fmt.Fprintf(&b, "modes = %s\n", quoted(cfg.Session.Modes))
	fmt.Fprintf(&b, "policy_dirs = %s\n\n", quoted(cfg.Session.PolicyDirs))

	b.WriteString("[catalog]\n")
	fmt.Fprintf(&b, "disable_builtins = %t\n", cfg.Catalog.DisableBuiltins)
	b.WriteString("# openapi_spec = \"api/openapi.yaml\"\n")
	b.WriteString("# operations = []\n\n")

	b.WriteString("[mcp]\n")
	b.WriteString("# stdio | sse | sdk | http\n")
	fmt.Fprintf(&b, "transport = %q\n", cfg.MCP.Transport)
	fmt.Fprintf(&b, "address = %q\n", cfg.MCP.Address)
	fmt.Fprintf(&b, "server_name = %q\n", cfg.MCP.ServerName)
	b.WriteString("# default | openai\n")
	fmt.Fprintf(&b, "schema_profile = %q\n", cfg.MCP.SchemaProfile)
	fmt.Fprintf(&b, "request_timeout = %q\n", cfg.MCP.RequestTimeout.String())
	fmt.Fprintf(&b, "max_concurrent = %d\n", cfg.MCP.MaxConcurrent)
	fmt.Fprintf(&b, "schema_cache = %d\n\n", cfg.MCP.SchemaCache)

	b.WriteString("[mcp.rate_limit]\n")
	fmt.Fprintf(&b, "enabled = %t\n", cfg.MCP.RateLimit.Enabled)
	fmt.Fprintf(&b, "requests_per_minute = %d\n", cfg.MCP.RateLimit.RequestsPerMinute)
	fmt.Fprintf(&b, "burst = %d\n", cfg.MCP.RateLimit.Burst)
	fmt.Fprintf(&b, "sse_requests_per_minute = %d\n", cfg.MCP.RateLimit.SSERequestsPerMinute)
	fmt.Fprintf(&b, "sse_connections_per_minute = %d\n\n", cfg.MCP.RateLimit.SSEConnectionsPerMinute)

	b.WriteString("[history]\n")
	fmt.Fprintf(&b, "enabled = %t\n", cfg.History.Enabled)
	fmt.Fprintf(&b, "path = %q\n", cfg.History.Path)
	fmt.Fprintf(&b, "queue_capacity = %d\n", cfg.History.QueueCapacity)
	fmt.Fprintf(&b, "batch_size = %d\n", cfg.History.BatchSize)
	fmt.Fprintf(&b, "flush_interval = %q\n\n", cfg.History.FlushInterval.String())

	b.WriteString("[observability]\n")
	fmt.Fprintf(&b, "enabled = %t\n", cfg.Observability.Enabled)
	fmt.Fprintf(&b, "address = %q\n", cfg.Observability.Address)
	fmt.Fprintf(&b, "otlp_endpoint = %q\n", cfg.Observability.OTLPEndpoint)
	fmt.Fprintf(&b, "enable_tracing = %t\n", cfg.Observability.EnableTracing)
	fmt.Fprintf(&b, "enable_metrics = %t\n\n", cfg.Observability.EnableMetrics)

	b.WriteString("[watch]\n")
	b.WriteString("# Reload the policy when this file changes.\n")
	fmt.Fprintf(&b, "enabled = %t\n", cfg.Watch.Enabled)
	fmt.Fprintf(&b, "debounce = %q\n", cfg.Watch.Debounce.String())
	return b.String()
}
