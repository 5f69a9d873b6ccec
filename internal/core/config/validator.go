package config

import (
	"fmt"
	"net"
	"time"

	"toolhost/internal/mcp/schema"
)

// Validate checks every section and returns the first problem found.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	for _, check := range []func(*Config) error{
		validateVersion,
		validateSession,
		validateCatalog,
		validateMCP,
		validateHistory,
		validateObservability,
	} {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateSession(cfg *Config) error {
	if cfg.Session.Context == "" {
		return fmt.Errorf("session.context must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Session.Modes))
	for _, m := range cfg.Session.Modes {
		if seen[m] {
			return fmt.Errorf("session.modes contains duplicate entry %q", m)
		}
		seen[m] = true
	}
	return nil
}

func validateCatalog(cfg *Config) error {
	if cfg.Catalog.DisableBuiltins && cfg.Catalog.OpenAPISpec == "" {
		return fmt.Errorf("catalog.disable_builtins requires catalog.openapi_spec")
	}
	if len(cfg.Catalog.Operations) > 0 && cfg.Catalog.OpenAPISpec == "" {
		return fmt.Errorf("catalog.operations requires catalog.openapi_spec")
	}
	return nil
}

func validateMCP(cfg *Config) error {
	switch cfg.MCP.Transport {
	case TransportStdio, TransportSDK:
	case TransportSSE, TransportHTTP:
		if _, _, err := net.SplitHostPort(cfg.MCP.Address); err != nil {
			return fmt.Errorf("mcp.address %q is not host:port: %w", cfg.MCP.Address, err)
		}
	default:
		return fmt.Errorf("mcp.transport must be one of: stdio, sse, sdk, http")
	}

	if _, err := schema.ParseProfile(cfg.MCP.SchemaProfile); err != nil {
		return fmt.Errorf("mcp.schema_profile: %w", err)
	}
	if cfg.MCP.RequestTimeout < 100*time.Millisecond || cfg.MCP.RequestTimeout > 30*time.Minute {
		return fmt.Errorf("mcp.request_timeout must be between 100ms and 30m")
	}
	if cfg.MCP.MaxConcurrent > 1024 {
		return fmt.Errorf("mcp.max_concurrent must be <= 1024")
	}
	if cfg.MCP.ServerName == "" {
		return fmt.Errorf("mcp.server_name must not be empty")
	}
	return nil
}

func validateHistory(cfg *Config) error {
	if !cfg.History.Enabled {
		return nil
	}
	if cfg.History.Path == "" {
		return fmt.Errorf("history.path must not be empty when history.enabled=true")
	}
	if cfg.History.BatchSize > cfg.History.QueueCapacity {
		return fmt.Errorf("history.batch_size (%d) must not exceed history.queue_capacity (%d)", cfg.History.BatchSize, cfg.History.QueueCapacity)
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if !cfg.Observability.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Observability.Address); err != nil {
		return fmt.Errorf("observability.address %q is not host:port: %w", cfg.Observability.Address, err)
	}
	return nil
}
