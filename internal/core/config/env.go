package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: TOOLHOST_[SECTION]_[KEY] (e.g., TOOLHOST_MCP_TRANSPORT).
func ApplyEnvOverrides(cfg *Config) {
	// Session
	setEnvString(&cfg.Session.Project, "TOOLHOST_SESSION_PROJECT")
	setEnvString(&cfg.Session.Context, "TOOLHOST_SESSION_CONTEXT")
	setEnvList(&cfg.Session.Modes, "TOOLHOST_SESSION_MODES")
	setEnvList(&cfg.Session.PolicyDirs, "TOOLHOST_SESSION_POLICY_DIRS")

	// Catalog
	setEnvBool(&cfg.Catalog.DisableBuiltins, "TOOLHOST_CATALOG_DISABLE_BUILTINS")
	setEnvString(&cfg.Catalog.OpenAPISpec, "TOOLHOST_CATALOG_OPENAPI_SPEC")
	setEnvList(&cfg.Catalog.Operations, "TOOLHOST_CATALOG_OPERATIONS")

	// MCP
	setEnvString(&cfg.MCP.Transport, "TOOLHOST_MCP_TRANSPORT")
	setEnvString(&cfg.MCP.Address, "TOOLHOST_MCP_ADDRESS")
	setEnvString(&cfg.MCP.ServerName, "TOOLHOST_MCP_SERVER_NAME")
	setEnvString(&cfg.MCP.SchemaProfile, "TOOLHOST_MCP_SCHEMA_PROFILE")
	setEnvDuration(&cfg.MCP.RequestTimeout, "TOOLHOST_MCP_REQUEST_TIMEOUT")
	setEnvInt(&cfg.MCP.MaxConcurrent, "TOOLHOST_MCP_MAX_CONCURRENT")
	setEnvBool(&cfg.MCP.RateLimit.Enabled, "TOOLHOST_MCP_RATE_LIMIT_ENABLED")

	// History
	setEnvBool(&cfg.History.Enabled, "TOOLHOST_HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, "TOOLHOST_HISTORY_PATH")
	setEnvInt(&cfg.History.QueueCapacity, "TOOLHOST_HISTORY_QUEUE_CAPACITY")
	setEnvInt(&cfg.History.BatchSize, "TOOLHOST_HISTORY_BATCH_SIZE")
	setEnvDuration(&cfg.History.FlushInterval, "TOOLHOST_HISTORY_FLUSH_INTERVAL")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "TOOLHOST_OBSERVABILITY_ENABLED")
	setEnvString(&cfg.Observability.Address, "TOOLHOST_OBSERVABILITY_ADDRESS")
	setEnvString(&cfg.Observability.OTLPEndpoint, "TOOLHOST_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "TOOLHOST_OBSERVABILITY_ENABLE_TRACING")
	setEnvBool(&cfg.Observability.EnableMetrics, "TOOLHOST_OBSERVABILITY_ENABLE_METRICS")

	// Watch
	setEnvBool(&cfg.Watch.Enabled, "TOOLHOST_WATCH_ENABLED")
	setEnvDuration(&cfg.Watch.Debounce, "TOOLHOST_WATCH_DEBOUNCE")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = strings.Split(val, ",")
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
