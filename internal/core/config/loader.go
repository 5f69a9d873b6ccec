package config

import (
	"os"
	"strings"
	"time"

	"toolhost/internal/core/errors"
	"toolhost/internal/policy"
	"toolhost/internal/shared/version"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML file, applies environment overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeConfiguration, "read config"), errors.CtxPath, path)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or builds the default configuration (with
// environment overrides) when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Parse("")
	}
	return Load(path)
}

// Parse decodes TOML text into a validated Config.
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "decode config")
	}

	ApplyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	normalizeSession(&cfg)
	normalizeMCP(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "invalid config")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Session.Project) == "" {
		cfg.Session.Project = "."
	}
	if strings.TrimSpace(cfg.Session.Context) == "" {
		cfg.Session.Context = policy.DefaultContext
	}
	if len(cfg.Session.Modes) == 0 {
		cfg.Session.Modes = append([]string(nil), policy.DefaultModes...)
	}
	if len(cfg.Session.PolicyDirs) == 0 {
		cfg.Session.PolicyDirs = []string{".toolhost/policies"}
	}

	if strings.TrimSpace(cfg.MCP.Transport) == "" {
		cfg.MCP.Transport = TransportStdio
	}
	if strings.TrimSpace(cfg.MCP.Address) == "" {
		cfg.MCP.Address = "127.0.0.1:8765"
	}
	if strings.TrimSpace(cfg.MCP.ServerName) == "" {
		cfg.MCP.ServerName = "toolhost"
	}
	if strings.TrimSpace(cfg.MCP.ServerVersion) == "" {
		cfg.MCP.ServerVersion = version.Version
	}
	if strings.TrimSpace(cfg.MCP.SchemaProfile) == "" {
		cfg.MCP.SchemaProfile = "default"
	}
	if cfg.MCP.RequestTimeout <= 0 {
		cfg.MCP.RequestTimeout = 30 * time.Second
	}
	if cfg.MCP.MaxConcurrent <= 0 {
		cfg.MCP.MaxConcurrent = 16
	}
	if cfg.MCP.SchemaCache <= 0 {
		cfg.MCP.SchemaCache = 256
	}
	if cfg.MCP.RateLimit.RequestsPerMinute <= 0 {
		cfg.MCP.RateLimit.RequestsPerMinute = 600
	}
	if cfg.MCP.RateLimit.Burst <= 0 {
		cfg.MCP.RateLimit.Burst = 20
	}
	if cfg.MCP.RateLimit.SSERequestsPerMinute <= 0 {
		cfg.MCP.RateLimit.SSERequestsPerMinute = 300
	}
	if cfg.MCP.RateLimit.SSEConnectionsPerMinute <= 0 {
		cfg.MCP.RateLimit.SSEConnectionsPerMinute = 30
	}

	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = ".toolhost/history.db"
	}
	if cfg.History.QueueCapacity <= 0 {
		cfg.History.QueueCapacity = 1024
	}
	if cfg.History.BatchSize <= 0 {
		cfg.History.BatchSize = 32
	}
	if cfg.History.FlushInterval <= 0 {
		cfg.History.FlushInterval = 250 * time.Millisecond
	}

	if strings.TrimSpace(cfg.Observability.Address) == "" {
		cfg.Observability.Address = "127.0.0.1:9464"
	}

	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = 100 * time.Millisecond
	}
}

func normalizeSession(cfg *Config) {
	cfg.Session.Project = strings.TrimSpace(cfg.Session.Project)
	cfg.Session.Context = strings.TrimSpace(cfg.Session.Context)
	cfg.Session.Modes = trimList(cfg.Session.Modes)
	cfg.Session.PolicyDirs = trimList(cfg.Session.PolicyDirs)
	cfg.Catalog.OpenAPISpec = strings.TrimSpace(cfg.Catalog.OpenAPISpec)
	cfg.Catalog.Operations = trimList(cfg.Catalog.Operations)
}

func normalizeMCP(cfg *Config) {
	cfg.MCP.Transport = strings.ToLower(strings.TrimSpace(cfg.MCP.Transport))
	cfg.MCP.Address = strings.TrimSpace(cfg.MCP.Address)
	cfg.MCP.ServerName = strings.TrimSpace(cfg.MCP.ServerName)
	cfg.MCP.ServerVersion = strings.TrimSpace(cfg.MCP.ServerVersion)
	cfg.MCP.SchemaProfile = strings.ToLower(strings.TrimSpace(cfg.MCP.SchemaProfile))
	cfg.Observability.Address = strings.TrimSpace(cfg.Observability.Address)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)
}

func trimList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
