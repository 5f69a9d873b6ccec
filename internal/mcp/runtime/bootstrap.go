package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"toolhost/internal/core/config"
	"toolhost/internal/core/errors"
	"toolhost/internal/data/history"
	"toolhost/internal/mcp/openapi"
	"toolhost/internal/mcp/schema"
	"toolhost/internal/mcp/transport"
	"toolhost/internal/policy"
	"toolhost/internal/shared/observability"
	"toolhost/internal/tools"
)

// Build wires a Server from configuration: project paths, the tool catalogue,
// call history, the session and the transport.
func Build(ctx context.Context, cfg *config.Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger

	project, err := ResolveProjectContext(cfg, deps.ConfigPath)
	if err != nil {
		return nil, err
	}

	var (
		store    *history.Store
		recorder *history.Recorder
	)
	cleanup := func() {
		if recorder != nil {
			_ = recorder.Close(context.Background())
		}
		if store != nil {
			_ = store.Close()
		}
	}

	if cfg.History.Enabled {
		store, err = history.Open(project.HistoryPath)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		recorder = history.NewRecorder(store, history.RecorderOptions{
			Capacity:      cfg.History.QueueCapacity,
			BatchSize:     cfg.History.BatchSize,
			FlushInterval: cfg.History.FlushInterval,
			Logger:        logger,
		})
		recorder.Start()
	}

	opts := SessionOptions{Project: project, Logger: logger}
	if recorder != nil {
		opts.Recorder = recorder
	}
	session, err := BuildSession(ctx, cfg, project, opts)
	if err != nil {
		cleanup()
		return nil, err
	}

	adapter := deps.Transport
	if adapter == nil {
		adapter, err = buildTransport(cfg, deps)
		if err != nil {
			cleanup()
			return nil, err
		}
	}
	if syncer, ok := adapter.(transport.Syncer); ok {
		if err := session.AddSyncer(syncer); err != nil {
			cleanup()
			return nil, fmt.Errorf("sync transport tools: %w", err)
		}
	}

	server, err := New(cfg, deps, session, adapter)
	if err != nil {
		cleanup()
		return nil, err
	}
	server.store = store
	server.recorder = recorder

	if cfg.Observability.Enabled && cfg.Observability.EnableTracing {
		shutdown, err := observability.SetupTracing(ctx, cfg.Observability.OTLPEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			server.tracingShutdown = shutdown
		}
	}
	return server, nil
}

// BuildSession builds the registry and resolves the configured policy.
// Fields already set in opts take precedence over the configuration.
func BuildSession(ctx context.Context, cfg *config.Config, project ProjectContext, opts SessionOptions) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		reg, err := BuildRegistry(ctx, cfg, project, opts.Logger)
		if err != nil {
			return nil, err
		}
		opts.Registry = reg
	}
	if opts.Sanitizer == nil {
		profile, err := schema.ParseProfile(cfg.MCP.SchemaProfile)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeFatalStartup, "schema profile")
		}
		opts.Sanitizer = schema.NewSanitizer(profile, cfg.MCP.SchemaCache)
	}
	if opts.Loader == nil {
		opts.Loader = policy.NewLoader(policy.BuiltinCatalog(), project.PolicyDirs, opts.Logger)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = cfg.MCP.RequestTimeout
	}
	opts.Project = project
	return NewSession(cfg.Session.Context, cfg.Session.Modes, opts)
}

// BuildRegistry registers the built-in catalogue and any operations imported
// from the configured OpenAPI document.
func BuildRegistry(ctx context.Context, cfg *config.Config, project ProjectContext, logger *slog.Logger) (*tools.Registry, error) {
	reg := tools.NewRegistry(logger)
	if !cfg.Catalog.DisableBuiltins {
		if err := tools.RegisterBuiltins(reg); err != nil {
			return nil, errors.Wrap(err, errors.CodeFatalStartup, "register built-in tools")
		}
	}
	if project.OpenAPISpec == "" {
		return reg, nil
	}

	spec, err := openapi.LoadSpec(ctx, project.OpenAPISpec)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFatalStartup, "load openapi catalogue")
	}
	contracts, err := openapi.Contracts(spec)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFatalStartup, "convert openapi catalogue")
	}
	contracts = openapi.ApplyAllowlist(contracts, cfg.Catalog.Operations)
	if len(contracts) == 0 {
		return nil, errors.New(errors.CodeFatalStartup, "openapi catalogue produced zero allowlisted operations")
	}
	for _, c := range contracts {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, errors.CodeFatalStartup, "register openapi tool")
		}
	}
	logger.Info("openapi catalogue loaded", "source", project.OpenAPISpec, "tools", len(contracts))
	return reg, nil
}

func buildTransport(cfg *config.Config, deps Dependencies) (transport.Adapter, error) {
	opts := transport.Options{
		ServerName:    cfg.MCP.ServerName,
		ServerVersion: cfg.MCP.ServerVersion,
		RateLimit:     cfg.MCP.RateLimit,
		MaxConcurrent: cfg.MCP.MaxConcurrent,
		Logger:        deps.Logger,
	}
	name := strings.ToLower(strings.TrimSpace(cfg.MCP.Transport))
	switch name {
	case "", config.TransportStdio:
		return transport.NewStdio(opts, deps.Stdin, deps.Stdout)
	case config.TransportSSE:
		return transport.NewSSE(cfg.MCP.Address, opts)
	case config.TransportSDK:
		return transport.NewSDK(opts, "")
	case config.TransportHTTP:
		return transport.NewSDK(opts, cfg.MCP.Address)
	default:
		return nil, fmt.Errorf("unsupported MCP transport: %s", name)
	}
}
