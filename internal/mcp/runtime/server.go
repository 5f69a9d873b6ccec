package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"toolhost/internal/core/config"
	"toolhost/internal/core/watcher"
	"toolhost/internal/data/history"
	"toolhost/internal/mcp/transport"
	"toolhost/internal/policy"
	"toolhost/internal/shared/observability"

	"golang.org/x/sync/errgroup"
)

type Dependencies struct {
	Logger     *slog.Logger
	ConfigPath string
	// Transport replaces the one named by the configuration.
	Transport transport.Adapter
	Stdin     io.Reader
	Stdout    io.Writer
}

// Server runs one session behind one transport, plus the optional
// observability endpoint and config watcher.
type Server struct {
	cfg       *config.Config
	deps      Dependencies
	session   *Session
	transport transport.Adapter
	logger    *slog.Logger

	recorder        *history.Recorder
	store           *history.Store
	tracingShutdown func(context.Context) error

	mu       sync.Mutex
	running  bool
	stopOnce sync.Once
	stopErr  error
}

func New(cfg *config.Config, deps Dependencies, session *Session, adapter transport.Adapter) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		deps:      deps,
		session:   session,
		transport: adapter,
		logger:    deps.Logger,
	}, nil
}

func (s *Server) Session() *Session {
	return s.session
}

func (s *Server) Transport() transport.Adapter {
	return s.transport
}

// HistoryStore is nil unless call history is enabled.
func (s *Server) HistoryStore() *history.Store {
	return s.store
}

// Start serves until ctx is done or the transport returns. The
// observability server and the config watcher stop with the transport.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	status := s.session.Status()
	s.logger.Info("mcp runtime active",
		"transport", s.cfg.MCP.Transport,
		"project", status.Project,
		"context", status.Context,
		"modes", status.Modes,
		"visible_tools", status.VisibleTools,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if s.cfg.Watch.Enabled && s.deps.ConfigPath != "" {
		cw := config.NewWatcher(s.deps.ConfigPath, s.cfg.Watch.Debounce, s.logger, s.onConfigReload)
		if err := cw.Start(gctx); err != nil {
			s.logger.Warn("config watcher unavailable", "path", s.deps.ConfigPath, "error", err)
		} else {
			defer cw.Stop()
		}
	}

	if s.cfg.Watch.Enabled {
		if w := s.watchPolicyDirs(); w != nil {
			defer w.Close()
		}
	}

	g.Go(func() error {
		defer cancel()
		err := s.transport.Start(gctx, s.session)
		if stderrors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if s.cfg.Observability.Enabled {
		obs := observability.NewServer(s.cfg.Observability.Address, s.health, s.logger)
		g.Go(func() error {
			return obs.Start(gctx)
		})
	}

	return g.Wait()
}

func (s *Server) onConfigReload(cfg *config.Config) {
	if err := s.session.SwitchPolicy(cfg.Session.Context, cfg.Session.Modes); err != nil {
		s.logger.Error("policy reload failed", "error", err)
		return
	}
	s.logger.Info("policy reloaded from config", "path", s.deps.ConfigPath)
}

// watchPolicyDirs re-resolves the session whenever an authored context or
// mode file changes.
func (s *Server) watchPolicyDirs() *watcher.Watcher {
	w, err := watcher.New(s.cfg.Watch.Debounce, policy.FilePatterns(), s.logger, s.onPolicyFilesChanged)
	if err != nil {
		s.logger.Warn("policy watcher unavailable", "error", err)
		return nil
	}
	watched, err := w.Watch(s.session.Project().PolicyDirs)
	if err != nil {
		s.logger.Warn("policy watcher unavailable", "error", err)
		_ = w.Close()
		return nil
	}
	s.logger.Debug("policy watcher started", "dirs", watched)
	return w
}

func (s *Server) onPolicyFilesChanged(paths []string) {
	if err := s.session.Refresh(); err != nil {
		s.logger.Error("policy refresh failed", "error", err)
		return
	}
	s.logger.Info("policy refreshed from files", "changed", paths)
}

func (s *Server) health(context.Context) map[string]any {
	status := s.session.Status()
	return map[string]any{
		"project":          status.Project,
		"context":          status.Context,
		"modes":            status.Modes,
		"registered_tools": status.RegisteredTools,
		"visible_tools":    status.VisibleTools,
	}
}

// Stop stops the transport and releases the session, the history pipeline
// and the tracer. It is safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var errs []error
		if err := s.transport.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop transport: %w", err))
		}
		if err := s.session.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tool cleanup: %w", err))
		}
		if s.recorder != nil {
			if err := s.recorder.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("drain history: %w", err))
			}
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close history: %w", err))
			}
		}
		if s.tracingShutdown != nil {
			if err := s.tracingShutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
			}
		}
		s.stopErr = stderrors.Join(errs...)
	})
	return s.stopErr
}
