package runtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"toolhost/internal/capability"
	"toolhost/internal/core/errors"
	"toolhost/internal/mcp/adapters"
	"toolhost/internal/mcp/schema"
	"toolhost/internal/mcp/transport"
	"toolhost/internal/policy"
	"toolhost/internal/shared/observability"
	"toolhost/internal/tools"
)

type SessionOptions struct {
	Registry       *tools.Registry
	Loader         *policy.Loader
	Sanitizer      *schema.Sanitizer
	Recorder       adapters.Recorder
	Project        ProjectContext
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Session owns the tool registry and the active policy. The adapter serving
// calls is swapped whole on every policy change, so in-flight calls finish
// against the adapter they started on.
type Session struct {
	registry  *tools.Registry
	loader    *policy.Loader
	sanitizer *schema.Sanitizer
	recorder  adapters.Recorder
	project   ProjectContext
	timeout   time.Duration
	logger    *slog.Logger

	active atomic.Pointer[adapters.Adapter]

	mu         sync.Mutex
	contextRef string
	modeRefs   []string
	syncers    []transport.Syncer
	closed     bool
}

// Status summarizes a session for operators and the status command.
type Status struct {
	Project         string   `json:"project"`
	Root            string   `json:"root"`
	Context         string   `json:"context"`
	Modes           []string `json:"modes"`
	SchemaProfile   string   `json:"schema_profile"`
	RegisteredTools int      `json:"registered_tools"`
	VisibleTools    int      `json:"visible_tools"`
	Tools           []string `json:"tools"`
}

// NewSession resolves the initial policy. A missing registry or a preset
// catalog without its defaults is fatal.
func NewSession(contextRef string, modeRefs []string, opts SessionOptions) (*Session, error) {
	if opts.Registry == nil {
		return nil, errors.New(errors.CodeFatalStartup, "tool registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loader := opts.Loader
	if loader == nil {
		loader = policy.NewLoader(policy.BuiltinCatalog(), opts.Project.PolicyDirs, logger)
	}
	if err := loader.Catalog().Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeFatalStartup, "policy catalog")
	}
	sanitizer := opts.Sanitizer
	if sanitizer == nil {
		sanitizer = schema.NewSanitizer(schema.ProfileDefault, 0)
	}

	s := &Session{
		registry:  opts.Registry,
		loader:    loader,
		sanitizer: sanitizer,
		recorder:  opts.Recorder,
		project:   opts.Project,
		timeout:   opts.RequestTimeout,
		logger:    logger,
	}
	if err := s.SwitchPolicy(contextRef, modeRefs); err != nil {
		return nil, err
	}
	return s, nil
}

// SwitchPolicy resolves a new context and mode list and publishes the
// resulting adapter. Unknown references fall back to the defaults.
func (s *Session) SwitchPolicy(contextRef string, modeRefs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switchLocked(contextRef, modeRefs)
}

// switchLocked requires s.mu.
func (s *Session) switchLocked(contextRef string, modeRefs []string) error {
	ctx := s.loader.Context(contextRef)
	modes := s.loader.Modes(modeRefs)
	set := capability.Resolve(s.registry, ctx, modes, s.logger)

	adapter, err := adapters.New(s.registry, set, adapters.Options{
		Sanitizer:      s.sanitizer,
		Session:        tools.Session{Project: s.project.Name, Root: s.project.Root},
		DefaultTimeout: s.timeout,
		Recorder:       s.recorder,
		Logger:         s.logger,
	})
	if err != nil {
		observability.PolicyReloadsTotal.WithLabelValues("error").Inc()
		return err
	}

	previous := s.active.Swap(adapter)
	s.contextRef = contextRef
	s.modeRefs = append([]string(nil), modeRefs...)

	observability.PolicyReloadsTotal.WithLabelValues("success").Inc()
	observability.VisibleTools.Set(float64(set.Len()))
	observability.RegisteredTools.Set(float64(s.registry.Len()))

	if previous != nil {
		s.logger.Info("policy switched",
			"context", set.Context(),
			"modes", set.Modes(),
			"visible", set.Len(),
		)
	}
	s.syncLocked()
	return nil
}

// Refresh re-resolves the current policy, picking up registry and policy
// file changes. The references are read under the same lock that publishes
// the result, so a concurrent SwitchPolicy is never undone.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switchLocked(s.contextRef, append([]string(nil), s.modeRefs...))
}

// Register adds or replaces a tool and refreshes the visible set.
func (s *Session) Register(tool tools.Tool) error {
	if err := s.registry.Register(tool); err != nil {
		return err
	}
	return s.Refresh()
}

// Unregister removes a tool and refreshes the visible set.
func (s *Session) Unregister(name string) (bool, error) {
	if !s.registry.Unregister(name) {
		return false, nil
	}
	return true, s.Refresh()
}

// AddSyncer registers a transport to be told about every policy change. It
// is synced immediately.
func (s *Session) AddSyncer(syncer transport.Syncer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncers = append(s.syncers, syncer)
	return syncer.Sync(s)
}

func (s *Session) syncLocked() {
	for _, syncer := range s.syncers {
		if err := syncer.Sync(s); err != nil {
			s.logger.Warn("transport tool sync failed", "error", err)
		}
	}
}

func (s *Session) Adapter() *adapters.Adapter {
	return s.active.Load()
}

func (s *Session) Registry() *tools.Registry {
	return s.registry
}

func (s *Session) Loader() *policy.Loader {
	return s.loader
}

func (s *Session) Project() ProjectContext {
	return s.project
}

// ListTools implements transport.Dispatcher against the active adapter.
func (s *Session) ListTools() []schema.ToolDefinition {
	return s.active.Load().Tools()
}

// CallTool implements transport.Dispatcher against the active adapter.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	return s.active.Load().Call(ctx, name, args)
}

func (s *Session) Status() Status {
	adapter := s.active.Load()
	set := adapter.Set()
	return Status{
		Project:         s.project.Name,
		Root:            s.project.Root,
		Context:         set.Context(),
		Modes:           set.Modes(),
		SchemaProfile:   string(adapter.Profile()),
		RegisteredTools: s.registry.Len(),
		VisibleTools:    len(adapter.Names()),
		Tools:           adapter.Names(),
	}
}

// Close runs tool cleanup hooks once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	return s.registry.Cleanup(ctx)
}
