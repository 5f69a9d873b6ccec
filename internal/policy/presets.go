package policy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"toolhost/internal/core/errors"
)

func builtinContexts() []Context {
	return []Context{
		{
			Name:        "default",
			Description: "Default context with common symbol and search tools",
			Tools:       []string{"find_symbol", "get_symbols_overview", "search_for_pattern"},
			Settings:    map[string]any{"max_results": 100, "timeout": 30},
		},
		{
			Name:        "minimal",
			Description: "Minimal context with essential tools only",
			Tools:       []string{"find_symbol", "search_for_pattern"},
			Settings:    map[string]any{"max_results": 50, "timeout": 15},
		},
		{
			Name:        "full",
			Description: "Full context with every registered tool",
			Tools:       []string{},
			Settings:    map[string]any{"max_results": 500, "timeout": 60},
		},
	}
}

func builtinModes() []Mode {
	return []Mode{
		{
			Name:         "interactive",
			Description:  "Interactive mode for conversational use",
			EnabledTools: []string{"ask_user", "show_message"},
			Settings:     map[string]any{"interactive": true, "auto_confirm": false},
		},
		{
			Name:         "editing",
			Description:  "Editing mode allowing file and symbol changes",
			EnabledTools: []string{"edit_symbol", "create_file", "delete_file"},
			Settings:     map[string]any{"backup_files": true, "validate_syntax": true},
		},
		{
			Name:          "analysis",
			Description:   "Read-only analysis mode",
			EnabledTools:  []string{"analyze_code", "generate_report"},
			DisabledTools: []string{"edit_symbol", "create_file", "delete_file"},
			Settings:      map[string]any{"deep_analysis": true, "generate_metrics": true},
		},
		{
			Name:         "monitoring",
			Description:  "Monitoring mode for watching project changes",
			EnabledTools: []string{"watch_files", "track_changes"},
			Settings:     map[string]any{"watch_interval": 1.0, "auto_refresh": true},
		},
	}
}

// Catalog holds named contexts and modes resolvable without a file.
type Catalog struct {
	mu       sync.RWMutex
	contexts map[string]Context
	modes    map[string]Mode
}

func NewCatalog() *Catalog {
	return &Catalog{
		contexts: make(map[string]Context),
		modes:    make(map[string]Mode),
	}
}

// BuiltinCatalog returns a catalog seeded with the built-in presets.
func BuiltinCatalog() *Catalog {
	c := NewCatalog()
	for _, ctx := range builtinContexts() {
		c.AddContext(ctx)
	}
	for _, m := range builtinModes() {
		c.AddMode(m)
	}
	return c
}

func (c *Catalog) AddContext(ctx Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contexts[key(ctx.Name)] = ctx.clone()
}

func (c *Catalog) AddMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modes[key(m.Name)] = m.clone()
}

func (c *Catalog) Context(name string) (Context, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctx, ok := c.contexts[key(name)]
	if !ok {
		return Context{}, false
	}
	return ctx.clone(), true
}

func (c *Catalog) Mode(name string) (Mode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.modes[key(name)]
	if !ok {
		return Mode{}, false
	}
	return m.clone(), true
}

func (c *Catalog) ContextNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.contexts))
	for _, ctx := range c.contexts {
		out = append(out, ctx.Name)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) ModeNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.modes))
	for _, m := range c.modes {
		out = append(out, m.Name)
	}
	sort.Strings(out)
	return out
}

// Validate checks that the fallback presets exist. Without them unknown
// references cannot be resolved, so this is a startup failure.
func (c *Catalog) Validate() error {
	if _, ok := c.Context(DefaultContext); !ok {
		return errors.New(errors.CodeFatalStartup, fmt.Sprintf("catalog is missing the %q context", DefaultContext))
	}
	if _, ok := c.Mode(DefaultMode); !ok {
		return errors.New(errors.CodeFatalStartup, fmt.Sprintf("catalog is missing the %q mode", DefaultMode))
	}
	return nil
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
