// Package capability computes which registered tools a session may see from a
// context and an ordered list of active modes.
package capability

import (
	"log/slog"
	"strings"

	"toolhost/internal/policy"

	"github.com/gobwas/glob"
)

// Lister enumerates registered tool names in a stable order.
type Lister interface {
	List() []string
}

// Resolve applies, in order:
//
//	base    = context whitelist, or every registered tool when it is empty
//	deny    = union of every mode's disabled_tools
//	allow   = union of every non-empty enabled_tools
//	visible = (base ∩ allow) − deny, or base − deny when no mode enables anything
//
// Settings are the context settings overlaid with each mode's settings in
// activation order. Resolution never fails; entries that match nothing are
// logged.
func Resolve(reg Lister, ctx policy.Context, modes []policy.Mode, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	registered := reg.List()

	var base map[string]bool
	if len(ctx.Tools) > 0 {
		base = expand(registered, ctx.Tools, logger, "context", ctx.Name)
	}

	deny := make(map[string]bool)
	var allow map[string]bool
	for _, m := range modes {
		for name := range expand(registered, m.DisabledTools, nil, "mode", m.Name) {
			deny[name] = true
		}
		if len(m.EnabledTools) == 0 {
			continue
		}
		if allow == nil {
			allow = make(map[string]bool)
		}
		for name := range expand(registered, m.EnabledTools, logger, "mode", m.Name) {
			allow[name] = true
		}
	}

	visible := make([]string, 0, len(registered))
	for _, name := range registered {
		if base != nil && !base[name] {
			continue
		}
		if allow != nil && !allow[name] {
			continue
		}
		if deny[name] {
			continue
		}
		visible = append(visible, name)
	}

	settings := make(map[string]any, len(ctx.Settings))
	for k, v := range ctx.Settings {
		settings[k] = v
	}
	for _, m := range modes {
		for k, v := range m.Settings {
			settings[k] = v
		}
	}

	set := newSet(visible, ctx.Name, policy.ModeNames(modes), settings)
	if len(visible) == 0 && len(registered) > 0 {
		logger.Warn("capability resolution produced no visible tools", "context", ctx.Name, "modes", set.Modes())
	}
	logger.Debug("capabilities resolved", "context", ctx.Name, "modes", set.Modes(), "visible", len(visible), "registered", len(registered))
	return set
}

// expand turns policy entries into registered names. Entries with glob
// metacharacters are matched as patterns; other entries are exact names.
// Unmatched entries are logged when logger is non-nil.
func expand(registered []string, entries []string, logger *slog.Logger, kind, owner string) map[string]bool {
	known := make(map[string]bool, len(registered))
	for _, name := range registered {
		known[name] = true
	}

	out := make(map[string]bool, len(entries))
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if !hasGlobMeta(entry) {
			if known[entry] {
				out[entry] = true
			} else if logger != nil {
				logger.Warn("policy references unregistered tool", kind, owner, "tool", entry)
			}
			continue
		}

		pattern, err := glob.Compile(entry)
		if err != nil {
			if logger != nil {
				logger.Warn("invalid tool pattern", kind, owner, "pattern", entry, "error", err)
			}
			continue
		}
		matched := false
		for _, name := range registered {
			if pattern.Match(name) {
				out[name] = true
				matched = true
			}
		}
		if !matched && logger != nil {
			logger.Warn("tool pattern matched nothing", kind, owner, "pattern", entry)
		}
	}
	return out
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
