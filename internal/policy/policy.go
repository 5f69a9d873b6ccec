// Package policy holds contexts and modes: the two layers that decide which
// tools a session may see. It ships the built-in presets and reads and writes
// policy files.
package policy

import "toolhost/internal/shared/util"

const (
	DefaultContext = "default"
	DefaultMode    = "interactive"
)

// DefaultModes are activated when no mode is requested.
var DefaultModes = []string{"interactive", "editing"}

// Context is the base layer. An empty Tools whitelist admits every registered tool.
type Context struct {
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description" yaml:"description"`
	Settings       map[string]any `json:"settings" yaml:"settings"`
	Tools          []string       `json:"tools" yaml:"tools"`
	MemorySettings map[string]any `json:"memory_settings" yaml:"memory_settings"`
}

// Mode is an overlay applied on top of a context.
type Mode struct {
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description" yaml:"description"`
	EnabledTools  []string       `json:"enabled_tools" yaml:"enabled_tools"`
	DisabledTools []string       `json:"disabled_tools" yaml:"disabled_tools"`
	Settings      map[string]any `json:"settings" yaml:"settings"`
}

func (c Context) clone() Context {
	out := c
	out.Tools = append([]string(nil), c.Tools...)
	out.Settings = util.CloneMap(c.Settings)
	out.MemorySettings = util.CloneMap(c.MemorySettings)
	return out
}

func (m Mode) clone() Mode {
	out := m
	out.EnabledTools = append([]string(nil), m.EnabledTools...)
	out.DisabledTools = append([]string(nil), m.DisabledTools...)
	out.Settings = util.CloneMap(m.Settings)
	return out
}

// ModeNames returns the names of modes in activation order.
func ModeNames(modes []Mode) []string {
	out := make([]string, 0, len(modes))
	for _, m := range modes {
		out = append(out, m.Name)
	}
	return out
}
