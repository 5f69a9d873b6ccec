package capability

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const SettingTimeout = "timeout"

// Set is an immutable snapshot of a resolution result.
type Set struct {
	visible  []string
	index    map[string]bool
	context  string
	modes    []string
	settings map[string]any
}

func newSet(visible []string, context string, modes []string, settings map[string]any) *Set {
	index := make(map[string]bool, len(visible))
	for _, name := range visible {
		index[name] = true
	}
	return &Set{
		visible:  visible,
		index:    index,
		context:  context,
		modes:    modes,
		settings: settings,
	}
}

func (s *Set) Contains(name string) bool {
	return s != nil && s.index[name]
}

// Visible returns visible names in registry order.
func (s *Set) Visible() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.visible...)
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.visible)
}

func (s *Set) Context() string {
	if s == nil {
		return ""
	}
	return s.context
}

func (s *Set) Modes() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.modes...)
}

// Settings returns a copy of the merged settings.
func (s *Set) Settings() map[string]any {
	out := make(map[string]any)
	if s == nil {
		return out
	}
	for k, v := range s.settings {
		out[k] = v
	}
	return out
}

func (s *Set) Setting(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.settings[key]
	return v, ok
}

// Timeout reads the "timeout" setting, expressed in seconds or as a Go
// duration string. It reports false when unset, unparseable or not positive.
func (s *Set) Timeout() (time.Duration, bool) {
	v, ok := s.Setting(SettingTimeout)
	if !ok {
		return 0, false
	}
	return ParseTimeout(v)
}

func ParseTimeout(v any) (time.Duration, bool) {
	var d time.Duration
	switch t := v.(type) {
	case int:
		d = time.Duration(t) * time.Second
	case int64:
		d = time.Duration(t) * time.Second
	case float64:
		d = time.Duration(t * float64(time.Second))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		d = time.Duration(f * float64(time.Second))
	case string:
		s := strings.TrimSpace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			d = time.Duration(f * float64(time.Second))
		} else if parsed, err := time.ParseDuration(s); err == nil {
			d = parsed
		} else {
			return 0, false
		}
	case time.Duration:
		d = t
	default:
		return 0, false
	}
	if d <= 0 {
		return 0, false
	}
	return d, true
}
