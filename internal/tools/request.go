package tools

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Session identifies the owning session of a call.
type Session struct {
	Project string
	Root    string
	Context string
	Modes   []string
}

// RequestContext is created fresh for every invocation and never shared
// between calls.
type RequestContext struct {
	CallID    string
	Tool      string
	Session   Session
	Settings  map[string]any
	StartedAt time.Time
}

func NewRequestContext(tool string, session Session, settings map[string]any) *RequestContext {
	copied := make(map[string]any, len(settings))
	for k, v := range settings {
		copied[k] = v
	}
	session.Modes = append([]string(nil), session.Modes...)
	return &RequestContext{
		CallID:    ulid.Make().String(),
		Tool:      tool,
		Session:   session,
		Settings:  copied,
		StartedAt: time.Now(),
	}
}

func (rc *RequestContext) Setting(key string) (any, bool) {
	if rc == nil {
		return nil, false
	}
	v, ok := rc.Settings[key]
	return v, ok
}
