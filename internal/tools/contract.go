// Package tools defines the tool contract and the copy-on-write registry that
// holds every tool a server knows about, visible or not.
package tools

import (
	"context"
	"fmt"
	"strings"
)

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

func (t ParamType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return true
	default:
		return false
	}
}

// Parameter describes one named input of a tool. A nil Default means the
// parameter has no default.
type Parameter struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required" yaml:"required"`
	Default     any       `json:"default,omitempty" yaml:"default,omitempty"`
}

func (p Parameter) HasDefault() bool {
	return p.Default != nil
}

// Arguments are validated, coerced call arguments keyed by parameter name.
type Arguments map[string]any

func (a Arguments) String(name string) string {
	v, _ := a[name].(string)
	return v
}

func (a Arguments) Int(name string) int64 {
	v, _ := a[name].(int64)
	return v
}

func (a Arguments) Float(name string) float64 {
	v, _ := a[name].(float64)
	return v
}

func (a Arguments) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

// Executor runs a tool. Implementations must honour ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, rc *RequestContext, args Arguments) (any, error)
}

type ExecutorFunc func(ctx context.Context, rc *RequestContext, args Arguments) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, rc *RequestContext, args Arguments) (any, error) {
	return f(ctx, rc, args)
}

// Cleaner is implemented by executors holding resources released on shutdown.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Contract is the registered description of a tool together with its executor.
type Contract struct {
	Name        string
	Description string
	Categories  []string
	Parameters  []Parameter
	Executor    Executor
}

// Tool is implemented by anything that can describe itself as a Contract.
type Tool interface {
	Contract() Contract
}

func (c Contract) Contract() Contract {
	return c
}

func (c Contract) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("tool name is required")
	}
	if c.Executor == nil {
		return fmt.Errorf("tool %q: executor is required", c.Name)
	}
	seen := make(map[string]bool, len(c.Parameters))
	for i, p := range c.Parameters {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("tool %q: parameters[%d].name must not be empty", c.Name, i)
		}
		if !p.Type.Valid() {
			return fmt.Errorf("tool %q: parameter %q has unsupported type %q", c.Name, p.Name, p.Type)
		}
		if seen[p.Name] {
			return fmt.Errorf("tool %q: duplicate parameter %q", c.Name, p.Name)
		}
		if p.HasDefault() {
			if _, err := Coerce(p.Type, p.Default); err != nil {
				return fmt.Errorf("tool %q: parameter %q default: %w", c.Name, p.Name, err)
			}
		}
		seen[p.Name] = true
	}
	return nil
}

func (c Contract) Parameter(name string) (Parameter, bool) {
	for _, p := range c.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

func (c Contract) InCategory(category string) bool {
	for _, cat := range c.Categories {
		if strings.EqualFold(cat, category) {
			return true
		}
	}
	return false
}

func (c Contract) clone() Contract {
	out := c
	out.Parameters = append([]Parameter(nil), c.Parameters...)
	out.Categories = append([]string(nil), c.Categories...)
	return out
}
