package schema

import (
	"encoding/json"
	"fmt"

	"toolhost/internal/tools"

	"github.com/google/jsonschema-go/jsonschema"
)

// ToolDefinition is the wire descriptor returned by tools/list.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

// BuildInputSchema derives the object schema for a parameter list.
func BuildInputSchema(params []tools.Parameter) map[string]any {
	properties := make(map[string]any, len(params))
	required := make([]any, 0)
	for _, p := range params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.HasDefault() {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// ToJSONSchema converts a schema tree into the SDK schema type.
func ToJSONSchema(m map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode input schema: %w", err)
	}
	var out jsonschema.Schema
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	return &out, nil
}
