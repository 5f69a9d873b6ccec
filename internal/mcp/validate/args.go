package validate

import (
	"encoding/json"
	"fmt"
	"strings"

	"toolhost/internal/core/errors"
	"toolhost/internal/tools"
)

// Arguments checks raw call arguments against a parameter list. Absent or
// null values take the parameter default; a required parameter with neither
// fails. Values are coerced to the declared type. Names not declared are
// dropped.
func Arguments(params []tools.Parameter, raw map[string]any) (tools.Arguments, error) {
	out := make(tools.Arguments, len(params))
	for _, p := range params {
		value, present := raw[p.Name]
		if !present || value == nil {
			if p.HasDefault() {
				def, err := tools.Coerce(p.Type, p.Default)
				if err != nil {
					return nil, invalid(p.Name, fmt.Sprintf("parameter %s: default: %v", p.Name, err))
				}
				out[p.Name] = def
				continue
			}
			if p.Required {
				return nil, invalid(p.Name, fmt.Sprintf("Required parameter %s is missing", p.Name))
			}
			continue
		}

		coerced, err := tools.Coerce(p.Type, value)
		if err != nil {
			return nil, invalid(p.Name, fmt.Sprintf("parameter %s: %v", p.Name, err))
		}
		out[p.Name] = coerced
	}
	return out, nil
}

// DecodeRaw parses a JSON object of arguments. Empty input yields an empty map.
func DecodeRaw(data []byte) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, invalid("", "arguments must be a JSON object")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func invalid(param, msg string) error {
	err := errors.New(errors.CodeValidationError, msg)
	if param != "" {
		err = errors.AddContext(err, errors.CtxParameter, param)
	}
	return err
}
