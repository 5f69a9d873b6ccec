package openapi

import (
	"fmt"
	"sort"
	"strings"

	"toolhost/internal/core/errors"
	"toolhost/internal/tools"

	"github.com/getkin/kin-openapi/openapi3"
)

// Contracts converts every operation into a placeholder contract named after
// its operationId. Path, query and header parameters come first, followed by
// the top-level properties of an application/json object request body.
// Contracts are returned sorted by name.
func Contracts(spec *openapi3.T) ([]tools.Contract, error) {
	if spec == nil {
		return nil, errors.New(errors.CodeConfiguration, "openapi spec is nil")
	}
	if spec.Paths == nil || spec.Paths.Len() == 0 {
		return nil, errors.New(errors.CodeConfiguration, "openapi spec has no paths")
	}

	out := make([]tools.Contract, 0, spec.Paths.Len())
	seen := make(map[string]string)
	for path, item := range spec.Paths.Map() {
		if item == nil {
			continue
		}
		for method, op := range item.Operations() {
			if op == nil {
				continue
			}
			where := fmt.Sprintf("%s %s", strings.ToUpper(method), path)
			name, err := ToolName(op.OperationID)
			if err != nil {
				return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("operation %s: %v", where, err))
			}
			if prev, dup := seen[name]; dup {
				return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("operations %s and %s both map to tool %q", prev, where, name))
			}
			seen[name] = where

			refs := make(openapi3.Parameters, 0, len(item.Parameters)+len(op.Parameters))
			refs = append(append(refs, item.Parameters...), op.Parameters...)
			params, err := operationParameters(refs, op.RequestBody)
			if err != nil {
				return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("operation %s (%s): %v", name, where, err))
			}

			out = append(out, tools.Contract{
				Name:        name,
				Description: describe(op, method, path),
				Categories:  append([]string(nil), op.Tags...),
				Parameters:  params,
				Executor:    tools.PlaceholderExecutor(name),
			})
		}
	}

	if len(out) == 0 {
		return nil, errors.New(errors.CodeConfiguration, "openapi spec produced zero operations")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ToolName maps an operationId onto a tool name: lower case, with dots and
// dashes folded to underscores.
func ToolName(operationID string) (string, error) {
	id := strings.TrimSpace(operationID)
	if id == "" {
		return "", fmt.Errorf("missing operationId")
	}
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '.' || r == '-':
			b.WriteByte('_')
		default:
			return "", fmt.Errorf("operationId %q contains %q", operationID, r)
		}
	}
	return b.String(), nil
}

func describe(op *openapi3.Operation, method, path string) string {
	if s := strings.TrimSpace(op.Summary); s != "" {
		return s
	}
	if d := strings.TrimSpace(op.Description); d != "" {
		return d
	}
	return fmt.Sprintf("%s %s", strings.ToUpper(method), path)
}

func operationParameters(refs openapi3.Parameters, body *openapi3.RequestBodyRef) ([]tools.Parameter, error) {
	out := make([]tools.Parameter, 0, len(refs))
	index := make(map[string]int)
	add := func(p tools.Parameter) {
		if i, ok := index[p.Name]; ok {
			out[i] = p
			return
		}
		index[p.Name] = len(out)
		out = append(out, p)
	}

	for _, ref := range refs {
		if ref == nil || ref.Value == nil {
			continue
		}
		p := ref.Value
		if p.In == openapi3.ParameterInCookie {
			continue
		}
		param := tools.Parameter{
			Name:        p.Name,
			Type:        tools.TypeString,
			Description: strings.TrimSpace(p.Description),
			Required:    p.Required || p.In == openapi3.ParameterInPath,
		}
		if p.Schema != nil && p.Schema.Value != nil {
			param.Type = paramType(p.Schema.Value)
			param.Default = p.Schema.Value.Default
			if param.Description == "" {
				param.Description = strings.TrimSpace(p.Schema.Value.Description)
			}
		}
		add(param)
	}

	bodyParams, err := requestBodyParameters(body)
	if err != nil {
		return nil, err
	}
	for _, p := range bodyParams {
		add(p)
	}
	return out, nil
}

func requestBodyParameters(body *openapi3.RequestBodyRef) ([]tools.Parameter, error) {
	if body == nil {
		return nil, nil
	}
	if body.Value == nil {
		return nil, fmt.Errorf("requestBody is empty")
	}
	content := body.Value.Content.Get("application/json")
	if content == nil || content.Schema == nil || content.Schema.Value == nil {
		return nil, fmt.Errorf("requestBody must define an application/json schema")
	}
	schema := content.Schema.Value
	if schema.Type != nil && !schema.Type.Is(openapi3.TypeObject) {
		return nil, fmt.Errorf("unsupported request body type %v (only object schemas are supported)", schema.Type.Slice())
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]tools.Parameter, 0, len(names))
	for _, name := range names {
		param := tools.Parameter{
			Name:     name,
			Type:     tools.TypeString,
			Required: required[name] && body.Value.Required,
		}
		if ref := schema.Properties[name]; ref != nil && ref.Value != nil {
			param.Type = paramType(ref.Value)
			param.Description = strings.TrimSpace(ref.Value.Description)
			param.Default = ref.Value.Default
		}
		out = append(out, param)
	}
	return out, nil
}

// paramType picks the first non-null declared type. Schemas without a type
// are treated as strings.
func paramType(s *openapi3.Schema) tools.ParamType {
	if s.Type == nil {
		return tools.TypeString
	}
	for _, t := range s.Type.Slice() {
		if t == openapi3.TypeNull {
			continue
		}
		if pt := tools.ParamType(t); pt.Valid() {
			return pt
		}
	}
	return tools.TypeString
}
