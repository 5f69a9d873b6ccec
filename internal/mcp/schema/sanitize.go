package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"toolhost/internal/shared/observability"
	"toolhost/internal/shared/util"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"
)

type Profile string

const (
	// ProfileDefault passes schemas through unchanged.
	ProfileDefault Profile = "default"
	// ProfileOpenAI rewrites schemas into the subset accepted by strict
	// OpenAI-style tool consumers.
	ProfileOpenAI Profile = "openai"
)

const defaultCacheSize = 256

func ParseProfile(raw string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "default", "none":
		return ProfileDefault, nil
	case "openai", "openai-compatible":
		return ProfileOpenAI, nil
	default:
		return "", fmt.Errorf("unsupported schema profile %q", raw)
	}
}

// Sanitizer rewrites tool input schemas for a profile. Results are memoized
// by a hash of the canonical JSON encoding of the input; callers always get a
// private copy.
type Sanitizer struct {
	profile Profile
	cache   *util.LRUCache[[32]byte, map[string]any]
	group   singleflight.Group
}

func NewSanitizer(profile Profile, cacheSize int) *Sanitizer {
	if profile == "" {
		profile = ProfileDefault
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	return &Sanitizer{
		profile: profile,
		cache:   util.NewLRUCache[[32]byte, map[string]any](cacheSize),
	}
}

func (s *Sanitizer) Profile() Profile {
	return s.profile
}

// Sanitize never mutates its input.
func (s *Sanitizer) Sanitize(schema map[string]any) (map[string]any, error) {
	canonical, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	if s.profile == ProfileDefault {
		return decode(canonical)
	}

	key := blake3.Sum256(canonical)
	if cached, ok := s.cache.Get(key); ok {
		observability.SchemaCacheHits.Inc()
		return deepCopy(cached).(map[string]any), nil
	}
	observability.SchemaCacheMisses.Inc()

	v, err, _ := s.group.Do(string(key[:]), func() (any, error) {
		tree, err := decode(canonical)
		if err != nil {
			return nil, err
		}
		sanitizeNode(tree)
		s.cache.Put(key, tree)
		return tree, nil
	})
	if err != nil {
		return nil, err
	}
	return deepCopy(v).(map[string]any), nil
}

// SanitizeOpenAI is the unmemoized OpenAI transform.
func SanitizeOpenAI(schema map[string]any) (map[string]any, error) {
	canonical, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	tree, err := decode(canonical)
	if err != nil {
		return nil, err
	}
	sanitizeNode(tree)
	return tree, nil
}

func decode(data []byte) (map[string]any, error) {
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return tree, nil
}

// sanitizeNode rewrites a freshly decoded node in place.
func sanitizeNode(node map[string]any) {
	switch t := node["type"].(type) {
	case string:
		if t == "integer" {
			node["type"] = "number"
			ensureMultipleOf(node)
		}
	case []any:
		node["type"] = normalizeUnion(node, t)
	}

	if values, ok := node["enum"].([]any); ok && len(values) > 0 && allIntegers(values) {
		converted := make([]any, len(values))
		for i, v := range values {
			converted[i] = v.(float64)
		}
		node["enum"] = converted
		if node["type"] == "integer" {
			node["type"] = "number"
			ensureMultipleOf(node)
		}
	}

	for _, key := range []string{"oneOf", "anyOf"} {
		collapseIntegerNumber(node, key)
	}

	if props, ok := node["properties"].(map[string]any); ok {
		for _, v := range props {
			if child, ok := v.(map[string]any); ok {
				sanitizeNode(child)
			}
		}
	}
	switch items := node["items"].(type) {
	case map[string]any:
		sanitizeNode(items)
	case []any:
		sanitizeBranches(items)
	}
	if extra, ok := node["additionalProperties"].(map[string]any); ok {
		sanitizeNode(extra)
	}
	for _, key := range []string{"oneOf", "anyOf", "allOf"} {
		if branches, ok := node[key].([]any); ok {
			sanitizeBranches(branches)
		}
	}
}

func sanitizeBranches(branches []any) {
	for _, b := range branches {
		if child, ok := b.(map[string]any); ok {
			sanitizeNode(child)
		}
	}
}

// normalizeUnion drops null, maps integer to number and collapses single
// entries. multipleOf is added only when integer stood alone.
func normalizeUnion(node map[string]any, types []any) any {
	seen := make(map[string]bool, len(types))
	out := make([]any, 0, len(types))
	hadInteger, hadNumber := false, false
	for _, raw := range types {
		name, ok := raw.(string)
		if !ok || name == "null" {
			continue
		}
		switch name {
		case "integer":
			hadInteger = true
			name = "number"
		case "number":
			hadNumber = true
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	if hadInteger && !hadNumber {
		ensureMultipleOf(node)
	}
	switch len(out) {
	case 0:
		return "object"
	case 1:
		return out[0]
	default:
		return out
	}
}

// collapseIntegerNumber merges a two-branch {integer, number} union into the
// node as a single number with multipleOf 1.
func collapseIntegerNumber(node map[string]any, key string) {
	branches, ok := node[key].([]any)
	if !ok || len(branches) != 2 {
		return
	}
	first, ok1 := branches[0].(map[string]any)
	second, ok2 := branches[1].(map[string]any)
	if !ok1 || !ok2 {
		return
	}
	t1, _ := first["type"].(string)
	t2, _ := second["type"].(string)
	if !((t1 == "integer" && t2 == "number") || (t1 == "number" && t2 == "integer")) {
		return
	}

	delete(node, key)
	for k, v := range first {
		if k == "type" {
			continue
		}
		node[k] = v
	}
	node["type"] = "number"
	ensureMultipleOf(node)
}

func ensureMultipleOf(node map[string]any) {
	if _, ok := node["multipleOf"]; !ok {
		node["multipleOf"] = float64(1)
	}
}

func allIntegers(values []any) bool {
	for _, v := range values {
		f, ok := v.(float64)
		if !ok || math.IsInf(f, 0) || f != math.Trunc(f) {
			return false
		}
	}
	return true
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of a schema tree.
func Clone(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	return deepCopy(schema).(map[string]any)
}
