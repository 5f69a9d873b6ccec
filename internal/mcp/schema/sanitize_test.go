package schema

import (
	"sync"
	"testing"

	"toolhost/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeOpenAI_IntegerEnum(t *testing.T) {
	in := map[string]any{"type": "integer", "enum": []any{1, 2, 3}}
	out, err := SanitizeOpenAI(in)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"type":       "number",
		"multipleOf": float64(1),
		"enum":       []any{1.0, 2.0, 3.0},
	}, out)
	assert.Equal(t, "integer", in["type"], "input must not be mutated")
}

func TestSanitizeOpenAI_Rules(t *testing.T) {
	cases := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "KeepsExistingMultipleOf",
			in:   map[string]any{"type": "integer", "multipleOf": 5},
			want: map[string]any{"type": "number", "multipleOf": float64(5)},
		},
		{
			name: "NullableIntegerUnion",
			in:   map[string]any{"type": []any{"integer", "null"}},
			want: map[string]any{"type": "number", "multipleOf": float64(1)},
		},
		{
			name: "NullableNumberUnionHasNoMultipleOf",
			in:   map[string]any{"type": []any{"number", "null"}},
			want: map[string]any{"type": "number"},
		},
		{
			name: "MixedUnionDeduplicated",
			in:   map[string]any{"type": []any{"integer", "number", "string"}},
			want: map[string]any{"type": []any{"number", "string"}},
		},
		{
			name: "OnlyNullBecomesObject",
			in:   map[string]any{"type": []any{"null"}},
			want: map[string]any{"type": "object"},
		},
		{
			name: "OneOfIntegerNumberCollapses",
			in: map[string]any{
				"description": "count",
				"oneOf": []any{
					map[string]any{"type": "integer", "minimum": 0},
					map[string]any{"type": "number"},
				},
			},
			want: map[string]any{
				"description": "count",
				"type":        "number",
				"minimum":     float64(0),
				"multipleOf":  float64(1),
			},
		},
		{
			name: "AnyOfWithStringStays",
			in: map[string]any{
				"anyOf": []any{
					map[string]any{"type": "integer"},
					map[string]any{"type": "string"},
				},
			},
			want: map[string]any{
				"anyOf": []any{
					map[string]any{"type": "number", "multipleOf": float64(1)},
					map[string]any{"type": "string"},
				},
			},
		},
		{
			name: "NestedStructures",
			in: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{"type": "integer"},
					"tags": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": []any{"integer", "null"}},
					},
				},
				"additionalProperties": map[string]any{"type": "integer"},
				"allOf":                []any{map[string]any{"type": "integer"}},
			},
			want: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{"type": "number", "multipleOf": float64(1)},
					"tags": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "number", "multipleOf": float64(1)},
					},
				},
				"additionalProperties": map[string]any{"type": "number", "multipleOf": float64(1)},
				"allOf":                []any{map[string]any{"type": "number", "multipleOf": float64(1)}},
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := SanitizeOpenAI(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSanitizeOpenAI_Idempotent(t *testing.T) {
	inputs := []map[string]any{
		{"type": "integer", "enum": []any{1, 2}},
		{"type": []any{"integer", "null", "string"}},
		{"oneOf": []any{map[string]any{"type": "number"}, map[string]any{"type": "integer"}}},
		BuildInputSchema([]tools.Parameter{
			{Name: "n", Type: tools.TypeInteger, Required: true},
			{Name: "q", Type: tools.TypeString, Default: ""},
		}),
	}
	for _, in := range inputs {
		once, err := SanitizeOpenAI(in)
		require.NoError(t, err)
		twice, err := SanitizeOpenAI(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestSanitizer_DefaultProfileIsIdentity(t *testing.T) {
	s := NewSanitizer(ProfileDefault, 0)
	in := map[string]any{"type": "integer"}
	out, err := s.Sanitize(in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "integer"}, out)
}

func TestSanitizer_MemoizedCopies(t *testing.T) {
	s := NewSanitizer(ProfileOpenAI, 4)
	in := map[string]any{"type": "object", "properties": map[string]any{"n": map[string]any{"type": "integer"}}}

	first, err := s.Sanitize(in)
	require.NoError(t, err)
	first["properties"].(map[string]any)["n"].(map[string]any)["type"] = "mutated"

	second, err := s.Sanitize(in)
	require.NoError(t, err)
	assert.Equal(t, "number", second["properties"].(map[string]any)["n"].(map[string]any)["type"])

	hits, misses := s.cache.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestSanitizer_ConcurrentCallers(t *testing.T) {
	s := NewSanitizer(ProfileOpenAI, 8)
	in := map[string]any{"type": []any{"integer", "null"}}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.Sanitize(in)
			assert.NoError(t, err)
			assert.Equal(t, "number", out["type"])
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, s.cache.Len())
}

func TestSanitizer_UnencodableSchema(t *testing.T) {
	s := NewSanitizer(ProfileOpenAI, 1)
	_, err := s.Sanitize(map[string]any{"bad": func() {}})
	require.Error(t, err)
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile("")
	require.NoError(t, err)
	assert.Equal(t, ProfileDefault, p)

	p, err = ParseProfile("OpenAI")
	require.NoError(t, err)
	assert.Equal(t, ProfileOpenAI, p)

	_, err = ParseProfile("strict")
	require.Error(t, err)
}

func TestBuildInputSchemaAndConvert(t *testing.T) {
	params := []tools.Parameter{
		{Name: "query", Type: tools.TypeString, Description: "what", Required: true},
		{Name: "path", Type: tools.TypeString, Default: "."},
	}
	m := BuildInputSchema(params)
	assert.Equal(t, "object", m["type"])
	assert.Equal(t, []any{"query"}, m["required"])
	assert.Equal(t, ".", m["properties"].(map[string]any)["path"].(map[string]any)["default"])

	js, err := ToJSONSchema(m)
	require.NoError(t, err)
	assert.Equal(t, "object", js.Type)
	assert.Equal(t, []string{"query"}, js.Required)
	require.Contains(t, js.Properties, "query")
	assert.Equal(t, "string", js.Properties["query"].Type)
}
