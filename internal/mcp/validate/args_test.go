package validate

import (
	"encoding/json"
	"testing"

	"toolhost/internal/core/errors"
	"toolhost/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var searchParams = []tools.Parameter{
	{Name: "query", Type: tools.TypeString, Required: true},
	{Name: "path", Type: tools.TypeString, Default: "."},
	{Name: "limit", Type: tools.TypeInteger, Default: int64(10)},
	{Name: "threshold", Type: tools.TypeNumber},
	{Name: "exact", Type: tools.TypeBoolean},
	{Name: "tags", Type: tools.TypeArray},
	{Name: "filters", Type: tools.TypeObject},
}

func TestArguments_DefaultsApplyOnlyWhenAbsent(t *testing.T) {
	args, err := Arguments(searchParams, map[string]any{"query": "Foo", "path": "src"})
	require.NoError(t, err)

	assert.Equal(t, "Foo", args["query"])
	assert.Equal(t, "src", args["path"])
	assert.Equal(t, int64(10), args["limit"])
	assert.NotContains(t, args, "threshold")
}

func TestArguments_NullTreatedAsAbsent(t *testing.T) {
	args, err := Arguments(searchParams, map[string]any{"query": "Foo", "path": nil})
	require.NoError(t, err)
	assert.Equal(t, ".", args["path"])
}

func TestArguments_RequiredMissing(t *testing.T) {
	_, err := Arguments(searchParams, map[string]any{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))

	param, ok := errors.ContextValue(err, errors.CtxParameter)
	require.True(t, ok)
	assert.Equal(t, "query", param)
	assert.Contains(t, err.Error(), "Required parameter query is missing")
}

func TestArguments_DefaultsAreCoerced(t *testing.T) {
	params := []tools.Parameter{
		{Name: "limit", Type: tools.TypeInteger, Default: 5},
		{Name: "ratio", Type: tools.TypeInteger, Default: float64(10)},
		{Name: "scale", Type: tools.TypeNumber, Default: 2},
	}
	args, err := Arguments(params, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(5), args["limit"])
	assert.Equal(t, int64(5), args.Int("limit"))
	assert.Equal(t, int64(10), args.Int("ratio"))
	assert.Equal(t, float64(2), args.Float("scale"))
}

func TestArguments_UncoercibleDefault(t *testing.T) {
	params := []tools.Parameter{{Name: "bad", Type: tools.TypeInteger, Default: "abc"}}
	_, err := Arguments(params, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
	param, _ := errors.ContextValue(err, errors.CtxParameter)
	assert.Equal(t, "bad", param)
}

func TestArguments_LargestIntegers(t *testing.T) {
	params := []tools.Parameter{{Name: "n", Type: tools.TypeInteger}}

	args, err := Arguments(params, map[string]any{"n": json.Number("9223372036854775807")})
	require.NoError(t, err)
	assert.Equal(t, int64(9223372036854775807), args["n"])

	args, err = Arguments(params, map[string]any{"n": float64(-9223372036854775808)})
	require.NoError(t, err)
	assert.Equal(t, int64(-9223372036854775808), args["n"])

	_, err = Arguments(params, map[string]any{"n": 9223372036854775808.0})
	require.Error(t, err)
}

func TestArguments_RequiredWithDefault(t *testing.T) {
	params := []tools.Parameter{{Name: "mode", Type: tools.TypeString, Required: true, Default: "fast"}}
	args, err := Arguments(params, nil)
	require.NoError(t, err)
	assert.Equal(t, "fast", args["mode"])
}

func TestArguments_Coercion(t *testing.T) {
	args, err := Arguments(searchParams, map[string]any{
		"query":     42,
		"limit":     float64(5),
		"threshold": "0.5",
		"exact":     "true",
		"tags":      []string{"a", "b"},
		"filters":   map[string]any{"lang": "go"},
	})
	require.NoError(t, err)

	assert.Equal(t, "42", args["query"])
	assert.Equal(t, int64(5), args["limit"])
	assert.Equal(t, 0.5, args["threshold"])
	assert.Equal(t, true, args["exact"])
	assert.Equal(t, []any{"a", "b"}, args["tags"])
	assert.Equal(t, map[string]any{"lang": "go"}, args["filters"])
}

func TestArguments_CoercionFailures(t *testing.T) {
	cases := []struct {
		name  string
		raw   map[string]any
		param string
	}{
		{name: "FractionalInteger", raw: map[string]any{"query": "q", "limit": 1.5}, param: "limit"},
		{name: "IntegerOverflow", raw: map[string]any{"query": "q", "limit": 9223372036854775808.0}, param: "limit"},
		{name: "IntegerUnderflow", raw: map[string]any{"query": "q", "limit": -1e19}, param: "limit"},
		{name: "WordInteger", raw: map[string]any{"query": "q", "limit": "ten"}, param: "limit"},
		{name: "ObjectAsString", raw: map[string]any{"query": map[string]any{}}, param: "query"},
		{name: "NumberAsBool", raw: map[string]any{"query": "q", "exact": 1}, param: "exact"},
		{name: "StringAsArray", raw: map[string]any{"query": "q", "tags": "a"}, param: "tags"},
		{name: "ArrayAsObject", raw: map[string]any{"query": "q", "filters": []any{}}, param: "filters"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := Arguments(searchParams, tc.raw)
			require.Error(t, err)
			param, _ := errors.ContextValue(err, errors.CtxParameter)
			assert.Equal(t, tc.param, param)
		})
	}
}

func TestArguments_JSONNumbers(t *testing.T) {
	args, err := Arguments(searchParams, map[string]any{
		"query":     json.Number("7"),
		"limit":     json.Number("3"),
		"threshold": json.Number("2.25"),
	})
	require.NoError(t, err)
	assert.Equal(t, "7", args["query"])
	assert.Equal(t, int64(3), args["limit"])
	assert.Equal(t, 2.25, args["threshold"])
}

func TestArguments_UnknownArgumentsDropped(t *testing.T) {
	args, err := Arguments(searchParams, map[string]any{"query": "q", "extra": 1})
	require.NoError(t, err)
	assert.NotContains(t, args, "extra")
}

func TestDecodeRaw(t *testing.T) {
	raw, err := DecodeRaw(nil)
	require.NoError(t, err)
	assert.Empty(t, raw)

	raw, err = DecodeRaw([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, raw)

	raw, err = DecodeRaw([]byte(`{"query":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", raw["query"])

	_, err = DecodeRaw([]byte(`[1,2]`))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}
