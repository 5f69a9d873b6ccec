package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Coerce converts v to the Go representation of t: string, int64, float64,
// bool, []any or map[string]any. Integral floats are accepted as integers.
func Coerce(t ParamType, v any) (any, error) {
	switch t {
	case TypeString:
		return toString(v)
	case TypeInteger:
		return toInteger(v)
	case TypeNumber:
		return toNumber(v)
	case TypeBoolean:
		return toBool(v)
	case TypeArray:
		return toArray(v)
	case TypeObject:
		return toObject(v)
	default:
		return nil, fmt.Errorf("unsupported type %q", t)
	}
}

func toString(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	}
	if i, ok := intValue(v); ok {
		return strconv.FormatInt(i, 10), nil
	}
	return nil, fmt.Errorf("expected string, got %s", kindOf(v))
}

func toInteger(v any) (any, error) {
	if i, ok := intValue(v); ok {
		return i, nil
	}
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return nil, fmt.Errorf("expected integer, got %v", t)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if t >= math.MaxInt64 || t < math.MinInt64 {
			return nil, fmt.Errorf("integer %v out of range", t)
		}
		return int64(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", t.String())
		}
		return toInteger(f)
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		return nil, fmt.Errorf("expected integer, got %q", t)
	}
	return nil, fmt.Errorf("expected integer, got %s", kindOf(v))
}

func toNumber(v any) (any, error) {
	if i, ok := intValue(v); ok {
		return float64(i), nil
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", t.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", t)
		}
		return f, nil
	}
	return nil, fmt.Errorf("expected number, got %s", kindOf(v))
}

func toBool(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("expected boolean, got %q", t)
		}
		return b, nil
	}
	return nil, fmt.Errorf("expected boolean, got %s", kindOf(v))
}

func toArray(v any) (any, error) {
	if arr, ok := v.([]any); ok {
		return arr, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected array, got %s", kindOf(v))
}

func toObject(v any) (any, error) {
	if obj, ok := v.(map[string]any); ok {
		return obj, nil
	}
	return nil, fmt.Errorf("expected object, got %s", kindOf(v))
}

func intValue(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	default:
		return 0, false
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := intValue(v); ok {
		return "integer"
	}
	return fmt.Sprintf("%T", v)
}
