package tracing

import (
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel/attribute"
)

// AttributeFromAny converts a decoded JSON value into a typed attribute.
// Integral numbers become INT64, homogeneous arrays become slices and
// anything else is rendered as a string. nil values are dropped.
func AttributeFromAny(key string, v any) (attribute.KeyValue, bool) {
	switch val := v.(type) {
	case nil:
		return attribute.KeyValue{}, false
	case string:
		return attribute.String(key, val), true
	case bool:
		return attribute.Bool(key, val), true
	case int:
		return attribute.Int(key, val), true
	case int64:
		return attribute.Int64(key, val), true
	case float64:
		if isIntegral(val) {
			return attribute.Int64(key, int64(val)), true
		}
		return attribute.Float64(key, val), true
	case []any:
		return sliceAttribute(key, val), true
	default:
		return attribute.String(key, fmt.Sprint(val)), true
	}
}

// AttributesFromMap converts a decoded JSON object, sorted by key
func AttributesFromMap(m map[string]any) []attribute.KeyValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		if kv, ok := AttributeFromAny(k, m[k]); ok {
			kvs = append(kvs, kv)
		}
	}
	return kvs
}

func sliceAttribute(key string, vals []any) attribute.KeyValue {
	if len(vals) == 0 {
		return attribute.StringSlice(key, []string{})
	}

	switch vals[0].(type) {
	case string:
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			s, ok := v.(string)
			if !ok {
				return attribute.String(key, fmt.Sprint(vals))
			}
			out = append(out, s)
		}
		return attribute.StringSlice(key, out)
	case bool:
		out := make([]bool, 0, len(vals))
		for _, v := range vals {
			b, ok := v.(bool)
			if !ok {
				return attribute.String(key, fmt.Sprint(vals))
			}
			out = append(out, b)
		}
		return attribute.BoolSlice(key, out)
	case float64:
		out := make([]float64, 0, len(vals))
		for _, v := range vals {
			f, ok := v.(float64)
			if !ok {
				return attribute.String(key, fmt.Sprint(vals))
			}
			out = append(out, f)
		}
		return attribute.Float64Slice(key, out)
	}
	return attribute.String(key, fmt.Sprint(vals))
}

// isIntegral reports whether f converts to int64 without loss. float64
// cannot represent MaxInt64, so the upper bound is exclusive at 2^63.
func isIntegral(f float64) bool {
	return f == math.Trunc(f) && f >= -(1<<63) && f < 1<<63
}

// plainValues flattens typed tags for JSON export
func plainValues(tags map[string]attribute.Value) map[string]any {
	out := make(map[string]any, len(tags))
	for k, v := range tags {
		out[k] = v.AsInterface()
	}
	return out
}

func plainKeyValues(kvs []attribute.KeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}
