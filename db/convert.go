package db

import (
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// toMap converts a typed value into its JSON object form.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// normalizeMap rewrites a document decoded by the driver (primitive.A,
// primitive.M, int32) into plain JSON types so it can be validated like
// model output.
func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, ok := normalizeValue(m).(map[string]any)
	if !ok {
		return m
	}
	return out
}

// normalizeValue does the same for a value held in an interface field.
// The driver decodes embedded documents there as primitive.D, which
// encoding/json would render as a Key/Value array.
func normalizeValue(v any) any {
	plain := unwrapBSON(v)
	data, err := json.Marshal(plain)
	if err != nil {
		return plain
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return plain
	}
	return out
}

func unwrapBSON(v any) any {
	switch t := v.(type) {
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = unwrapBSON(e.Value)
		}
		return m
	case primitive.M:
		return unwrapBSON(map[string]any(t))
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = unwrapBSON(val)
		}
		return m
	case primitive.A:
		return unwrapBSON([]any(t))
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = unwrapBSON(val)
		}
		return s
	default:
		return v
	}
}
