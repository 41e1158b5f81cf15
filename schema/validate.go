package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
)

// Validate checks value against the contract of kind and returns the
// normalized value that passed validation. value is not modified.
func Validate(kind Kind, value any) (any, error) {
	c, ok := contracts[kind]
	if !ok {
		return nil, &ValidationError{Kind: kind, err: fmt.Errorf("no contract registered")}
	}

	prepared := value
	if c.prepare != nil {
		prepared = c.prepare(cloneJSON(value))
	}
	if err := c.schema.Validate(prepared); err != nil {
		return nil, &ValidationError{Kind: kind, err: err}
	}
	return prepared, nil
}

// Decode validates value against the contract of kind and decodes it into T.
func Decode[T any](kind Kind, value any) (T, error) {
	var out T

	prepared, err := Validate(kind, value)
	if err != nil {
		return out, err
	}
	data, err := json.Marshal(prepared)
	if err != nil {
		return out, &ValidationError{Kind: kind, err: fmt.Errorf("re-encode: %w", err)}
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, &ValidationError{Kind: kind, err: fmt.Errorf("decode: %w", err)}
	}
	return out, nil
}

// DecodeText parses raw model output and decodes it into T. It fails with a
// *ParseError or a *ValidationError.
func DecodeText[T any](kind Kind, raw string) (T, error) {
	value, ok := Parse(raw)
	if !ok {
		var zero T
		return zero, &ParseError{Kind: kind}
	}
	return Decode[T](kind, value)
}

// normalizeTraceFactors folds the wire keys "factor" (persona factors) and
// "cue" (stimulus cues) into "name".
func normalizeTraceFactors(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for field, key := range map[string]string{"persona_factors_used": "factor", "stimulus_cues": "cue"} {
		items, ok := obj[field].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			f, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if wire, ok := f[key]; ok {
				if _, has := f["name"]; !has {
					f["name"] = wire
				}
				delete(f, key)
			}
		}
	}
	return obj
}

// coerceObjectionFrequency turns numeric strings in key_objections[].frequency
// into numbers. Anything else is left for validation to reject.
func coerceObjectionFrequency(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	items, ok := obj["key_objections"].([]any)
	if !ok {
		return obj
	}
	for i, item := range items {
		o, ok := item.(map[string]any)
		if !ok {
			continue
		}
		s, ok := o["frequency"].(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		o["frequency"] = n
		slog.Debug("Coerced string to number",
			"component", "schema",
			"kind", KindSummary.String(),
			"path", fmt.Sprintf("key_objections[%d].frequency", i),
			"value", s)
	}
	return obj
}

// cloneJSON deep-copies the maps and slices of a decoded JSON value.
func cloneJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneJSON(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneJSON(val)
		}
		return out
	default:
		return v
	}
}
