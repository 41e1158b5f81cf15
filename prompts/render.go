package prompts

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

var (
	ifBlock     = regexp.MustCompile(`(?s)\{\{#if (\w+)\}\}(.*?)\{\{/if\}\}`)
	placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)
)

// Interpolate expands a template. Conditional blocks
//
//	{{#if name}}...{{/if}}
//
// are kept when the variable is truthy and removed otherwise; then every
// {{name}} with a matching variable is substituted. Placeholders without a
// variable are left as they are.
func Interpolate(tmpl string, vars map[string]any) string {
	out := ifBlock.ReplaceAllStringFunc(tmpl, func(block string) string {
		m := ifBlock.FindStringSubmatch(block)
		if truthy(vars[m[1]]) {
			return m[2]
		}
		return ""
	})

	return placeholder.ReplaceAllStringFunc(out, func(ph string) string {
		name := ph[2 : len(ph)-2]
		v, ok := vars[name]
		if !ok {
			return ph
		}
		return stringify(v)
	})
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32:
		return rv.Float() != 0
	}
	return true
}

// stringify renders strings verbatim and everything else as JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(string(data))
}
