// Package schema parses model output and validates it against the contract
// of each pipeline stage.
package schema

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Only the lowercase json tag is stripped. Output wrapped any other way, such
// as a ```JSON fence or prose around the object, fails to parse and goes to
// the repair call.
var (
	jsonFence = regexp.MustCompile("```json\n?")
	fence     = regexp.MustCompile("```\n?")
)

// Parse strips Markdown code fences and surrounding whitespace from raw model
// output and decodes it as JSON. It reports false when nothing usable remains.
func Parse(raw string) (any, bool) {
	clean := jsonFence.ReplaceAllString(raw, "")
	clean = fence.ReplaceAllString(clean, "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return nil, false
	}

	var v any
	if err := json.Unmarshal([]byte(clean), &v); err != nil {
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return v, true
}
