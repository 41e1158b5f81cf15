package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// InputHash fingerprints a call as the SHA-256 of the canonical JSON of
// {promptId, variables}. Map keys are emitted sorted at every level.
func InputHash(promptID string, vars map[string]any) string {
	if vars == nil {
		vars = map[string]any{}
	}
	data, err := json.Marshal(map[string]any{
		"promptId":  promptID,
		"variables": vars,
	})
	if err != nil {
		// Variables come from JSON-encodable model types; fall back to the id alone.
		data = []byte(promptID)
	}
	return HashText(string(data))
}

// HashText returns the hex SHA-256 of s.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
