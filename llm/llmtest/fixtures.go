package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ideasim/llm"
)

// FixtureModel is reported by every fixture completion.
const FixtureModel = "gpt-4o-mini"

// Canned valid outputs for each pipeline stage.
const (
	ProfileJSON = `{
  "one_liner": "Budget-conscious commuter who tracks every expense",
  "pain_points": ["hidden fees", "too many apps"],
  "alternatives": ["spreadsheet", "bank app"],
  "communication_style": {"tone": "blunt", "verbosity": "low"}
}`

	ResponseJSON = `{
  "scores": {"purchase_intent": 3, "trust": 4, "clarity": 4, "differentiation": 3},
  "verdict": {"would_try": true, "would_pay": false},
  "free_text": "Interesting, but I would need proof it saves money.",
  "top_objections": ["unclear pricing"],
  "what_would_change_my_mind": ["a free trial"],
  "confidence": 0.7,
  "uncertainty_notes": ["not sure how receipts are verified"]
}`

	TraceJSON = "```json\n" + `{
  "persona_factors_used": [{"factor": "income_band", "value": "middle", "effect": "negative", "note": "price sensitive"}],
  "stimulus_cues": [{"cue": "verified receipts", "value": "receipt scan", "effect": "positive", "note": "credible"}],
  "top_objections": ["unclear pricing"],
  "what_would_change_my_mind": ["a free trial"],
  "confidence": 0.65,
  "uncertainty_notes": []
}` + "\n```"

	SummaryJSON = `{
  "headline": "Curious but unconvinced on price",
  "overall_stance": "mixed",
  "adoption_likelihood": 0.45,
  "key_objections": [{"objection": "unclear pricing", "frequency": "3"}],
  "key_insights": ["trust is high once receipts are verified"],
  "recommended_changes": ["publish pricing up front"]
}`
)

// DirectorJSON returns a valid director payload with one persona per name,
// two risks and two plan items.
func DirectorJSON(names ...string) string {
	personas := make([]map[string]any, len(names))
	for i, name := range names {
		personas[i] = map[string]any{"demographics": map[string]any{
			"name":           name,
			"age":            25 + i,
			"role":           "consumer",
			"income_band":    "middle",
			"tech_savviness": "medium",
		}}
	}
	out := map[string]any{
		"personas": personas,
		"risks": []map[string]any{
			{"id": "r1", "type": "Market", "title": "Low willingness to pay", "severity": "high", "likelihood": "medium", "mitigation": "Test pricing early."},
			{"id": "r2", "type": "Trust", "title": "Greenwashing claims", "severity": "medium", "likelihood": "medium", "mitigation": "Use third-party audits."},
		},
		"plan": []map[string]any{
			{"id": "pl1", "title": "Pricing test", "description": "Run a fake-door test.", "riskId": "r1"},
			{"id": "pl2", "title": "Audit partner", "description": "Sign an auditor.", "riskId": "r2"},
		},
		"scorecard": map[string]any{
			"desirability": 72, "feasibility": 60, "clarity": 68, "differentiation": 55,
			"justification": "Clear value, unproven economics.",
		},
		"recommendation": map[string]any{"summary": "Validate pricing before building."},
	}
	data, err := json.Marshal(out)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// Route answers each request with the content registered for its prompt id.
// Unregistered prompt ids fail with a transport error.
func Route(contents map[string]string) HandlerFunc {
	return func(_ context.Context, req llm.Request) (*llm.Completion, error) {
		content, ok := contents[req.PromptID]
		if !ok {
			return nil, llm.NewTransportError("complete", 500, fmt.Errorf("no fixture for %s", req.PromptID))
		}
		return &llm.Completion{
			Content:          content,
			Model:            FixtureModel,
			PromptTokens:     400,
			CompletionTokens: 120,
		}, nil
	}
}

// IsRepair reports whether req is a repair attempt.
func IsRepair(req llm.Request) bool {
	if req.Prompt != nil {
		v, _ := req.Prompt.Variables["repair_mode"].(bool)
		return v
	}
	for _, m := range req.Messages {
		if strings.Contains(m.Content, "Previous answer:") {
			return true
		}
	}
	return false
}

// PromptText returns the rendered user message of a local-prompt request.
func PromptText(req llm.Request) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}
