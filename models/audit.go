package models

import "time"

// PromptRun is the append-only audit row written for every LLM attempt,
// including failed and repair attempts.
type PromptRun struct {
	PromptRunID  string    `json:"prompt_run_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExperimentID string    `json:"experiment_id,omitempty"`
	PersonaID    string    `json:"persona_id,omitempty"`
	ResponseID   string    `json:"response_id,omitempty"`
	PromptID     string    `json:"prompt_id"`
	Attempt      int       `json:"attempt"`
	Model        string    `json:"model,omitempty"`
	InputHash    string    `json:"input_hash,omitempty"`
	OutputHash   string    `json:"output_hash,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Error        string    `json:"error,omitempty"`
}

// UsageMetrics is the token usage of one gateway call.
type UsageMetrics struct {
	Model        string `json:"model"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
}
