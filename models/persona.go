package models

import "time"

// Demographics is the free-form description of a synthetic stakeholder.
// The "name" attribute is required.
type Demographics map[string]any

// Name returns the stakeholder name, or "" when missing.
func (d Demographics) Name() string {
	name, _ := d["name"].(string)
	return name
}

type CommunicationStyle struct {
	Tone      string `json:"tone"`
	Verbosity string `json:"verbosity"`
}

// PersonaProfile is generated once per persona and cached on the persona record.
type PersonaProfile struct {
	OneLiner           string             `json:"one_liner"`
	PainPoints         []string           `json:"pain_points"`
	Alternatives       []string           `json:"alternatives"`
	CommunicationStyle CommunicationStyle `json:"communication_style"`
}

type Persona struct {
	PersonaID    string          `json:"persona_id"`
	Demographics Demographics    `json:"demographics"`
	Profile      *PersonaProfile `json:"profile"`
}

// PersonaRecord is a persona as stored. Profile is kept raw so that a stored
// profile which no longer validates can be detected and regenerated.
type PersonaRecord struct {
	PersonaID    string
	CreatedAt    time.Time
	Demographics Demographics
	Profile      map[string]any
}

type Scores struct {
	PurchaseIntent  int `json:"purchase_intent"`
	Trust           int `json:"trust"`
	Clarity         int `json:"clarity"`
	Differentiation int `json:"differentiation"`
}

type Verdict struct {
	WouldTry bool `json:"would_try"`
	WouldPay bool `json:"would_pay"`
}

// PersonaResponse is one persona's evaluation of one variant. The triple
// (experiment, variant, persona) identifies it.
type PersonaResponse struct {
	ResponseID            string   `json:"response_id"`
	PersonaID             string   `json:"persona_id"`
	ExperimentID          string   `json:"experiment_id,omitempty"`
	VariantID             string   `json:"variant_id,omitempty"`
	Scores                Scores   `json:"scores"`
	Verdict               Verdict  `json:"verdict"`
	FreeText              string   `json:"free_text"`
	TopObjections         []string `json:"top_objections"`
	WhatWouldChangeMyMind []string `json:"what_would_change_my_mind"`
	Confidence            float64  `json:"confidence"`
	UncertaintyNotes      []string `json:"uncertainty_notes"`
}

// ResponseKey is the natural key of a PersonaResponse.
type ResponseKey struct {
	ExperimentID string
	VariantID    string
	PersonaID    string
}

// Factor is a persona attribute or stimulus cue that influenced a response.
type Factor struct {
	Name   string `json:"name"`
	Value  any    `json:"value"`
	Effect string `json:"effect"`
	Note   string `json:"note"`
}

// DecisionTrace explains which factors drove a response. One per response.
type DecisionTrace struct {
	ResponseID            string   `json:"response_id"`
	PersonaFactorsUsed    []Factor `json:"persona_factors_used"`
	StimulusCues          []Factor `json:"stimulus_cues"`
	TopObjections         []string `json:"top_objections"`
	WhatWouldChangeMyMind []string `json:"what_would_change_my_mind"`
	Confidence            float64  `json:"confidence"`
	UncertaintyNotes      []string `json:"uncertainty_notes"`
}

// TraceAudit records which call produced a stored decision trace.
type TraceAudit struct {
	GeneratedAt time.Time `json:"generated_at"`
	Model       string    `json:"model"`
	LatencyMs   int64     `json:"latency_ms"`
}

type ObjectionCount struct {
	Objection string `json:"objection"`
	Frequency int    `json:"frequency"`
}

// ExperimentSummary aggregates all persona responses of an experiment.
type ExperimentSummary struct {
	Headline           string           `json:"headline"`
	OverallStance      string           `json:"overall_stance"`
	AdoptionLikelihood float64          `json:"adoption_likelihood"`
	KeyObjections      []ObjectionCount `json:"key_objections"`
	KeyInsights        []string         `json:"key_insights"`
	RecommendedChanges []string         `json:"recommended_changes"`
}
