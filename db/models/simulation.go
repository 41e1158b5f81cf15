package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ExperimentDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	CreatedAt  time.Time          `bson:"created_at"`
	UserPrompt string             `bson:"user_prompt"`
	Questions  []string           `bson:"questions"`
}

type VariantDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ExperimentID primitive.ObjectID `bson:"experiment_id"`
	VariantKey   string             `bson:"variant_key"` // "A" or "B"
	Stimulus     map[string]any     `bson:"stimulus"`
	CreatedAt    time.Time          `bson:"created_at"`
}

type PersonaDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Demographics map[string]any     `bson:"demographics"`
	Profile      map[string]any     `bson:"profile"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

// ResponseExtra holds the response fields that are not scores or verdict.
type ResponseExtra struct {
	TopObjections         []string `bson:"top_objections"`
	WhatWouldChangeMyMind []string `bson:"what_would_change_my_mind"`
	Confidence            float64  `bson:"confidence"`
	UncertaintyNotes      []string `bson:"uncertainty_notes"`
}

// ResponseDocument is unique on (experiment_id, variant_id, persona_id).
type ResponseDocument struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	ExperimentID    primitive.ObjectID `bson:"experiment_id"`
	VariantID       primitive.ObjectID `bson:"variant_id"`
	PersonaID       primitive.ObjectID `bson:"persona_id"`
	PurchaseIntent  int                `bson:"purchase_intent"`
	Trust           int                `bson:"trust"`
	Clarity         int                `bson:"clarity"`
	Differentiation int                `bson:"differentiation"`
	WouldTry        bool               `bson:"would_try"`
	WouldPay        bool               `bson:"would_pay"`
	FreeText        string             `bson:"free_text"`
	Extra           ResponseExtra      `bson:"extra"`
	CreatedAt       time.Time          `bson:"created_at"`
}

type FactorDocument struct {
	Name   string `bson:"name"`
	Value  any    `bson:"value"`
	Effect string `bson:"effect"`
	Note   string `bson:"note"`
}

type TraceAuditDocument struct {
	GeneratedAt time.Time `bson:"generated_at"`
	Model       string    `bson:"model"`
	LatencyMs   int64     `bson:"latency_ms"`
}

type DecisionTraceDocument struct {
	ID                    primitive.ObjectID `bson:"_id,omitempty"`
	ResponseID            primitive.ObjectID `bson:"response_id"`
	PersonaFactorsUsed    []FactorDocument   `bson:"persona_factors_used"`
	StimulusCues          []FactorDocument   `bson:"stimulus_cues"`
	TopObjections         []string           `bson:"top_objections"`
	WhatWouldChangeMyMind []string           `bson:"what_would_change_my_mind"`
	Confidence            float64            `bson:"confidence"`
	UncertaintyNotes      []string           `bson:"uncertainty_notes"`
	Audit                 TraceAuditDocument `bson:"audit"`
	CreatedAt             time.Time          `bson:"created_at"`
}

// PromptRunDocument is append-only; one per LLM attempt.
type PromptRunDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
	ExperimentID primitive.ObjectID `bson:"experiment_id,omitempty"`
	PersonaID    primitive.ObjectID `bson:"persona_id,omitempty"`
	ResponseID   primitive.ObjectID `bson:"response_id,omitempty"`
	PromptID     string             `bson:"prompt_id"`
	Attempt      int                `bson:"attempt"`
	Model        string             `bson:"model,omitempty"`
	InputHash    string             `bson:"input_hash,omitempty"`
	OutputHash   string             `bson:"output_hash,omitempty"`
	LatencyMs    int64              `bson:"latency_ms"`
	InputTokens  int                `bson:"input_tokens"`
	OutputTokens int                `bson:"output_tokens"`
	CostUSD      float64            `bson:"cost_usd"`
	Error        string             `bson:"error,omitempty"`
}
