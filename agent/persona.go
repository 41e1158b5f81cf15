package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ideasim/db"
	"ideasim/models"
	"ideasim/prompts"
	"ideasim/schema"
	"ideasim/usage"
)

// RunContext is the run-scoped state shared by every persona of a run.
type RunContext struct {
	ExperimentID string
	UserPrompt   string
	Questions    []string
	Tracker      *usage.Tracker
}

// PersonaAgent drives one synthetic stakeholder through profile, response
// and decision trace generation.
type PersonaAgent struct {
	ctl         *Controller
	store       db.Store
	ids         prompts.IDs
	reuseTraces bool
	logger      *slog.Logger
}

// PersonaOption configures a PersonaAgent.
type PersonaOption func(*PersonaAgent)

// WithPromptIDs overrides the prompt used for each stage.
func WithPromptIDs(ids prompts.IDs) PersonaOption {
	return func(a *PersonaAgent) {
		a.ids = ids
	}
}

// WithTraceReuse returns a stored decision trace for a response instead of
// generating a new one. Off by default.
func WithTraceReuse(reuse bool) PersonaOption {
	return func(a *PersonaAgent) {
		a.reuseTraces = reuse
	}
}

func WithPersonaLogger(logger *slog.Logger) PersonaOption {
	return func(a *PersonaAgent) {
		a.logger = logger
	}
}

func NewPersonaAgent(ctl *Controller, store db.Store, opts ...PersonaOption) *PersonaAgent {
	a := &PersonaAgent{
		ctl:    ctl,
		store:  store,
		ids:    prompts.DefaultIDs(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "persona-agent")
	return a
}

// EnsureStored creates a persona record for demographics and returns its id.
func (a *PersonaAgent) EnsureStored(ctx context.Context, demographics models.Demographics) (string, error) {
	rec, err := a.store.InsertPersona(ctx, demographics)
	if err != nil {
		return "", fmt.Errorf("store persona: %w", err)
	}
	return rec.PersonaID, nil
}

// EnsureProfile returns the stored profile when it still validates and
// otherwise generates, stores and returns a new one.
func (a *PersonaAgent) EnsureProfile(ctx context.Context, run RunContext, personaID string, demographics models.Demographics) (*models.PersonaProfile, error) {
	rec, err := a.store.GetPersonaByID(ctx, personaID)
	if err != nil {
		return nil, fmt.Errorf("load persona: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("persona not found: %s", personaID)
	}

	if len(rec.Profile) > 0 {
		profile, err := schema.Decode[models.PersonaProfile](schema.KindProfile, map[string]any(rec.Profile))
		if err == nil {
			return &profile, nil
		}
		a.logger.Warn("Existing profile invalid, regenerating", "persona_id", personaID, "error", err)
	}

	gen, err := Generate[models.PersonaProfile](ctx, a.ctl, Request{
		PromptID:     a.ids.Profile,
		Variables:    map[string]any{"demographics_json": toJSON(demographics)},
		Tracker:      run.Tracker,
		ExperimentID: run.ExperimentID,
		PersonaID:    personaID,
	}, schema.KindProfile)
	if err != nil {
		return nil, fmt.Errorf("generate profile for persona %s: %w", personaID, err)
	}

	if err := a.store.UpdatePersonaProfile(ctx, personaID, &gen.Value); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	a.logger.Debug("Generated profile", "persona_id", personaID)
	return &gen.Value, nil
}

// ResponseInput is what a persona needs to evaluate one variant.
type ResponseInput struct {
	PersonaID    string
	Demographics models.Demographics
	Profile      *models.PersonaProfile
	Variant      models.Variant
}

// GenerateResponse returns the persona's evaluation of the variant. A
// response already stored under the same (experiment, variant, persona) key
// is returned as-is without calling the model.
func (a *PersonaAgent) GenerateResponse(ctx context.Context, run RunContext, in ResponseInput) (*models.PersonaResponse, error) {
	key := models.ResponseKey{
		ExperimentID: run.ExperimentID,
		VariantID:    in.Variant.VariantID,
		PersonaID:    in.PersonaID,
	}
	existing, err := a.store.GetResponseByKeys(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load response: %w", err)
	}
	if existing != nil {
		a.logger.Debug("Response already exists",
			"experiment_id", key.ExperimentID,
			"variant_id", key.VariantID,
			"persona_id", key.PersonaID)
		return existing, nil
	}

	questions := run.Questions
	if questions == nil {
		questions = []string{}
	}
	gen, err := Generate[models.PersonaResponse](ctx, a.ctl, Request{
		PromptID: a.ids.Response,
		Variables: map[string]any{
			"persona_profile_json": toJSON(in.Profile),
			"demographics_json":    toJSON(in.Demographics),
			"user_prompt":          run.UserPrompt,
			"questions_json":       toJSON(questions),
			"stimulus_json":        toJSON(in.Variant.Stimulus),
			"repair_mode":          false,
		},
		Tracker:      run.Tracker,
		ExperimentID: run.ExperimentID,
		PersonaID:    in.PersonaID,
	}, schema.KindResponse)
	if err != nil {
		return nil, fmt.Errorf("generate response for persona %s on variant %s: %w", in.PersonaID, in.Variant.VariantKey, err)
	}

	resp := gen.Value
	resp.ExperimentID = key.ExperimentID
	resp.VariantID = key.VariantID
	resp.PersonaID = key.PersonaID

	stored, err := a.store.InsertResponse(ctx, &resp)
	if err != nil {
		return nil, fmt.Errorf("save response: %w", err)
	}
	a.logger.Debug("Generated response",
		"response_id", stored.ResponseID,
		"persona_id", in.PersonaID,
		"variant", in.Variant.VariantKey)
	return stored, nil
}

// TraceInput is what a decision trace is derived from.
type TraceInput struct {
	Response     *models.PersonaResponse
	Demographics models.Demographics
	Profile      *models.PersonaProfile
	Stimulus     models.Stimulus
}

// tracedResponse is the part of a response shown to the trace prompt.
type tracedResponse struct {
	Scores                models.Scores  `json:"scores"`
	Verdict               models.Verdict `json:"verdict"`
	FreeText              string         `json:"free_text"`
	TopObjections         []string       `json:"top_objections"`
	WhatWouldChangeMyMind []string       `json:"what_would_change_my_mind"`
	Confidence            float64        `json:"confidence"`
	UncertaintyNotes      []string       `json:"uncertainty_notes"`
}

// BuildDecisionTrace explains which factors drove a response and stores the
// explanation. It generates a new trace on every call unless trace reuse is
// enabled and one is already stored.
func (a *PersonaAgent) BuildDecisionTrace(ctx context.Context, run RunContext, in TraceInput) (*models.DecisionTrace, error) {
	resp := in.Response
	if a.reuseTraces {
		existing, err := a.store.GetDecisionTraceByResponseID(ctx, resp.ResponseID)
		if err != nil {
			return nil, fmt.Errorf("load decision trace: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	gen, err := Generate[models.DecisionTrace](ctx, a.ctl, Request{
		PromptID: a.ids.Trace,
		Variables: map[string]any{
			"persona_profile_json": toJSON(in.Profile),
			"demographics_json":    toJSON(in.Demographics),
			"stimulus_json":        toJSON(in.Stimulus),
			"response_json": toJSON(tracedResponse{
				Scores:                resp.Scores,
				Verdict:               resp.Verdict,
				FreeText:              resp.FreeText,
				TopObjections:         resp.TopObjections,
				WhatWouldChangeMyMind: resp.WhatWouldChangeMyMind,
				Confidence:            resp.Confidence,
				UncertaintyNotes:      resp.UncertaintyNotes,
			}),
		},
		Tracker:      run.Tracker,
		ExperimentID: run.ExperimentID,
		PersonaID:    resp.PersonaID,
		ResponseID:   resp.ResponseID,
	}, schema.KindTrace)
	if err != nil {
		return nil, fmt.Errorf("generate decision trace for response %s: %w", resp.ResponseID, err)
	}

	trace := gen.Value
	trace.ResponseID = resp.ResponseID
	audit := models.TraceAudit{
		GeneratedAt: time.Now().UTC(),
		Model:       gen.Result.Model,
		LatencyMs:   gen.Result.LatencyMs,
	}
	if err := a.store.InsertDecisionTrace(ctx, &trace, audit); err != nil {
		return nil, fmt.Errorf("save decision trace: %w", err)
	}
	a.logger.Debug("Generated decision trace", "response_id", resp.ResponseID)
	return &trace, nil
}

// VariantOutcome is a persona's response and trace for one variant.
type VariantOutcome struct {
	Variant  models.Variant
	Response *models.PersonaResponse
	Trace    *models.DecisionTrace
}

// PersonaOutcome is everything one persona produced in a run.
type PersonaOutcome struct {
	Persona  models.Persona
	Variants []VariantOutcome
}

// Run executes the full pipeline for one persona across variants, in order.
// Any failed stage fails the whole persona.
func (a *PersonaAgent) Run(ctx context.Context, run RunContext, demographics models.Demographics, variants []models.Variant) (*PersonaOutcome, error) {
	personaID, err := a.EnsureStored(ctx, demographics)
	if err != nil {
		return nil, err
	}

	profile, err := a.EnsureProfile(ctx, run, personaID, demographics)
	if err != nil {
		return nil, err
	}

	out := &PersonaOutcome{
		Persona: models.Persona{
			PersonaID:    personaID,
			Demographics: demographics,
			Profile:      profile,
		},
	}
	for _, variant := range variants {
		resp, err := a.GenerateResponse(ctx, run, ResponseInput{
			PersonaID:    personaID,
			Demographics: demographics,
			Profile:      profile,
			Variant:      variant,
		})
		if err != nil {
			return nil, err
		}

		trace, err := a.BuildDecisionTrace(ctx, run, TraceInput{
			Response:     resp,
			Demographics: demographics,
			Profile:      profile,
			Stimulus:     variant.Stimulus,
		})
		if err != nil {
			return nil, err
		}
		out.Variants = append(out.Variants, VariantOutcome{Variant: variant, Response: resp, Trace: trace})
	}
	return out, nil
}

// toJSON encodes v for a prompt variable.
func toJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}
