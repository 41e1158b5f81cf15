package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ideasim/models"
	"ideasim/prompts"
	"ideasim/schema"
	"ideasim/usage"
)

// ErrInvalidSummaryInput is returned when a summary request lacks responses
// or identifying fields.
var ErrInvalidSummaryInput = errors.New("invalid summary input")

// PanelResponse is one persona's contribution to an experiment summary.
type PanelResponse struct {
	PersonaID    string                 `json:"persona_id"`
	Demographics models.Demographics    `json:"demographics"`
	Profile      *models.PersonaProfile `json:"profile"`
	Response     models.PersonaResponse `json:"response"`
}

type SummaryInput struct {
	ExperimentID string          `json:"experiment_id"`
	VariantKey   string          `json:"variant_key,omitempty"`
	Stimulus     models.Stimulus `json:"stimulus"`
	UserPrompt   string          `json:"user_prompt"`
	Responses    []PanelResponse `json:"all_responses"`
}

// Validate reports missing fields.
func (in SummaryInput) Validate() error {
	if in.ExperimentID == "" || in.Stimulus == nil || in.UserPrompt == "" {
		return fmt.Errorf("%w: experiment_id, stimulus and user_prompt are required", ErrInvalidSummaryInput)
	}
	if len(in.Responses) == 0 {
		return fmt.Errorf("%w: all_responses must be a non-empty array", ErrInvalidSummaryInput)
	}
	return nil
}

// SummaryInputsFromResult builds one summary request per variant of a
// finished run. A request only carries the responses given to its variant,
// matched through VariantID, so compared ideas are never summarized together.
// Results without variants are accepted in single mode only.
func SummaryInputsFromResult(result *models.SimulationResult) ([]SummaryInput, error) {
	personas := make(map[string]models.Persona, len(result.Personas))
	for _, p := range result.Personas {
		personas[p.PersonaID] = p
	}
	panel := func(resp models.PersonaResponse) PanelResponse {
		p := personas[resp.PersonaID]
		return PanelResponse{
			PersonaID:    resp.PersonaID,
			Demographics: p.Demographics,
			Profile:      p.Profile,
			Response:     resp,
		}
	}

	if len(result.Variants) == 0 {
		if result.Mode == models.ModeCompare {
			return nil, fmt.Errorf("%w: compare run has no variants to match responses against", ErrInvalidSummaryInput)
		}
		in := SummaryInput{ExperimentID: result.ExperimentID}
		if len(result.Ideas) > 0 {
			idea := result.Ideas[0]
			in.Stimulus = models.Stimulus{"title": idea.Title, "description": idea.Description}
			in.UserPrompt = UserPrompt(idea)
		}
		for _, resp := range result.Responses {
			in.Responses = append(in.Responses, panel(resp))
		}
		return []SummaryInput{in}, nil
	}

	out := make([]SummaryInput, 0, len(result.Variants))
	for i, v := range result.Variants {
		in := SummaryInput{
			ExperimentID: result.ExperimentID,
			VariantKey:   v.VariantKey,
			Stimulus:     v.Stimulus,
		}
		if idea, ok := variantIdea(result.Ideas, v, i); ok {
			in.UserPrompt = UserPrompt(idea)
		}
		for _, resp := range result.Responses {
			if resp.VariantID == v.VariantID {
				in.Responses = append(in.Responses, panel(resp))
			}
		}
		out = append(out, in)
	}
	return out, nil
}

// variantIdea finds the idea behind v by the idea_id of its stimulus and
// falls back to the idea at the variant's position.
func variantIdea(ideas []models.Idea, v models.Variant, i int) (models.Idea, bool) {
	if id, _ := v.Stimulus["idea_id"].(string); id != "" {
		for _, idea := range ideas {
			if idea.ID == id {
				return idea, true
			}
		}
	}
	if i < len(ideas) {
		return ideas[i], true
	}
	return models.Idea{}, false
}

// UserPrompt is the request shown to personas for idea.
func UserPrompt(idea models.Idea) string {
	return fmt.Sprintf("Evaluate the idea: %s - %s", idea.Title, idea.Description)
}

// SummaryAgent aggregates the responses of an experiment into one summary.
type SummaryAgent struct {
	ctl      *Controller
	promptID string
	logger   *slog.Logger
}

// NewSummaryAgent creates a summary agent. An empty promptID uses the
// embedded template.
func NewSummaryAgent(ctl *Controller, promptID string) *SummaryAgent {
	if promptID == "" {
		promptID = prompts.SummaryLocal
	}
	return &SummaryAgent{
		ctl:      ctl,
		promptID: promptID,
		logger:   ctl.logger.With("component", "summary-agent"),
	}
}

// Summarize generates the experiment summary. Usage is added to tracker
// when it is not nil.
func (a *SummaryAgent) Summarize(ctx context.Context, in SummaryInput, tracker *usage.Tracker) (*models.ExperimentSummary, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	gen, err := Generate[models.ExperimentSummary](ctx, a.ctl, Request{
		PromptID: a.promptID,
		Variables: map[string]any{
			"user_prompt":    in.UserPrompt,
			"stimulus_json":  toJSON(in.Stimulus),
			"responses_json": toJSON(in.Responses),
		},
		Tracker:      tracker,
		ExperimentID: in.ExperimentID,
	}, schema.KindSummary)
	if err != nil {
		return nil, fmt.Errorf("generate experiment summary: %w", err)
	}

	a.logger.Info("Generated experiment summary",
		"experiment_id", in.ExperimentID,
		"variant", in.VariantKey,
		"responses", len(in.Responses),
		"stance", gen.Value.OverallStance)
	return &gen.Value, nil
}
