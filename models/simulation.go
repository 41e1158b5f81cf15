package models

import "time"

// Mode selects whether a run evaluates one idea or compares two.
type Mode string

const (
	ModeSingle  Mode = "single"
	ModeCompare Mode = "compare"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeSingle || m == ModeCompare
}

// Idea is a user-submitted idea. At most two are evaluated per run.
type Idea struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Experiment is created once per simulation run and never mutated.
type Experiment struct {
	ExperimentID string    `json:"experiment_id"`
	CreatedAt    time.Time `json:"created_at"`
	UserPrompt   string    `json:"user_prompt"`
	Questions    []string  `json:"questions"`
}

// Stimulus is the idea payload shown to personas.
type Stimulus map[string]any

// Variant is one arm of an experiment (A, or A and B when comparing).
type Variant struct {
	VariantID    string   `json:"variant_id"`
	ExperimentID string   `json:"experiment_id"`
	VariantKey   string   `json:"variant_key"`
	Stimulus     Stimulus `json:"stimulus"`
}

// Risk, PlanItem, Scorecard and Recommendation come from the director stage.
type Risk struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title,omitempty"`
	Severity    string `json:"severity"`
	Likelihood  string `json:"likelihood"`
	Mitigation  string `json:"mitigation"`
	ChatPrefill string `json:"chatPrefill,omitempty"`
}

type NextStep struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ChatPrefill string `json:"chatPrefill,omitempty"`
}

// PlanOption is a branch hanging off a plan step. It either continues with
// NextStep or ends the branch with Stop.
type PlanOption struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Summary     string    `json:"summary"`
	ChatPrefill string    `json:"chatPrefill,omitempty"`
	NextStep    *NextStep `json:"nextStep,omitempty"`
	Stop        bool      `json:"stop,omitempty"`
	StopReason  string    `json:"stopReason,omitempty"`
}

type PlanItem struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	RiskID      string       `json:"riskId,omitempty"`
	ChatPrefill string       `json:"chatPrefill,omitempty"`
	Options     []PlanOption `json:"options,omitempty"`
}

type Scorecard struct {
	Desirability    float64 `json:"desirability"`
	Feasibility     float64 `json:"feasibility"`
	Clarity         float64 `json:"clarity"`
	Differentiation float64 `json:"differentiation"`
	Justification   string  `json:"justification"`
}

type Recommendation struct {
	WinnerID string `json:"winnerId,omitempty"`
	Summary  string `json:"summary"`
}

// DirectorPersona wraps the demographics the director proposes for one stakeholder.
type DirectorPersona struct {
	Demographics Demographics `json:"demographics"`
}

// DirectorOutput is the validated payload of the director stage.
type DirectorOutput struct {
	Personas       []DirectorPersona `json:"personas"`
	Risks          []Risk            `json:"risks"`
	Plan           []PlanItem        `json:"plan"`
	Scorecard      Scorecard         `json:"scorecard"`
	Recommendation Recommendation    `json:"recommendation"`
}

// SimulationResult is the single document produced per run.
type SimulationResult struct {
	RunID          string            `json:"runId"`
	ExperimentID   string            `json:"experimentId"`
	CreatedAt      time.Time         `json:"createdAt"`
	Mode           Mode              `json:"mode"`
	Ideas          []Idea            `json:"ideas"`
	Variants       []Variant         `json:"variants,omitempty"`
	Personas       []Persona         `json:"personas"`
	Responses      []PersonaResponse `json:"responses"`
	DecisionTraces []DecisionTrace   `json:"decisionTraces"`
	Risks          []Risk            `json:"risks"`
	Scorecard      Scorecard         `json:"scorecard"`
	Recommendation Recommendation    `json:"recommendation"`
	Plan           []PlanItem        `json:"plan"`
	CreditUsage    float64           `json:"creditUsage"`
	Mock           bool              `json:"mock,omitempty"`
}

// CreditPerIdea splits the run's credit usage evenly across the compared ideas.
func (r *SimulationResult) CreditPerIdea() float64 {
	if len(r.Ideas) == 0 {
		return r.CreditUsage
	}
	return r.CreditUsage / float64(len(r.Ideas))
}
