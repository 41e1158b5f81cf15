package sim

import (
	"time"

	"github.com/google/uuid"

	"ideasim/models"
)

var mockPersonas = []models.Persona{
	{PersonaID: "p1", Demographics: models.Demographics{
		"name": "Sarah Chen", "role": "Gen Z Rights Activist",
		"tags": []any{"Social Justice", "Digital Native", "Skeptical"},
	}},
	{PersonaID: "p2", Demographics: models.Demographics{
		"name": "Marcus Thorne", "role": "Institutional Investor",
		"tags": []any{"ROI-Focused", "Risk-Averse", "Traditional"},
	}},
	{PersonaID: "p3", Demographics: models.Demographics{
		"name": "Elena Rodriguez", "role": "Privacy Watchdog",
		"tags": []any{"Data Security", "Regulatory Compliance", "Vocal"},
	}},
	{PersonaID: "p4", Demographics: models.Demographics{
		"name": "David Kim", "role": "Tech Early Adopter",
		"tags": []any{"Innovation", "Feature-Hungry", "Forgiving"},
	}},
}

var mockRisks = []models.Risk{
	{ID: "r1", Type: "PR", Severity: "high", Likelihood: "medium", Mitigation: "Proactive transparency campaign addressing data usage."},
	{ID: "r2", Type: "Legal", Severity: "medium", Likelihood: "low", Mitigation: "Consult with GDPR compliance officer before launch."},
	{ID: "r3", Type: "Market", Severity: "low", Likelihood: "high", Mitigation: "Highlight competitive differentiation in messaging."},
}

var mockPlan = []models.PlanItem{
	{ID: "step1", Title: "Phase 1: Alpha Testing", Description: "Release to a small closed group of Tech Early Adopters to validate core loop."},
	{ID: "step2", Title: "Phase 2: Trust Building", Description: "Publish transparency report to appease Privacy Watchdogs."},
	{ID: "step3", Title: "Phase 3: Public Launch", Description: "Broad marketing campaign focusing on innovation and user empowerment."},
}

// Mock returns a canned result for ideas. Callers use it in place of a
// failed run; it carries no responses, traces or cost.
func Mock(ideas []models.Idea, mode models.Mode) *models.SimulationResult {
	if mode == "" {
		mode = models.ModeSingle
	}
	personas := make([]models.Persona, len(mockPersonas))
	copy(personas, mockPersonas)
	risks := make([]models.Risk, len(mockRisks))
	copy(risks, mockRisks)
	plan := make([]models.PlanItem, len(mockPlan))
	copy(plan, mockPlan)

	return &models.SimulationResult{
		RunID:          uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		Mode:           mode,
		Ideas:          ideas,
		Personas:       personas,
		Responses:      []models.PersonaResponse{},
		DecisionTraces: []models.DecisionTrace{},
		Risks:          risks,
		Scorecard: models.Scorecard{
			Desirability:    75,
			Feasibility:     80,
			Clarity:         65,
			Differentiation: 90,
			Justification:   "Strong innovation potential but faces significant trust hurdles.",
		},
		Recommendation: models.Recommendation{Summary: "Proceed with caution. Prioritize trust-building features."},
		Plan:           plan,
		Mock:           true,
	}
}
