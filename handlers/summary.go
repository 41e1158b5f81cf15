package handlers

import (
	"encoding/json"
	"net/http"

	"ideasim/agent"
	"ideasim/models"
	"ideasim/usage"
)

type SummaryResponse struct {
	Success     bool                      `json:"success"`
	Summary     *models.ExperimentSummary `json:"summary"`
	CreditUsage float64                   `json:"credit_usage"`
}

// SummaryHandler generates the summary of an experiment from the responses
// posted in the body.
func (a *API) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	var in agent.SummaryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.ExperimentID == "" || in.Stimulus == nil || in.UserPrompt == "" || in.Responses == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields: experiment_id, stimulus, user_prompt, all_responses")
		return
	}
	if len(in.Responses) == 0 {
		writeError(w, http.StatusBadRequest, "all_responses must be a non-empty array")
		return
	}

	tracker := usage.NewTracker(a.prices)
	summary, err := a.summarizer.Summarize(r.Context(), in, tracker)
	if err != nil {
		a.logger.Error("Summary generation failed", "experiment_id", in.ExperimentID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate experiment summary")
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{
		Success:     true,
		Summary:     summary,
		CreditUsage: tracker.Snapshot().TotalCost,
	})
}
