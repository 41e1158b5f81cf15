package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"ideasim/models"
	"ideasim/sim"
)

type SimulateRequest struct {
	Ideas        []models.Idea `json:"ideas"`
	Mode         models.Mode   `json:"mode"`
	PersonaCount int           `json:"personaCount"`
	Questions    []string      `json:"questions,omitempty"`
}

// SimulateHandler runs a simulation and returns the SimulationResult.
// Invalid input is a 400. A failed run is a 502, or the canned result when
// mock fallback is enabled and the director stage failed.
func (a *API) SimulateHandler(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	result, err := a.sim.Run(r.Context(), req.Ideas, req.Mode, sim.Options{
		PersonaCount: req.PersonaCount,
		Questions:    req.Questions,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, sim.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sim.ErrDirector) && a.mockFallback:
		a.logger.Warn("Simulation failed, serving mock result", "error", err)
		writeJSON(w, http.StatusOK, sim.Mock(req.Ideas, req.Mode))
	default:
		a.logger.Error("Simulation failed", "error", err)
		writeError(w, http.StatusBadGateway, "Simulation failed: "+err.Error())
	}
}
