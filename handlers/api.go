// Package handlers exposes simulations over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"ideasim/agent"
	"ideasim/models"
	"ideasim/sim"
	"ideasim/usage"
)

// Simulator runs one simulation.
type Simulator interface {
	Run(ctx context.Context, ideas []models.Idea, mode models.Mode, opts sim.Options) (*models.SimulationResult, error)
}

// Summarizer aggregates the responses of an experiment.
type Summarizer interface {
	Summarize(ctx context.Context, in agent.SummaryInput, tracker *usage.Tracker) (*models.ExperimentSummary, error)
}

// API holds the dependencies of the HTTP handlers.
type API struct {
	sim          Simulator
	summarizer   Summarizer
	metrics      http.Handler
	mockFallback bool
	prices       usage.PriceTable
	logger       *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithMockFallback answers a failed director stage with the canned result.
func WithMockFallback(enabled bool) Option {
	return func(a *API) {
		a.mockFallback = enabled
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) {
		a.metrics = h
	}
}

// WithPrices sets the price table used to cost summary requests.
func WithPrices(prices usage.PriceTable) Option {
	return func(a *API) {
		a.prices = prices
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

func NewAPI(s Simulator, summarizer Summarizer, opts ...Option) *API {
	a := &API{
		sim:        s,
		summarizer: summarizer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "http")
	return a
}

// Routes returns the API mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /simulate", a.SimulateHandler)
	mux.HandleFunc("POST /summary", a.SummaryHandler)
	mux.HandleFunc("GET /healthz", a.HealthHandler)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics)
	}
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "component", "http", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// HealthHandler reports liveness.
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
