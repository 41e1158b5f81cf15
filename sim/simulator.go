// Package sim orchestrates a simulation run: one director call followed by
// a bounded fan-out of persona pipelines.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ideasim/agent"
	"ideasim/db"
	"ideasim/events"
	"ideasim/metrics"
	"ideasim/models"
	"ideasim/prompts"
	"ideasim/schema"
	"ideasim/usage"
)

var (
	// ErrInvalidInput rejects a run before any work is done.
	ErrInvalidInput = errors.New("invalid simulation input")
	// ErrDirector aborts a run whose director stage failed.
	ErrDirector = errors.New("director stage failed")
)

const (
	DefaultPersonaCount   = 4
	MaxPersonaCount       = 100
	DefaultMaxConcurrency = 8
)

// Options are the per-run parameters.
type Options struct {
	// PersonaCount requested from the director. Zero means DefaultPersonaCount.
	PersonaCount int
	Questions    []string
}

// Simulator runs simulations against one store and controller.
type Simulator struct {
	ctl            *agent.Controller
	store          db.Store
	personas       *agent.PersonaAgent
	ids            prompts.IDs
	prices         usage.PriceTable
	reuseTraces    bool
	maxConcurrency int
	runTimeout     time.Duration
	metrics        *metrics.Metrics
	publisher      events.Publisher
	logger         *slog.Logger
}

// Option configures a Simulator.
type Option func(*Simulator)

func WithPromptIDs(ids prompts.IDs) Option {
	return func(s *Simulator) {
		s.ids = ids
	}
}

// WithPrices sets the table used for the run's credit usage.
func WithPrices(prices usage.PriceTable) Option {
	return func(s *Simulator) {
		s.prices = prices
	}
}

// WithTraceReuse keeps a stored decision trace for a response instead of
// generating a new one.
func WithTraceReuse(reuse bool) Option {
	return func(s *Simulator) {
		s.reuseTraces = reuse
	}
}

// WithMaxConcurrency caps the number of personas processed at once.
func WithMaxConcurrency(n int) Option {
	return func(s *Simulator) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// WithRunTimeout bounds a whole run, director included. Zero disables it.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Simulator) {
		s.runTimeout = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Simulator) {
		s.metrics = m
	}
}

// WithPublisher receives a RunCompleted event after every successful run.
func WithPublisher(p events.Publisher) Option {
	return func(s *Simulator) {
		s.publisher = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) {
		s.logger = logger
	}
}

// New creates a simulator.
func New(ctl *agent.Controller, store db.Store, opts ...Option) *Simulator {
	s := &Simulator{
		ctl:            ctl,
		store:          store,
		ids:            prompts.DefaultIDs(),
		prices:         usage.DefaultPrices(),
		maxConcurrency: DefaultMaxConcurrency,
		publisher:      events.NopPublisher{},
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.personas = agent.NewPersonaAgent(ctl, store,
		agent.WithPromptIDs(s.ids),
		agent.WithTraceReuse(s.reuseTraces),
		agent.WithPersonaLogger(s.logger),
	)
	s.logger = s.logger.With("component", "simulator")
	return s
}

// Run executes one simulation. It returns either a complete result, from
// which failed personas have been dropped, or an error and no result.
func (s *Simulator) Run(ctx context.Context, ideas []models.Idea, mode models.Mode, opts Options) (*models.SimulationResult, error) {
	start := time.Now()
	if mode == "" {
		mode = models.ModeSingle
	}
	ideas, count, err := validate(ideas, mode, opts.PersonaCount)
	if err != nil {
		s.metrics.ObserveRun(string(mode), "invalid", time.Since(start), 0)
		return nil, err
	}

	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	result, dropped, err := s.run(ctx, ideas, mode, count, opts.Questions)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrDirector):
		outcome = "director_failed"
	case err != nil:
		outcome = "error"
	}
	s.metrics.ObserveRun(string(mode), outcome, time.Since(start), dropped)
	if err != nil {
		return nil, err
	}

	if err := s.publisher.PublishRunCompleted(ctx, events.NewRunCompleted(result)); err != nil {
		s.logger.Warn("Failed to publish run completed event", "run_id", result.RunID, "error", err)
	}
	return result, nil
}

func (s *Simulator) run(ctx context.Context, ideas []models.Idea, mode models.Mode, count int, questions []string) (*models.SimulationResult, int, error) {
	tracker := usage.NewTracker(s.prices)
	userPrompt := agent.UserPrompt(ideas[0])

	exp, err := s.store.InsertExperiment(ctx, userPrompt, questions)
	if err != nil {
		return nil, 0, fmt.Errorf("create experiment: %w", err)
	}
	logger := s.logger.With("experiment_id", exp.ExperimentID)
	logger.Info("Experiment created", "mode", mode, "persona_count", count)

	variantIdeas := ideas[:1]
	if mode == models.ModeCompare {
		variantIdeas = ideas[:2]
	}
	variants := make([]models.Variant, 0, len(variantIdeas))
	for i, idea := range variantIdeas {
		v, err := s.store.InsertVariant(ctx, exp.ExperimentID, variantKey(i), stimulus(idea))
		if err != nil {
			return nil, 0, fmt.Errorf("create variant %s: %w", variantKey(i), err)
		}
		variants = append(variants, *v)
	}

	directorStart := time.Now()
	gen, err := agent.Generate[models.DirectorOutput](ctx, s.ctl, agent.Request{
		PromptID: s.ids.Director,
		Variables: map[string]any{
			"idea_context":  ideaContext(ideas, mode, count),
			"mode":          string(mode),
			"persona_count": count,
		},
		Tracker:      tracker,
		ExperimentID: exp.ExperimentID,
	}, schema.KindDirector)
	if err != nil {
		logger.Error("Director stage failed", "error", err)
		return nil, 0, fmt.Errorf("%w: %w", ErrDirector, err)
	}
	director := gen.Value
	logger.Info("Director completed",
		"duration", time.Since(directorStart),
		"personas", len(director.Personas),
		"risks", len(director.Risks))

	run := agent.RunContext{
		ExperimentID: exp.ExperimentID,
		UserPrompt:   userPrompt,
		Questions:    questions,
		Tracker:      tracker,
	}
	outcomes := s.fanOut(ctx, logger, run, director.Personas, variants)
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("simulation run: %w", err)
	}

	result := &models.SimulationResult{
		RunID:          uuid.NewString(),
		ExperimentID:   exp.ExperimentID,
		CreatedAt:      time.Now().UTC(),
		Mode:           mode,
		Ideas:          ideas,
		Variants:       variants,
		Personas:       []models.Persona{},
		Responses:      []models.PersonaResponse{},
		DecisionTraces: []models.DecisionTrace{},
		Risks:          director.Risks,
		Scorecard:      director.Scorecard,
		Recommendation: director.Recommendation,
		Plan:           director.Plan,
	}
	dropped := 0
	for _, out := range outcomes {
		if out == nil {
			dropped++
			continue
		}
		result.Personas = append(result.Personas, out.Persona)
		for _, v := range out.Variants {
			result.Responses = append(result.Responses, *v.Response)
			result.DecisionTraces = append(result.DecisionTraces, *v.Trace)
		}
	}

	snap := tracker.Snapshot()
	result.CreditUsage = snap.TotalCost
	logger.Info("Simulation completed",
		"run_id", result.RunID,
		"personas", len(result.Personas),
		"dropped", dropped,
		"responses", len(result.Responses),
		"calls", snap.CallCount,
		"input_tokens", snap.InputTokens,
		"output_tokens", snap.OutputTokens,
		"credit_usage", usage.FormatCost(snap.TotalCost))
	return result, dropped, nil
}

// fanOut runs every persona pipeline with at most maxConcurrency in flight.
// The returned slice follows director order; failed personas are nil.
func (s *Simulator) fanOut(ctx context.Context, logger *slog.Logger, run agent.RunContext, personas []models.DirectorPersona, variants []models.Variant) []*agent.PersonaOutcome {
	outcomes := make([]*agent.PersonaOutcome, len(personas))

	var g errgroup.Group
	g.SetLimit(max(1, min(len(personas), s.maxConcurrency)))
	for i, p := range personas {
		g.Go(func() error {
			name := p.Demographics.Name()
			out, err := s.personas.Run(ctx, run, p.Demographics, variants)
			if err != nil {
				logger.Warn("Dropping persona", "index", i, "name", name, "error", err)
				return nil
			}
			logger.Debug("Persona completed", "index", i, "name", name)
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func validate(ideas []models.Idea, mode models.Mode, personaCount int) ([]models.Idea, int, error) {
	if !mode.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}
	switch {
	case len(ideas) == 0:
		return nil, 0, fmt.Errorf("%w: at least one idea is required", ErrInvalidInput)
	case len(ideas) > 2:
		return nil, 0, fmt.Errorf("%w: at most two ideas per run, got %d", ErrInvalidInput, len(ideas))
	case mode == models.ModeCompare && len(ideas) != 2:
		return nil, 0, fmt.Errorf("%w: compare mode needs exactly two ideas", ErrInvalidInput)
	}

	out := make([]models.Idea, len(ideas))
	for i, idea := range ideas {
		if idea.Title == "" {
			return nil, 0, fmt.Errorf("%w: idea %d has no title", ErrInvalidInput, i+1)
		}
		if idea.ID == "" {
			idea.ID = fmt.Sprintf("idea-%d", i+1)
		}
		out[i] = idea
	}

	switch {
	case personaCount == 0:
		personaCount = DefaultPersonaCount
	case personaCount < 1:
		personaCount = 1
	case personaCount > MaxPersonaCount:
		personaCount = MaxPersonaCount
	}
	return out, personaCount, nil
}

func variantKey(i int) string {
	return string(rune('A' + i))
}

func stimulus(idea models.Idea) models.Stimulus {
	return models.Stimulus{
		"idea_id":     idea.ID,
		"title":       idea.Title,
		"description": idea.Description,
	}
}

// ideaContext is the free-text idea block of the director prompt.
func ideaContext(ideas []models.Idea, mode models.Mode, count int) string {
	if mode == models.ModeCompare {
		return fmt.Sprintf("Mode: COMPARE\nIdea A: %s - %s\nIdea B: %s - %s\nPersona Count: %d",
			ideas[0].Title, ideas[0].Description, ideas[1].Title, ideas[1].Description, count)
	}
	return fmt.Sprintf("Idea: %s\nContext: %s\nMode: SINGLE\nPersona Count: %d",
		ideas[0].Title, ideas[0].Description, count)
}
