// Package agent runs the LLM-backed stages of a simulation: the
// validate-and-repair controller and the persona and summary agents built on it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"ideasim/db"
	"ideasim/llm"
	"ideasim/metrics"
	"ideasim/models"
	"ideasim/prompts"
	"ideasim/schema"
	"ideasim/usage"
)

// Failure categories of Generate, matched with errors.Is.
var (
	ErrTransport  = llm.ErrTransport
	ErrParse      = schema.ErrParse
	ErrValidation = schema.ErrValidation
)

const (
	maxAttempts         = 2
	defaultAuditTimeout = 5 * time.Second
)

// Invoker performs one prompt call.
type Invoker interface {
	Invoke(ctx context.Context, call prompts.Call) (*prompts.Result, error)
}

// Controller wraps prompt calls in parse, validate and a single repair
// attempt, and writes one PromptRun row per attempt.
type Controller struct {
	invoker      Invoker
	store        db.Store
	prices       usage.PriceTable
	metrics      *metrics.Metrics
	logger       *slog.Logger
	auditTimeout time.Duration
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

func WithPrices(prices usage.PriceTable) ControllerOption {
	return func(c *Controller) {
		c.prices = prices
	}
}

func WithMetrics(m *metrics.Metrics) ControllerOption {
	return func(c *Controller) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithAuditTimeout bounds each PromptRun write.
func WithAuditTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.auditTimeout = d
	}
}

// NewController creates a controller calling invoker and auditing to store.
func NewController(invoker Invoker, store db.Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		invoker:      invoker,
		store:        store,
		prices:       usage.DefaultPrices(),
		logger:       slog.Default(),
		auditTimeout: defaultAuditTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "controller")
	return c
}

// Request describes one generation. The ids are only recorded on the
// PromptRun rows.
type Request struct {
	PromptID  string
	Variables map[string]any
	Tracker   *usage.Tracker

	ExperimentID string
	PersonaID    string
	ResponseID   string
}

// Generated is a validated value with the call that produced it.
type Generated[T any] struct {
	Value    T
	Result   *prompts.Result
	Attempts int
}

// GenerateError is a generation that produced no valid value. Reason is the
// text recorded on the last PromptRun row.
type GenerateError struct {
	PromptID string
	Attempts int
	Reason   string
	Err      error
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("generate %s: %s", e.PromptID, e.Reason)
}

func (e *GenerateError) Unwrap() error {
	return e.Err
}

// Generate calls the prompt, then parses and validates the output against
// kind. Invalid output gets exactly one repair attempt carrying repair_mode
// and the invalid text; transport failures are never repaired.
func Generate[T any](ctx context.Context, c *Controller, req Request, kind schema.Kind) (*Generated[T], error) {
	logger := c.logger.With("prompt_id", req.PromptID, "kind", kind.String())

	result, err := c.invoker.Invoke(ctx, prompts.Call{
		PromptID:  req.PromptID,
		Variables: req.Variables,
		Tracker:   req.Tracker,
	})
	if err != nil {
		reason := fmt.Sprintf("API call failed: %v", err)
		c.recordRun(ctx, req, 1, nil, reason)
		logger.Error("Prompt call failed", "error", err)
		return nil, &GenerateError{PromptID: req.PromptID, Attempts: 1, Reason: reason, Err: err}
	}

	value, err := schema.DecodeText[T](kind, result.Content)
	if err == nil {
		c.recordRun(ctx, req, 1, result, "")
		return &Generated[T]{Value: value, Result: result, Attempts: 1}, nil
	}

	firstReason := "JSON parsing failed"
	if !errors.Is(err, ErrParse) {
		firstReason = fmt.Sprintf("Validation failed: %v", err)
	}
	c.recordRun(ctx, req, 1, result, firstReason)
	logger.Warn("Invalid model output, attempting repair", "reason", firstReason)
	c.metrics.ObserveRepair(req.PromptID)

	repairVars := make(map[string]any, len(req.Variables)+2)
	maps.Copy(repairVars, req.Variables)
	repairVars["repair_mode"] = true
	repairVars["invalid_output"] = result.Content

	result, err = c.invoker.Invoke(ctx, prompts.Call{
		PromptID:  req.PromptID,
		Variables: repairVars,
		Tracker:   req.Tracker,
	})
	if err != nil {
		reason := fmt.Sprintf("Repair API call failed: %v", err)
		c.recordRun(ctx, req, maxAttempts, nil, reason)
		logger.Error("Repair prompt call failed", "error", err)
		return nil, &GenerateError{PromptID: req.PromptID, Attempts: maxAttempts, Reason: reason, Err: err}
	}

	value, err = schema.DecodeText[T](kind, result.Content)
	if err != nil {
		reason := "JSON parsing failed after repair"
		if !errors.Is(err, ErrParse) {
			reason = fmt.Sprintf("Validation failed after repair: %v", err)
		}
		c.recordRun(ctx, req, maxAttempts, result, reason)
		logger.Error("Model output still invalid after repair", "reason", reason)
		return nil, &GenerateError{PromptID: req.PromptID, Attempts: maxAttempts, Reason: reason, Err: err}
	}

	c.recordRun(ctx, req, maxAttempts, result, "")
	return &Generated[T]{Value: value, Result: result, Attempts: maxAttempts}, nil
}

// recordRun writes the PromptRun row of one attempt. It never fails the
// generation: write errors are logged, and the write outlives cancellation
// of ctx up to the audit timeout.
func (c *Controller) recordRun(ctx context.Context, req Request, attempt int, result *prompts.Result, reason string) {
	run := &models.PromptRun{
		CreatedAt:    time.Now().UTC(),
		ExperimentID: req.ExperimentID,
		PersonaID:    req.PersonaID,
		ResponseID:   req.ResponseID,
		PromptID:     req.PromptID,
		Attempt:      attempt,
		Error:        reason,
	}
	if result != nil {
		run.Model = result.Model
		run.InputHash = result.InputHash
		run.OutputHash = result.OutputHash
		run.LatencyMs = result.LatencyMs
		run.InputTokens = result.InputTokens
		run.OutputTokens = result.OutputTokens
		run.CostUSD = c.prices.Cost(result.Model, result.InputTokens, result.OutputTokens)
		c.metrics.AddCost(run.CostUSD)
	}

	if c.store == nil {
		return
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.auditTimeout)
	defer cancel()
	if err := c.store.InsertPromptRun(auditCtx, run); err != nil {
		c.logger.Error("Failed to log prompt run",
			"prompt_id", req.PromptID,
			"attempt", attempt,
			"error", err)
	}
}
