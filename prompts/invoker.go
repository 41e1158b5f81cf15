package prompts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ideasim/llm"
	"ideasim/metrics"
	"ideasim/usage"
)

// managedPlaceholder fills the messages array on managed-prompt requests;
// the gateway replaces it with the rendered template.
const managedPlaceholder = "placeholder"

// Call is one prompt invocation.
type Call struct {
	PromptID  string
	Variables map[string]any
	// Tracker receives the call's token usage. Nil skips tracking.
	Tracker *usage.Tracker
}

// Result is the outcome of one successful gateway call.
type Result struct {
	Content      string
	Model        string
	LatencyMs    int64
	InputTokens  int
	OutputTokens int
	InputHash    string
	OutputHash   string
}

// Invoker renders or references a prompt, calls the gateway once and reports
// usage. It does not retry.
type Invoker struct {
	gateway     llm.Gateway
	registry    *Registry
	model       string
	callTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithCallTimeout bounds each gateway call. Zero disables the bound.
func WithCallTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.callTimeout = d
	}
}

func WithMetrics(m *metrics.Metrics) InvokerOption {
	return func(i *Invoker) {
		i.metrics = m
	}
}

func WithLogger(logger *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		i.logger = logger
	}
}

// NewInvoker creates an invoker sending requests for model through gateway.
func NewInvoker(gateway llm.Gateway, registry *Registry, model string, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		gateway:  gateway,
		registry: registry,
		model:    model,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("component", "prompt-invoker")
	return i
}

// Model returns the model requested on every call.
func (i *Invoker) Model() string {
	return i.model
}

// Invoke performs one gateway call. Gateway failures, including an expired
// call deadline, are returned as *llm.TransportError.
func (i *Invoker) Invoke(ctx context.Context, call Call) (*Result, error) {
	req := llm.Request{
		PromptID: call.PromptID,
		Model:    i.model,
	}

	if IsLocal(call.PromptID) {
		content, err := i.registry.Render(call.PromptID, call.Variables)
		if err != nil {
			return nil, err
		}
		req.Messages = []llm.Message{{Role: llm.RoleUser, Content: content}}
		req.JSONMode = true
	} else {
		req.Messages = []llm.Message{{Role: llm.RoleUser, Content: managedPlaceholder}}
		req.Prompt = &llm.ManagedPrompt{
			ID:        call.PromptID,
			Variables: call.Variables,
			Override:  true,
			Version:   "latest",
		}
	}

	if i.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.callTimeout)
		defer cancel()
	}

	start := time.Now()
	completion, err := i.gateway.Complete(ctx, req)
	latency := time.Since(start)
	if err != nil {
		if !llm.IsTransport(err) {
			err = llm.NewTransportError("complete", 0, err)
		}
		i.metrics.ObserveCall(call.PromptID, i.model, latency, 0, 0, err)
		i.logger.Warn("Prompt call failed",
			"prompt_id", call.PromptID,
			"latency_ms", latency.Milliseconds(),
			"error", err)
		return nil, err
	}
	if completion == nil {
		err := llm.NewTransportError("complete", 0, errors.New("empty completion"))
		i.metrics.ObserveCall(call.PromptID, i.model, latency, 0, 0, err)
		return nil, err
	}

	model := completion.Model
	if model == "" {
		model = i.model
	}
	if call.Tracker != nil {
		call.Tracker.Track(model, completion.PromptTokens, completion.CompletionTokens)
	}
	i.metrics.ObserveCall(call.PromptID, model, latency, completion.PromptTokens, completion.CompletionTokens, nil)

	i.logger.Debug("Prompt call completed",
		"prompt_id", call.PromptID,
		"model", model,
		"latency_ms", latency.Milliseconds(),
		"input_tokens", completion.PromptTokens,
		"output_tokens", completion.CompletionTokens,
		"preview", preview(completion.Content, 200))

	return &Result{
		Content:      completion.Content,
		Model:        model,
		LatencyMs:    latency.Milliseconds(),
		InputTokens:  completion.PromptTokens,
		OutputTokens: completion.CompletionTokens,
		InputHash:    InputHash(call.PromptID, call.Variables),
		OutputHash:   HashText(completion.Content),
	}, nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:n], len(s))
}
