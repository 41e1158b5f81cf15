package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// maxResponseSize limits a gateway response body read on the managed-prompt path.
const maxResponseSize = 10 * 1024 * 1024

// OpenAIGateway talks to an OpenAI-compatible endpoint (OpenAI itself, or a
// proxy such as Keywords AI that also supports managed prompts).
type OpenAIGateway struct {
	client     *openai.Client
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// OpenAIOption configures an OpenAIGateway.
type OpenAIOption func(*OpenAIGateway)

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(g *OpenAIGateway) {
		g.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OpenAIOption {
	return func(g *OpenAIGateway) {
		g.logger = logger
	}
}

// NewOpenAIGateway creates a gateway for baseURL (".../v1" or ".../api").
// An empty baseURL means api.openai.com.
func NewOpenAIGateway(baseURL, apiKey string, opts ...OpenAIOption) *OpenAIGateway {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	g := &OpenAIGateway{
		httpClient: &http.Client{Timeout: 180 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = g.baseURL
	cfg.HTTPClient = g.httpClient
	g.client = openai.NewClientWithConfig(cfg)
	return g
}

// Complete sends one non-streaming chat completion.
func (g *OpenAIGateway) Complete(ctx context.Context, req Request) (*Completion, error) {
	if req.Prompt != nil {
		return g.completeManaged(ctx, req)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, NewTransportError("chat completion", statusFromOpenAIError(err), err)
	}
	return completionFromOpenAI(resp, req.Model), nil
}

// managedRequest is a chat completion carrying the gateway's prompt-management
// extension, which go-openai has no field for.
type managedRequest struct {
	Model    string                         `json:"model"`
	Messages []openai.ChatCompletionMessage `json:"messages"`
	Prompt   *ManagedPrompt                 `json:"prompt"`
}

func (g *OpenAIGateway) completeManaged(ctx context.Context, req Request) (*Completion, error) {
	messages := req.Messages
	if len(messages) == 0 {
		// The gateway requires at least one message even though the managed
		// template replaces them.
		messages = []Message{{Role: RoleUser, Content: "placeholder"}}
	}
	body, err := json.Marshal(managedRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(messages),
		Prompt:   req.Prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal managed prompt request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	g.logger.Debug("Sending managed prompt request",
		"prompt_id", req.Prompt.ID,
		"model", req.Model)

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransportError("managed prompt", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransportError("managed prompt", httpResp.StatusCode, fmt.Errorf("read response body: %w", err))
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, NewTransportError("managed prompt", httpResp.StatusCode, errors.New(truncate(string(respBody), 200)))
	}

	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, NewTransportError("managed prompt", httpResp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return completionFromOpenAI(resp, req.Model), nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func completionFromOpenAI(resp openai.ChatCompletionResponse, requestedModel string) *Completion {
	c := &Completion{
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if c.Model == "" {
		c.Model = requestedModel
	}
	if len(resp.Choices) > 0 {
		c.Content = resp.Choices[0].Message.Content
	}
	return c
}

func statusFromOpenAIError(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
