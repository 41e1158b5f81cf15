package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiGateway completes requests through the Gemini API.
type GeminiGateway struct {
	client *genai.Client
}

// NewGeminiGateway creates a Gemini-backed gateway. baseURL is optional and
// only needed for proxies.
func NewGeminiGateway(ctx context.Context, apiKey, baseURL string) (*GeminiGateway, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGateway{client: client}, nil
}

// Complete sends the conversation to GenerateContent. Managed prompts are an
// OpenAI-gateway extension and are rejected here.
func (g *GeminiGateway) Complete(ctx context.Context, req Request) (*Completion, error) {
	if req.Prompt != nil {
		return nil, NewTransportError("gemini generate", 0,
			fmt.Errorf("managed prompt %q is not supported by the gemini provider", req.Prompt.ID))
	}

	contents, genConfig := toGeminiContents(req.Messages)
	if req.JSONMode {
		genConfig.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, genConfig)
	if err != nil {
		return nil, NewTransportError("gemini generate", 0, err)
	}

	c := &Completion{
		Content: resp.Text(),
		Model:   resp.ModelVersion,
	}
	if c.Model == "" {
		c.Model = req.Model
	}
	if resp.UsageMetadata != nil {
		c.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		c.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return c, nil
}

// toGeminiContents maps chat messages onto Gemini contents. System messages
// become the system instruction.
func toGeminiContents(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	genConfig := &genai.GenerateContentConfig{}
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		genConfig.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, genConfig
}
