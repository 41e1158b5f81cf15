// Package llm talks to OpenAI-compatible and Gemini chat-completion gateways.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ManagedPrompt references a prompt template stored on the gateway side.
// The gateway renders it with Variables instead of using Messages.
type ManagedPrompt struct {
	ID        string         `json:"prompt_id"`
	Variables map[string]any `json:"variables"`
	Override  bool           `json:"override"`
	Version   string         `json:"version,omitempty"`
}

// Request is a single non-streaming completion request.
type Request struct {
	// PromptID names the logical prompt for logs and metrics.
	PromptID string
	Model    string
	Messages []Message
	// Prompt, when set, asks the gateway to render a managed template.
	Prompt *ManagedPrompt
	// JSONMode asks the provider to constrain output to a JSON object.
	JSONMode bool
}

// Completion is the gateway's answer with token usage when reported.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Gateway is anything that can complete a chat request.
type Gateway interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}
