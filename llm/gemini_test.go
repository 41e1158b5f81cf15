package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestToGeminiContents(t *testing.T) {
	contents, cfg := toGeminiContents([]Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
	})

	require.Len(t, contents, 2)
	assert.Equal(t, string(genai.RoleUser), string(contents[0].Role))
	assert.Equal(t, string(genai.RoleModel), string(contents[1].Role))
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be terse", cfg.SystemInstruction.Parts[0].Text)
}

func TestGeminiGateway_RejectsManagedPrompts(t *testing.T) {
	g := &GeminiGateway{}
	_, err := g.Complete(context.Background(), Request{Prompt: &ManagedPrompt{ID: "remote"}})
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestNewGeminiGateway_RequiresKey(t *testing.T) {
	_, err := NewGeminiGateway(context.Background(), "", "")
	assert.Error(t, err)
}
