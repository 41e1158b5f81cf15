package prompts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ideasim/llm"
	"ideasim/llm/llmtest"
	"ideasim/prompts"
	"ideasim/usage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInvoker(t *testing.T, gw llm.Gateway, opts ...prompts.InvokerOption) *prompts.Invoker {
	t.Helper()
	reg, err := prompts.NewRegistry()
	require.NoError(t, err)
	return prompts.NewInvoker(gw, reg, "gpt-4o-mini", opts...)
}

func TestInvoke_LocalPrompt(t *testing.T) {
	gw := &llmtest.ScriptedGateway{
		Responses: []*llm.Completion{
			{Content: `{"ok":true}`, Model: "gpt-4o-mini-2024-07-18", PromptTokens: 120, CompletionTokens: 30},
		},
	}
	tracker := usage.NewTracker(nil)
	inv := newInvoker(t, gw)

	vars := map[string]any{"demographics_json": `{"name":"Maya"}`}
	res, err := inv.Invoke(context.Background(), prompts.Call{
		PromptID:  prompts.ProfileLocal,
		Variables: vars,
		Tracker:   tracker,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, res.Content)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", res.Model)
	assert.Equal(t, 120, res.InputTokens)
	assert.Equal(t, 30, res.OutputTokens)
	assert.Equal(t, prompts.InputHash(prompts.ProfileLocal, vars), res.InputHash)
	assert.Equal(t, prompts.HashText(`{"ok":true}`), res.OutputHash)

	reqs := gw.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, prompts.ProfileLocal, reqs[0].PromptID)
	assert.Equal(t, "gpt-4o-mini", reqs[0].Model)
	assert.Nil(t, reqs[0].Prompt)
	assert.True(t, reqs[0].JSONMode)
	require.Len(t, reqs[0].Messages, 1)
	assert.Contains(t, reqs[0].Messages[0].Content, `{"name":"Maya"}`)

	snap := tracker.Snapshot()
	assert.Equal(t, 1, snap.CallCount)
	assert.Greater(t, snap.TotalCost, 0.0)
}

func TestInvoke_ManagedPrompt(t *testing.T) {
	gw := &llmtest.ScriptedGateway{}
	inv := newInvoker(t, gw)

	vars := map[string]any{"idea_context": "Idea: X", "persona_count": 3}
	res, err := inv.Invoke(context.Background(), prompts.Call{PromptID: "abc123", Variables: vars})
	require.NoError(t, err)
	assert.Equal(t, "test-model", res.Model)

	req := gw.Requests()[0]
	require.NotNil(t, req.Prompt)
	assert.Equal(t, "abc123", req.Prompt.ID)
	assert.Equal(t, vars, req.Prompt.Variables)
	assert.True(t, req.Prompt.Override)
	assert.Equal(t, "latest", req.Prompt.Version)
	assert.False(t, req.JSONMode)
}

func TestInvoke_GatewayErrorIsTransport(t *testing.T) {
	gw := &llmtest.ScriptedGateway{Err: errors.New("connection reset")}
	tracker := usage.NewTracker(nil)
	inv := newInvoker(t, gw)

	_, err := inv.Invoke(context.Background(), prompts.Call{PromptID: prompts.TraceLocal, Tracker: tracker})
	require.Error(t, err)
	assert.True(t, llm.IsTransport(err))
	assert.Zero(t, tracker.Snapshot().CallCount)
}

func TestInvoke_CallTimeout(t *testing.T) {
	gw := &llmtest.ScriptedGateway{
		Handler: func(ctx context.Context, _ llm.Request) (*llm.Completion, error) {
			<-ctx.Done()
			return nil, llm.NewTransportError("complete", 0, ctx.Err())
		},
	}
	inv := newInvoker(t, gw, prompts.WithCallTimeout(20*time.Millisecond))

	_, err := inv.Invoke(context.Background(), prompts.Call{PromptID: prompts.ResponseLocal})
	require.Error(t, err)

	var te *llm.TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Timeout)
}

func TestInvoke_UnknownLocalPrompt(t *testing.T) {
	gw := &llmtest.ScriptedGateway{}
	inv := newInvoker(t, gw)

	_, err := inv.Invoke(context.Background(), prompts.Call{PromptID: "local:missing"})
	assert.Error(t, err)
	assert.Zero(t, gw.CallCount())
}
