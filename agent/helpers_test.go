package agent_test

import (
	"context"
	"testing"

	"ideasim/agent"
	"ideasim/db"
	"ideasim/llm"
	"ideasim/llm/llmtest"
	"ideasim/models"
	"ideasim/prompts"

	"github.com/stretchr/testify/require"
)

type harness struct {
	gw    *llmtest.ScriptedGateway
	store *db.MemoryStore
	ctl   *agent.Controller
}

func newHarness(t *testing.T, gw *llmtest.ScriptedGateway) *harness {
	t.Helper()
	reg, err := prompts.NewRegistry()
	require.NoError(t, err)

	store := db.NewMemoryStore()
	inv := prompts.NewInvoker(gw, reg, llmtest.FixtureModel)
	return &harness{
		gw:    gw,
		store: store,
		ctl:   agent.NewController(inv, store),
	}
}

func (h *harness) promptRuns(t *testing.T) []models.PromptRun {
	t.Helper()
	runs, err := h.store.ListPromptRuns(context.Background(), "")
	require.NoError(t, err)
	return runs
}

func completion(content string) *llm.Completion {
	return &llm.Completion{Content: content, Model: llmtest.FixtureModel, PromptTokens: 200, CompletionTokens: 80}
}
