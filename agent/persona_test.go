package agent_test

import (
	"context"
	"testing"

	"ideasim/agent"
	"ideasim/llm"
	"ideasim/llm/llmtest"
	"ideasim/models"
	"ideasim/prompts"
	"ideasim/usage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureRoutes() map[string]string {
	return map[string]string{
		prompts.ProfileLocal:  llmtest.ProfileJSON,
		prompts.ResponseLocal: llmtest.ResponseJSON,
		prompts.TraceLocal:    llmtest.TraceJSON,
	}
}

func setupRun(t *testing.T, h *harness, keys ...string) (agent.RunContext, []models.Variant) {
	t.Helper()
	ctx := context.Background()
	exp, err := h.store.InsertExperiment(ctx, "Evaluate the idea: GreenProof - verified carbon receipts", nil)
	require.NoError(t, err)

	var variants []models.Variant
	for _, key := range keys {
		v, err := h.store.InsertVariant(ctx, exp.ExperimentID, key, models.Stimulus{"title": "GreenProof " + key})
		require.NoError(t, err)
		variants = append(variants, *v)
	}
	return agent.RunContext{
		ExperimentID: exp.ExperimentID,
		UserPrompt:   exp.UserPrompt,
		Tracker:      usage.NewTracker(nil),
	}, variants
}

func TestPersonaAgent_Run(t *testing.T) {
	h := newHarness(t, &llmtest.ScriptedGateway{Handler: llmtest.Route(fixtureRoutes())})
	pa := agent.NewPersonaAgent(h.ctl, h.store)
	run, variants := setupRun(t, h, "A")

	out, err := pa.Run(context.Background(), run, models.Demographics{"name": "Maya", "age": 34}, variants)
	require.NoError(t, err)

	assert.NotEmpty(t, out.Persona.PersonaID)
	require.NotNil(t, out.Persona.Profile)
	assert.Equal(t, "blunt", out.Persona.Profile.CommunicationStyle.Tone)
	require.Len(t, out.Variants, 1)

	resp := out.Variants[0].Response
	assert.NotEmpty(t, resp.ResponseID)
	assert.Equal(t, run.ExperimentID, resp.ExperimentID)
	assert.Equal(t, variants[0].VariantID, resp.VariantID)
	assert.Equal(t, 3, resp.Scores.PurchaseIntent)

	trace := out.Variants[0].Trace
	assert.Equal(t, resp.ResponseID, trace.ResponseID)
	assert.Equal(t, "income_band", trace.PersonaFactorsUsed[0].Name)
	assert.Equal(t, "verified receipts", trace.StimulusCues[0].Name)

	runs := h.promptRuns(t)
	require.Len(t, runs, 3)
	assert.Equal(t, resp.ResponseID, runs[2].ResponseID)
	assert.Equal(t, 3, run.Tracker.Snapshot().CallCount)

	// The stored profile was persisted for reuse.
	rec, err := h.store.GetPersonaByID(context.Background(), out.Persona.PersonaID)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Profile)
}

func TestPersonaAgent_RunBothVariants(t *testing.T) {
	h := newHarness(t, &llmtest.ScriptedGateway{Handler: llmtest.Route(fixtureRoutes())})
	pa := agent.NewPersonaAgent(h.ctl, h.store)
	run, variants := setupRun(t, h, "A", "B")

	out, err := pa.Run(context.Background(), run, models.Demographics{"name": "Tom"}, variants)
	require.NoError(t, err)
	require.Len(t, out.Variants, 2)
	assert.Equal(t, "A", out.Variants[0].Variant.VariantKey)
	assert.Equal(t, "B", out.Variants[1].Variant.VariantKey)
	assert.NotEqual(t, out.Variants[0].Response.ResponseID, out.Variants[1].Response.ResponseID)

	// One profile, then a response and a trace per variant.
	assert.Equal(t, 1, h.gw.CountPrompt(prompts.ProfileLocal))
	assert.Equal(t, 2, h.gw.CountPrompt(prompts.ResponseLocal))
	assert.Equal(t, 2, h.gw.CountPrompt(prompts.TraceLocal))

	// Each variant's stimulus reached its own response prompt.
	var texts []string
	for _, req := range h.gw.Requests() {
		if req.PromptID == prompts.ResponseLocal {
			texts = append(texts, llmtest.PromptText(req))
		}
	}
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "GreenProof A")
	assert.Contains(t, texts[1], "GreenProof B")
}

func TestPersonaAgent_GenerateResponseIsIdempotent(t *testing.T) {
	h := newHarness(t, &llmtest.ScriptedGateway{Handler: llmtest.Route(fixtureRoutes())})
	pa := agent.NewPersonaAgent(h.ctl, h.store)
	run, variants := setupRun(t, h, "A")
	ctx := context.Background()

	personaID, err := pa.EnsureStored(ctx, models.Demographics{"name": "Maya"})
	require.NoError(t, err)
	profile, err := pa.EnsureProfile(ctx, run, personaID, models.Demographics{"name": "Maya"})
	require.NoError(t, err)

	in := agent.ResponseInput{
		PersonaID:    personaID,
		Demographics: models.Demographics{"name": "Maya"},
		Profile:      profile,
		Variant:      variants[0],
	}
	first, err := pa.GenerateResponse(ctx, run, in)
	require.NoError(t, err)

	callsBefore := h.gw.CallCount()
	second, err := pa.GenerateResponse(ctx, run, in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, callsBefore, h.gw.CallCount())
}

func TestPersonaAgent_EnsureProfileReusesValidProfile(t *testing.T) {
	h := newHarness(t, &llmtest.ScriptedGateway{Handler: llmtest.Route(fixtureRoutes())})
	pa := agent.NewPersonaAgent(h.ctl, h.store)
	run, _ := setupRun(t, h)
	ctx := context.Background()

	personaID, err := pa.EnsureStored(ctx, models.Demographics{"name": "Ana"})
	require.NoError(t, err)
	h.store.SetPersonaProfile(personaID, map[string]any{
		"one_liner":           "Stored",
		"pain_points":         []any{"a"},
		"alternatives":        []any{},
		"communication_style": map[string]any{"tone": "warm", "verbosity": "high"},
	})

	profile, err := pa.EnsureProfile(ctx, run, personaID, models.Demographics{"name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Stored", profile.OneLiner)
	assert.Zero(t, h.gw.CallCount())
}

func TestPersonaAgent_EnsureProfileRegeneratesInvalidProfile(t *testing.T) {
	h := newHarness(t, &llmtest.ScriptedGateway{Handler: llmtest.Route(fixtureRoutes())})
	pa := agent.NewPersonaAgent(h.ctl, h.store)
	run, _ := setupRun(t, h)
	ctx := context.Background()

	personaID, err := pa.EnsureStored(ctx, models.Demographics{"name": "Ana"})
	require.NoError(t, err)
	h.store.SetPersonaProfile(personaID, map[string]any{"one_liner": "half a profile"})

	profile, err := pa.EnsureProfile(ctx, run, personaID, models.Demographics{"name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Budget-conscious commuter who tracks every expense", profile.OneLiner)
	assert.Equal(t, 1, h.gw.CallCount())

	rec, err := h.store.GetPersonaByID(ctx, personaID)
	require.NoError(t, err)
	assert.Equal(t, profile.OneLiner, rec.Profile["one_liner"])
}

func TestPersonaAgent_EnsureProfileUnknownPersona(t *testing.T) {
	h := newHarness(t, &llmtest.ScriptedGateway{Handler: llmtest.Route(fixtureRoutes())})
	pa := agent.NewPersonaAgent(h.ctl, h.store)
	run, _ := setupRun(t, h)

	_, err := pa.EnsureProfile(context.Background(), run, "missing", models.Demographics{"name": "X"})
	assert.Error(t, err)
	assert.Zero(t, h.gw.CallCount())
}

func TestPersonaAgent_DecisionTraceRegeneration(t *testing.T) {
	tests := []struct {
		name       string
		reuse      bool
		wantCalls  int
		wantStored int
	}{
		{name: "regenerates by default", reuse: false, wantCalls: 2, wantStored: 2},
		{name: "reuses when enabled", reuse: true, wantCalls: 1, wantStored: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &llmtest.ScriptedGateway{Handler: llmtest.Route(fixtureRoutes())})
			pa := agent.NewPersonaAgent(h.ctl, h.store, agent.WithTraceReuse(tt.reuse))
			run, variants := setupRun(t, h, "A")
			ctx := context.Background()

			resp, err := h.store.InsertResponse(ctx, &models.PersonaResponse{
				ExperimentID: run.ExperimentID,
				VariantID:    variants[0].VariantID,
				PersonaID:    "p1",
				Scores:       models.Scores{PurchaseIntent: 2, Trust: 2, Clarity: 2, Differentiation: 2},
			})
			require.NoError(t, err)

			in := agent.TraceInput{Response: resp, Demographics: models.Demographics{"name": "Z"}, Stimulus: variants[0].Stimulus}
			_, err = pa.BuildDecisionTrace(ctx, run, in)
			require.NoError(t, err)
			_, err = pa.BuildDecisionTrace(ctx, run, in)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCalls, h.gw.CountPrompt(prompts.TraceLocal))
			assert.Equal(t, tt.wantStored, h.store.TraceCount(resp.ResponseID))
		})
	}
}

func TestPersonaAgent_RunFailsWhenAStageFails(t *testing.T) {
	routes := fixtureRoutes()
	routes[prompts.ResponseLocal] = "I'd rather not say."
	h := newHarness(t, &llmtest.ScriptedGateway{Handler: llmtest.Route(routes)})
	pa := agent.NewPersonaAgent(h.ctl, h.store)
	run, variants := setupRun(t, h, "A")

	out, err := pa.Run(context.Background(), run, models.Demographics{"name": "Maya"}, variants)
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrParse)
	assert.Nil(t, out)
	assert.Equal(t, 2, h.gw.CountPrompt(prompts.ResponseLocal))
	assert.Zero(t, h.gw.CountPrompt(prompts.TraceLocal))
}

func TestPersonaAgent_CustomPromptIDs(t *testing.T) {
	ids := prompts.DefaultIDs()
	ids.Profile = "kw-profile-123"
	routes := fixtureRoutes()
	routes["kw-profile-123"] = llmtest.ProfileJSON

	h := newHarness(t, &llmtest.ScriptedGateway{Handler: llmtest.Route(routes)})
	pa := agent.NewPersonaAgent(h.ctl, h.store, agent.WithPromptIDs(ids))
	run, variants := setupRun(t, h, "A")

	_, err := pa.Run(context.Background(), run, models.Demographics{"name": "Maya"}, variants)
	require.NoError(t, err)

	var managed []llm.Request
	for _, req := range h.gw.Requests() {
		if req.Prompt != nil {
			managed = append(managed, req)
		}
	}
	require.Len(t, managed, 1)
	assert.Equal(t, "kw-profile-123", managed[0].Prompt.ID)
	assert.JSONEq(t, `{"name":"Maya"}`, managed[0].Prompt.Variables["demographics_json"].(string))
}
