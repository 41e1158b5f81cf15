package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideasim/agent"
	"ideasim/config"
	"ideasim/llm/llmtest"
	"ideasim/models"
	"ideasim/prompts"
)

func testConfig() *config.Config {
	return &config.Config{
		MongoDBDatabase: "ideasim",
		LLMProvider:     config.ProviderOpenAI,
		PrimaryModel:    llmtest.FixtureModel,
		PromptIDs:       prompts.DefaultIDs(),
		MaxConcurrency:  4,
		Port:            "0",
	}
}

func fixtureGateway(names ...string) *llmtest.ScriptedGateway {
	return &llmtest.ScriptedGateway{Handler: llmtest.Route(map[string]string{
		prompts.DirectorLocal: llmtest.DirectorJSON(names...),
		prompts.ProfileLocal:  llmtest.ProfileJSON,
		prompts.ResponseLocal: llmtest.ResponseJSON,
		prompts.TraceLocal:    llmtest.TraceJSON,
		prompts.SummaryLocal:  llmtest.SummaryJSON,
	})}
}

func newTestApp(t *testing.T, cfg *config.Config, gw *llmtest.ScriptedGateway) *App {
	t.Helper()
	app, err := NewApp(context.Background(), cfg, slog.Default(), withGateway(gw))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })
	return app
}

func TestApp_SimulateOverHTTP(t *testing.T) {
	app := newTestApp(t, testConfig(), fixtureGateway("Maya", "Tom", "Ana"))
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	body := `{"ideas":[{"title":"GreenProof","description":"supply-chain verification"}],"mode":"single","personaCount":3}`
	resp, err := http.Post(srv.URL+"/simulate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var result models.SimulationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Len(t, result.Personas, 3)
	assert.Len(t, result.Risks, 2)
	assert.Len(t, result.Plan, 2)
	assert.Greater(t, result.CreditUsage, 0.0)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}

func TestApp_MockFallbackOverHTTP(t *testing.T) {
	cfg := testConfig()
	cfg.MockFallback = true
	gw := fixtureGateway()
	gw.Handler = llmtest.Route(map[string]string{prompts.DirectorLocal: "not json"})
	app := newTestApp(t, cfg, gw)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/simulate", strings.NewReader(`{"ideas":[{"title":"GreenProof"}]}`))
	app.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.SimulationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Mock)
}

func TestRunSimulation_WithSummary(t *testing.T) {
	app := newTestApp(t, testConfig(), fixtureGateway("Maya", "Tom"))

	var buf bytes.Buffer
	err := runSimulation(context.Background(), app, runFlags{
		title:       "GreenProof",
		description: "supply-chain verification",
		personas:    2,
		summarize:   true,
	}, &buf)
	require.NoError(t, err)

	var out runOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Len(t, out.Result.Personas, 2)
	require.Len(t, out.Summaries, 1)
	assert.Equal(t, "A", out.Summaries[0].VariantKey)
	assert.Equal(t, "mixed", out.Summaries[0].Summary.OverallStance)

	// The printed output can be fed back to summarize.
	inputs, err := parseSummaryInputs(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, out.Result.ExperimentID, inputs[0].ExperimentID)
	assert.Len(t, inputs[0].Responses, 2)
}

func TestRunSimulation_CompareSummarizesEachVariant(t *testing.T) {
	gw := fixtureGateway("Maya", "Tom")
	app := newTestApp(t, testConfig(), gw)

	var buf bytes.Buffer
	err := runSimulation(context.Background(), app, runFlags{
		title:              "GreenProof",
		description:        "supply-chain verification",
		compareTitle:       "CarbonLedger",
		compareDescription: "public emissions ledger",
		personas:           2,
		summarize:          true,
	}, &buf)
	require.NoError(t, err)

	var out runOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Len(t, out.Result.Responses, 4)
	require.Len(t, out.Result.Variants, 2)
	require.Len(t, out.Summaries, 2)
	assert.Equal(t, "A", out.Summaries[0].VariantKey)
	assert.Equal(t, "B", out.Summaries[1].VariantKey)

	inputs, err := parseSummaryInputs(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	for i, in := range inputs {
		require.Len(t, in.Responses, 2)
		for _, r := range in.Responses {
			assert.Equal(t, out.Result.Variants[i].VariantID, r.Response.VariantID)
		}
	}
	assert.Equal(t, "CarbonLedger", inputs[1].Stimulus["title"])
}

func TestRunFlags_Ideas(t *testing.T) {
	ideas, mode := runFlags{title: "A"}.ideas()
	assert.Equal(t, models.ModeSingle, mode)
	assert.Len(t, ideas, 1)

	ideas, mode = runFlags{title: "A", compareTitle: "B"}.ideas()
	assert.Equal(t, models.ModeCompare, mode)
	assert.Equal(t, "B", ideas[1].Title)
}

func TestParseSummaryInputs(t *testing.T) {
	request := `{"experiment_id":"e","stimulus":{"title":"X"},"user_prompt":"p","all_responses":[{"persona_id":"p1","response":{}}]}`
	inputs, err := parseSummaryInputs([]byte(request))
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "e", inputs[0].ExperimentID)

	result := `{"experimentId":"e2","mode":"single","ideas":[{"title":"X","description":"d"}],"personas":[{"persona_id":"p1"}],"responses":[{"persona_id":"p1","response_id":"r1"}]}`
	inputs, err = parseSummaryInputs([]byte(result))
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "e2", inputs[0].ExperimentID)
	assert.Equal(t, "Evaluate the idea: X - d", inputs[0].UserPrompt)

	compareNoVariants := `{"experimentId":"e3","mode":"compare","ideas":[{"title":"X"},{"title":"Y"}],"responses":[{"persona_id":"p1"}]}`
	_, err = parseSummaryInputs([]byte(compareNoVariants))
	assert.ErrorIs(t, err, agent.ErrInvalidSummaryInput)

	_, err = parseSummaryInputs([]byte(`{"hello":"world"}`))
	assert.Error(t, err)

	_, err = parseSummaryInputs([]byte(`{"experiment_id":"e","stimulus":{},"user_prompt":"p","all_responses":[]}`))
	assert.Error(t, err)
}

func TestNewGateway_RequiresKey(t *testing.T) {
	cfg := testConfig()
	_, err := newGateway(context.Background(), cfg, slog.Default())
	assert.Error(t, err)

	cfg.LLMAPIKey = "sk-test"
	gw, err := newGateway(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, gw)
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "ideasim version "+Version)
}
