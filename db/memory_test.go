package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ideasim/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ExperimentAndVariants(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	exp, err := s.InsertExperiment(ctx, "Evaluate the idea: X - Y", nil)
	require.NoError(t, err)
	require.NotEmpty(t, exp.ExperimentID)

	got, err := s.GetExperimentByID(ctx, exp.ExperimentID)
	require.NoError(t, err)
	assert.Equal(t, exp, got)

	_, err = s.InsertVariant(ctx, exp.ExperimentID, "A", models.Stimulus{"title": "X"})
	require.NoError(t, err)
	_, err = s.InsertVariant(ctx, exp.ExperimentID, "B", models.Stimulus{"title": "Z"})
	require.NoError(t, err)

	variants, err := s.GetVariantsByExperiment(ctx, exp.ExperimentID)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, "A", variants[0].VariantKey)
	assert.Equal(t, "B", variants[1].VariantKey)

	_, err = s.InsertVariant(ctx, "missing", "A", nil)
	var se *StoreError
	assert.True(t, errors.As(err, &se))
}

func TestMemoryStore_NotFoundIsNil(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	exp, err := s.GetExperimentByID(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, exp)

	p, err := s.GetPersonaByID(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, p)

	r, err := s.GetResponseByKeys(ctx, models.ResponseKey{ExperimentID: "e", VariantID: "v", PersonaID: "p"})
	assert.NoError(t, err)
	assert.Nil(t, r)

	tr, err := s.GetDecisionTraceByResponseID(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, tr)
}

func TestMemoryStore_PersonaProfile(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec, err := s.InsertPersona(ctx, models.Demographics{"name": "Maya"})
	require.NoError(t, err)
	assert.Empty(t, rec.Profile)

	// No content dedup: same demographics yield a new persona.
	again, err := s.InsertPersona(ctx, models.Demographics{"name": "Maya"})
	require.NoError(t, err)
	assert.NotEqual(t, rec.PersonaID, again.PersonaID)

	profile := &models.PersonaProfile{
		OneLiner:           "Nurse",
		PainPoints:         []string{"time"},
		Alternatives:       []string{"frozen meals"},
		CommunicationStyle: models.CommunicationStyle{Tone: "direct", Verbosity: "low"},
	}
	require.NoError(t, s.UpdatePersonaProfile(ctx, rec.PersonaID, profile))

	got, err := s.GetPersonaByID(ctx, rec.PersonaID)
	require.NoError(t, err)
	assert.Equal(t, "Nurse", got.Profile["one_liner"])
	assert.Equal(t, map[string]any{"tone": "direct", "verbosity": "low"}, got.Profile["communication_style"])

	assert.Error(t, s.UpdatePersonaProfile(ctx, "missing", profile))
}

func TestMemoryStore_InsertResponseReturnsExistingOnConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := models.PersonaResponse{ExperimentID: "e1", VariantID: "v1", PersonaID: "p1", FreeText: "first"}

	var wg sync.WaitGroup
	results := make([]*models.PersonaResponse, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := base
			if i > 0 {
				r.FreeText = "later"
			}
			got, err := s.InsertResponse(ctx, &r)
			assert.NoError(t, err)
			results[i] = got
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0].ResponseID, r.ResponseID)
		assert.Equal(t, results[0].FreeText, r.FreeText)
	}

	stored, err := s.GetResponseByKeys(ctx, models.ResponseKey{ExperimentID: "e1", VariantID: "v1", PersonaID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, results[0], stored)
}

func TestMemoryStore_DecisionTraceLatestWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	audit := models.TraceAudit{GeneratedAt: time.Now(), Model: "gpt-4o-mini", LatencyMs: 10}
	require.NoError(t, s.InsertDecisionTrace(ctx, &models.DecisionTrace{ResponseID: "r1", Confidence: 0.2}, audit))
	require.NoError(t, s.InsertDecisionTrace(ctx, &models.DecisionTrace{ResponseID: "r1", Confidence: 0.8}, audit))

	tr, err := s.GetDecisionTraceByResponseID(ctx, "r1")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, tr.Confidence, 1e-9)
	assert.Equal(t, 2, s.TraceCount("r1"))
}

func TestMemoryStore_PromptRuns(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.InsertPromptRun(ctx, &models.PromptRun{ExperimentID: "e1", PromptID: "local:a", Attempt: 1}))
	require.NoError(t, s.InsertPromptRun(ctx, &models.PromptRun{PersonaID: "p1", PromptID: "local:b", Attempt: 1}))
	require.NoError(t, s.InsertPromptRun(ctx, &models.PromptRun{ExperimentID: "e1", PromptID: "local:a", Attempt: 2}))

	runs, err := s.ListPromptRuns(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[0].Attempt)
	assert.Equal(t, 2, runs[1].Attempt)
	assert.NotEmpty(t, runs[0].PromptRunID)
	assert.False(t, runs[0].CreatedAt.IsZero())

	all, err := s.ListPromptRuns(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	s.FailPromptRuns = true
	assert.Error(t, s.InsertPromptRun(ctx, &models.PromptRun{PromptID: "local:a"}))
}

func TestNormalizeMap(t *testing.T) {
	type nested []any
	in := map[string]any{"tags": nested{"a", "b"}, "age": int32(40), "inner": map[string]any{"x": int64(1)}}

	out := normalizeMap(in)
	assert.Equal(t, []any{"a", "b"}, out["tags"])
	assert.Equal(t, 40.0, out["age"])
	assert.Equal(t, map[string]any{"x": 1.0}, out["inner"])
	assert.Nil(t, normalizeMap(nil))
}
