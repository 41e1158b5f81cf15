package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ideasim/models"

	"github.com/google/uuid"
)

type storedTrace struct {
	trace models.DecisionTrace
	audit models.TraceAudit
}

// MemoryStore keeps everything in process memory. It is used by the CLI when
// no MongoDB URI is configured and by tests.
type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]models.Experiment
	variants    map[string][]models.Variant
	personas    map[string]models.PersonaRecord
	responses   map[models.ResponseKey]models.PersonaResponse
	traces      map[string][]storedTrace
	promptRuns  []models.PromptRun

	// FailPromptRuns makes InsertPromptRun fail; used to check that audit
	// failures do not change pipeline outcomes.
	FailPromptRuns bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]models.Experiment),
		variants:    make(map[string][]models.Variant),
		personas:    make(map[string]models.PersonaRecord),
		responses:   make(map[models.ResponseKey]models.PersonaResponse),
		traces:      make(map[string][]storedTrace),
	}
}

func (s *MemoryStore) InsertExperiment(_ context.Context, userPrompt string, questions []string) (*models.Experiment, error) {
	exp := models.Experiment{
		ExperimentID: uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		UserPrompt:   userPrompt,
		Questions:    append([]string(nil), questions...),
	}
	s.mu.Lock()
	s.experiments[exp.ExperimentID] = exp
	s.mu.Unlock()
	return &exp, nil
}

func (s *MemoryStore) GetExperimentByID(_ context.Context, experimentID string) (*models.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.experiments[experimentID]
	if !ok {
		return nil, nil
	}
	return &exp, nil
}

func (s *MemoryStore) InsertVariant(_ context.Context, experimentID, variantKey string, stimulus models.Stimulus) (*models.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.experiments[experimentID]; !ok {
		return nil, storeErr("insert variant", fmt.Errorf("experiment not found: %s", experimentID))
	}
	v := models.Variant{
		VariantID:    uuid.NewString(),
		ExperimentID: experimentID,
		VariantKey:   variantKey,
		Stimulus:     stimulus,
	}
	s.variants[experimentID] = append(s.variants[experimentID], v)
	return &v, nil
}

func (s *MemoryStore) GetVariantsByExperiment(_ context.Context, experimentID string) ([]models.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Variant(nil), s.variants[experimentID]...), nil
}

func (s *MemoryStore) InsertPersona(_ context.Context, demographics models.Demographics) (*models.PersonaRecord, error) {
	rec := models.PersonaRecord{
		PersonaID:    uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		Demographics: demographics,
	}
	s.mu.Lock()
	s.personas[rec.PersonaID] = rec
	s.mu.Unlock()
	return &rec, nil
}

func (s *MemoryStore) GetPersonaByID(_ context.Context, personaID string) (*models.PersonaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.personas[personaID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// SetPersonaProfile stores a raw profile as-is, bypassing the typed update.
func (s *MemoryStore) SetPersonaProfile(personaID string, profile map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.personas[personaID]; ok {
		rec.Profile = profile
		s.personas[personaID] = rec
	}
}

func (s *MemoryStore) UpdatePersonaProfile(_ context.Context, personaID string, profile *models.PersonaProfile) error {
	raw, err := toMap(profile)
	if err != nil {
		return storeErr("update persona profile", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.personas[personaID]
	if !ok {
		return storeErr("update persona profile", fmt.Errorf("persona not found: %s", personaID))
	}
	rec.Profile = raw
	s.personas[personaID] = rec
	return nil
}

func (s *MemoryStore) InsertResponse(_ context.Context, resp *models.PersonaResponse) (*models.PersonaResponse, error) {
	key := models.ResponseKey{ExperimentID: resp.ExperimentID, VariantID: resp.VariantID, PersonaID: resp.PersonaID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.responses[key]; ok {
		return &existing, nil
	}
	stored := *resp
	stored.ResponseID = uuid.NewString()
	s.responses[key] = stored
	return &stored, nil
}

func (s *MemoryStore) GetResponseByKeys(_ context.Context, key models.ResponseKey) (*models.PersonaResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp, ok := s.responses[key]
	if !ok {
		return nil, nil
	}
	return &resp, nil
}

func (s *MemoryStore) InsertDecisionTrace(_ context.Context, trace *models.DecisionTrace, audit models.TraceAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces[trace.ResponseID] = append(s.traces[trace.ResponseID], storedTrace{trace: *trace, audit: audit})
	return nil
}

func (s *MemoryStore) GetDecisionTraceByResponseID(_ context.Context, responseID string) (*models.DecisionTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	traces := s.traces[responseID]
	if len(traces) == 0 {
		return nil, nil
	}
	tr := traces[len(traces)-1].trace
	return &tr, nil
}

// TraceCount returns how many traces were stored for responseID.
func (s *MemoryStore) TraceCount(responseID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.traces[responseID])
}

func (s *MemoryStore) InsertPromptRun(_ context.Context, run *models.PromptRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPromptRuns {
		return storeErr("insert prompt run", fmt.Errorf("prompt runs unavailable"))
	}
	stored := *run
	stored.PromptRunID = uuid.NewString()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.promptRuns = append(s.promptRuns, stored)
	return nil
}

// ListPromptRuns returns the runs of experimentID in insertion order. An
// empty experimentID lists every run.
func (s *MemoryStore) ListPromptRuns(_ context.Context, experimentID string) ([]models.PromptRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PromptRun
	for _, run := range s.promptRuns {
		if experimentID == "" || run.ExperimentID == experimentID {
			out = append(out, run)
		}
	}
	return out, nil
}

// PersonaCount returns the number of stored personas.
func (s *MemoryStore) PersonaCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.personas)
}

var _ Store = (*MemoryStore)(nil)
