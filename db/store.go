// Package db persists experiments, personas, responses, decision traces and
// prompt-run audit rows.
package db

import (
	"context"
	"fmt"

	"ideasim/models"
)

// Store is the persistence used by the simulation pipeline. Implementations
// must be safe for concurrent use. Lookups that find nothing return (nil, nil).
type Store interface {
	InsertExperiment(ctx context.Context, userPrompt string, questions []string) (*models.Experiment, error)
	GetExperimentByID(ctx context.Context, experimentID string) (*models.Experiment, error)

	InsertVariant(ctx context.Context, experimentID, variantKey string, stimulus models.Stimulus) (*models.Variant, error)
	GetVariantsByExperiment(ctx context.Context, experimentID string) ([]models.Variant, error)

	// InsertPersona always creates a new persona; there is no content dedup.
	InsertPersona(ctx context.Context, demographics models.Demographics) (*models.PersonaRecord, error)
	GetPersonaByID(ctx context.Context, personaID string) (*models.PersonaRecord, error)
	UpdatePersonaProfile(ctx context.Context, personaID string, profile *models.PersonaProfile) error

	// InsertResponse stores resp under its (experiment, variant, persona) key.
	// When a response with that key already exists, the stored row is
	// returned unchanged instead of an error.
	InsertResponse(ctx context.Context, resp *models.PersonaResponse) (*models.PersonaResponse, error)
	GetResponseByKeys(ctx context.Context, key models.ResponseKey) (*models.PersonaResponse, error)

	InsertDecisionTrace(ctx context.Context, trace *models.DecisionTrace, audit models.TraceAudit) error
	// GetDecisionTraceByResponseID returns the most recently stored trace.
	GetDecisionTraceByResponseID(ctx context.Context, responseID string) (*models.DecisionTrace, error)

	InsertPromptRun(ctx context.Context, run *models.PromptRun) error
	ListPromptRuns(ctx context.Context, experimentID string) ([]models.PromptRun, error)
}

// StoreError wraps a failed store operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
