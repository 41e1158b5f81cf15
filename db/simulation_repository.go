package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	docs "ideasim/db/models"
	"ideasim/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const promptRunAttempts = 3

func objectID(hex string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

// optionalID maps "" to the nil id, which is omitted on write.
func optionalID(hex string) primitive.ObjectID {
	id, _ := objectID(hex)
	return id
}

func hexOrEmpty(id primitive.ObjectID) string {
	if id.IsZero() {
		return ""
	}
	return id.Hex()
}

func (s *MongoStore) InsertExperiment(ctx context.Context, userPrompt string, questions []string) (*models.Experiment, error) {
	if questions == nil {
		questions = []string{}
	}
	doc := docs.ExperimentDocument{
		CreatedAt:  time.Now().UTC(),
		UserPrompt: userPrompt,
		Questions:  questions,
	}
	result, err := s.collection(ExperimentsCollection).InsertOne(ctx, doc)
	if err != nil {
		return nil, storeErr("insert experiment", err)
	}
	doc.ID = result.InsertedID.(primitive.ObjectID)
	return experimentFromDoc(doc), nil
}

func (s *MongoStore) GetExperimentByID(ctx context.Context, experimentID string) (*models.Experiment, error) {
	id, ok := objectID(experimentID)
	if !ok {
		return nil, nil
	}
	var doc docs.ExperimentDocument
	err := s.collection(ExperimentsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get experiment", err)
	}
	return experimentFromDoc(doc), nil
}

func experimentFromDoc(doc docs.ExperimentDocument) *models.Experiment {
	return &models.Experiment{
		ExperimentID: doc.ID.Hex(),
		CreatedAt:    doc.CreatedAt,
		UserPrompt:   doc.UserPrompt,
		Questions:    doc.Questions,
	}
}

func (s *MongoStore) InsertVariant(ctx context.Context, experimentID, variantKey string, stimulus models.Stimulus) (*models.Variant, error) {
	expID, ok := objectID(experimentID)
	if !ok {
		return nil, storeErr("insert variant", fmt.Errorf("invalid experiment id %q", experimentID))
	}
	doc := docs.VariantDocument{
		ExperimentID: expID,
		VariantKey:   variantKey,
		Stimulus:     stimulus,
		CreatedAt:    time.Now().UTC(),
	}
	result, err := s.collection(VariantsCollection).InsertOne(ctx, doc)
	if err != nil {
		return nil, storeErr("insert variant", err)
	}
	doc.ID = result.InsertedID.(primitive.ObjectID)
	return variantFromDoc(doc), nil
}

func (s *MongoStore) GetVariantsByExperiment(ctx context.Context, experimentID string) ([]models.Variant, error) {
	expID, ok := objectID(experimentID)
	if !ok {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "variant_key", Value: 1}})
	cursor, err := s.collection(VariantsCollection).Find(ctx, bson.M{"experiment_id": expID}, opts)
	if err != nil {
		return nil, storeErr("get variants", err)
	}
	defer cursor.Close(ctx)

	var found []docs.VariantDocument
	if err := cursor.All(ctx, &found); err != nil {
		return nil, storeErr("get variants", err)
	}
	variants := make([]models.Variant, 0, len(found))
	for _, doc := range found {
		variants = append(variants, *variantFromDoc(doc))
	}
	return variants, nil
}

func variantFromDoc(doc docs.VariantDocument) *models.Variant {
	return &models.Variant{
		VariantID:    doc.ID.Hex(),
		ExperimentID: doc.ExperimentID.Hex(),
		VariantKey:   doc.VariantKey,
		Stimulus:     normalizeMap(doc.Stimulus),
	}
}

func (s *MongoStore) InsertPersona(ctx context.Context, demographics models.Demographics) (*models.PersonaRecord, error) {
	now := time.Now().UTC()
	doc := docs.PersonaDocument{
		Demographics: demographics,
		Profile:      map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	result, err := s.collection(PersonasCollection).InsertOne(ctx, doc)
	if err != nil {
		return nil, storeErr("insert persona", err)
	}
	doc.ID = result.InsertedID.(primitive.ObjectID)
	return personaFromDoc(doc), nil
}

func (s *MongoStore) GetPersonaByID(ctx context.Context, personaID string) (*models.PersonaRecord, error) {
	id, ok := objectID(personaID)
	if !ok {
		return nil, nil
	}
	var doc docs.PersonaDocument
	err := s.collection(PersonasCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get persona", err)
	}
	return personaFromDoc(doc), nil
}

func personaFromDoc(doc docs.PersonaDocument) *models.PersonaRecord {
	return &models.PersonaRecord{
		PersonaID:    doc.ID.Hex(),
		CreatedAt:    doc.CreatedAt,
		Demographics: normalizeMap(doc.Demographics),
		Profile:      normalizeMap(doc.Profile),
	}
}

func (s *MongoStore) UpdatePersonaProfile(ctx context.Context, personaID string, profile *models.PersonaProfile) error {
	id, ok := objectID(personaID)
	if !ok {
		return storeErr("update persona profile", fmt.Errorf("invalid persona id %q", personaID))
	}
	raw, err := toMap(profile)
	if err != nil {
		return storeErr("update persona profile", err)
	}
	update := bson.M{"$set": bson.M{"profile": raw, "updated_at": time.Now().UTC()}}
	result, err := s.collection(PersonasCollection).UpdateByID(ctx, id, update)
	if err != nil {
		return storeErr("update persona profile", err)
	}
	if result.MatchedCount == 0 {
		return storeErr("update persona profile", fmt.Errorf("persona not found: %s", personaID))
	}
	return nil
}

func (s *MongoStore) InsertResponse(ctx context.Context, resp *models.PersonaResponse) (*models.PersonaResponse, error) {
	key := models.ResponseKey{ExperimentID: resp.ExperimentID, VariantID: resp.VariantID, PersonaID: resp.PersonaID}
	doc, err := responseToDoc(resp)
	if err != nil {
		return nil, storeErr("insert response", err)
	}

	result, err := s.collection(ResponsesCollection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		// A concurrent writer won the natural key; hand back its row.
		existing, getErr := s.GetResponseByKeys(ctx, key)
		if getErr != nil {
			return nil, getErr
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, storeErr("insert response", err)
	}
	doc.ID = result.InsertedID.(primitive.ObjectID)
	return responseFromDoc(doc), nil
}

func (s *MongoStore) GetResponseByKeys(ctx context.Context, key models.ResponseKey) (*models.PersonaResponse, error) {
	expID, ok1 := objectID(key.ExperimentID)
	varID, ok2 := objectID(key.VariantID)
	perID, ok3 := objectID(key.PersonaID)
	if !ok1 || !ok2 || !ok3 {
		return nil, nil
	}
	filter := bson.M{"experiment_id": expID, "variant_id": varID, "persona_id": perID}

	var doc docs.ResponseDocument
	err := s.collection(ResponsesCollection).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get response", err)
	}
	return responseFromDoc(doc), nil
}

func responseToDoc(resp *models.PersonaResponse) (docs.ResponseDocument, error) {
	expID, ok1 := objectID(resp.ExperimentID)
	varID, ok2 := objectID(resp.VariantID)
	perID, ok3 := objectID(resp.PersonaID)
	if !ok1 || !ok2 || !ok3 {
		return docs.ResponseDocument{}, fmt.Errorf("invalid response key %s/%s/%s", resp.ExperimentID, resp.VariantID, resp.PersonaID)
	}
	return docs.ResponseDocument{
		ExperimentID:    expID,
		VariantID:       varID,
		PersonaID:       perID,
		PurchaseIntent:  resp.Scores.PurchaseIntent,
		Trust:           resp.Scores.Trust,
		Clarity:         resp.Scores.Clarity,
		Differentiation: resp.Scores.Differentiation,
		WouldTry:        resp.Verdict.WouldTry,
		WouldPay:        resp.Verdict.WouldPay,
		FreeText:        resp.FreeText,
		Extra: docs.ResponseExtra{
			TopObjections:         resp.TopObjections,
			WhatWouldChangeMyMind: resp.WhatWouldChangeMyMind,
			Confidence:            resp.Confidence,
			UncertaintyNotes:      resp.UncertaintyNotes,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

func responseFromDoc(doc docs.ResponseDocument) *models.PersonaResponse {
	return &models.PersonaResponse{
		ResponseID:   doc.ID.Hex(),
		PersonaID:    doc.PersonaID.Hex(),
		ExperimentID: doc.ExperimentID.Hex(),
		VariantID:    doc.VariantID.Hex(),
		Scores: models.Scores{
			PurchaseIntent:  doc.PurchaseIntent,
			Trust:           doc.Trust,
			Clarity:         doc.Clarity,
			Differentiation: doc.Differentiation,
		},
		Verdict: models.Verdict{
			WouldTry: doc.WouldTry,
			WouldPay: doc.WouldPay,
		},
		FreeText:              doc.FreeText,
		TopObjections:         doc.Extra.TopObjections,
		WhatWouldChangeMyMind: doc.Extra.WhatWouldChangeMyMind,
		Confidence:            doc.Extra.Confidence,
		UncertaintyNotes:      doc.Extra.UncertaintyNotes,
	}
}

func (s *MongoStore) InsertDecisionTrace(ctx context.Context, trace *models.DecisionTrace, audit models.TraceAudit) error {
	respID, ok := objectID(trace.ResponseID)
	if !ok {
		return storeErr("insert decision trace", fmt.Errorf("invalid response id %q", trace.ResponseID))
	}
	doc := docs.DecisionTraceDocument{
		ResponseID:            respID,
		PersonaFactorsUsed:    factorsToDocs(trace.PersonaFactorsUsed),
		StimulusCues:          factorsToDocs(trace.StimulusCues),
		TopObjections:         trace.TopObjections,
		WhatWouldChangeMyMind: trace.WhatWouldChangeMyMind,
		Confidence:            trace.Confidence,
		UncertaintyNotes:      trace.UncertaintyNotes,
		Audit: docs.TraceAuditDocument{
			GeneratedAt: audit.GeneratedAt,
			Model:       audit.Model,
			LatencyMs:   audit.LatencyMs,
		},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.collection(DecisionTracesCollection).InsertOne(ctx, doc); err != nil {
		return storeErr("insert decision trace", err)
	}
	return nil
}

func (s *MongoStore) GetDecisionTraceByResponseID(ctx context.Context, responseID string) (*models.DecisionTrace, error) {
	respID, ok := objectID(responseID)
	if !ok {
		return nil, nil
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var doc docs.DecisionTraceDocument
	err := s.collection(DecisionTracesCollection).FindOne(ctx, bson.M{"response_id": respID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get decision trace", err)
	}
	return &models.DecisionTrace{
		ResponseID:            doc.ResponseID.Hex(),
		PersonaFactorsUsed:    factorsFromDocs(doc.PersonaFactorsUsed),
		StimulusCues:          factorsFromDocs(doc.StimulusCues),
		TopObjections:         doc.TopObjections,
		WhatWouldChangeMyMind: doc.WhatWouldChangeMyMind,
		Confidence:            doc.Confidence,
		UncertaintyNotes:      doc.UncertaintyNotes,
	}, nil
}

func factorsToDocs(factors []models.Factor) []docs.FactorDocument {
	out := make([]docs.FactorDocument, len(factors))
	for i, f := range factors {
		out[i] = docs.FactorDocument{Name: f.Name, Value: f.Value, Effect: f.Effect, Note: f.Note}
	}
	return out
}

func factorsFromDocs(found []docs.FactorDocument) []models.Factor {
	out := make([]models.Factor, len(found))
	for i, f := range found {
		out[i] = models.Factor{Name: f.Name, Value: normalizeValue(f.Value), Effect: f.Effect, Note: f.Note}
	}
	return out
}

// InsertPromptRun appends an audit row, retrying transient failures.
func (s *MongoStore) InsertPromptRun(ctx context.Context, run *models.PromptRun) error {
	doc := docs.PromptRunDocument{
		CreatedAt:    run.CreatedAt,
		ExperimentID: optionalID(run.ExperimentID),
		PersonaID:    optionalID(run.PersonaID),
		ResponseID:   optionalID(run.ResponseID),
		PromptID:     run.PromptID,
		Attempt:      run.Attempt,
		Model:        run.Model,
		InputHash:    run.InputHash,
		OutputHash:   run.OutputHash,
		LatencyMs:    run.LatencyMs,
		InputTokens:  run.InputTokens,
		OutputTokens: run.OutputTokens,
		CostUSD:      run.CostUSD,
		Error:        run.Error,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	collection := s.collection(PromptRunsCollection)

	var lastErr error
	for i := 0; i < promptRunAttempts; i++ {
		_, err := collection.InsertOne(ctx, doc)
		if err == nil {
			return nil
		}
		lastErr = err
		s.logger.Debug("Prompt run insert failed, retrying", "attempt", i+1, "error", err)

		select {
		case <-ctx.Done():
			return storeErr("insert prompt run", ctx.Err())
		case <-time.After(100 * time.Millisecond * time.Duration(i+1)):
		}
	}
	return storeErr("insert prompt run", lastErr)
}

func (s *MongoStore) ListPromptRuns(ctx context.Context, experimentID string) ([]models.PromptRun, error) {
	filter := bson.M{}
	if experimentID != "" {
		id, ok := objectID(experimentID)
		if !ok {
			return nil, nil
		}
		filter["experiment_id"] = id
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.collection(PromptRunsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, storeErr("list prompt runs", err)
	}
	defer cursor.Close(ctx)

	var found []docs.PromptRunDocument
	if err := cursor.All(ctx, &found); err != nil {
		return nil, storeErr("list prompt runs", err)
	}
	runs := make([]models.PromptRun, 0, len(found))
	for _, doc := range found {
		runs = append(runs, models.PromptRun{
			PromptRunID:  doc.ID.Hex(),
			CreatedAt:    doc.CreatedAt,
			ExperimentID: hexOrEmpty(doc.ExperimentID),
			PersonaID:    hexOrEmpty(doc.PersonaID),
			ResponseID:   hexOrEmpty(doc.ResponseID),
			PromptID:     doc.PromptID,
			Attempt:      doc.Attempt,
			Model:        doc.Model,
			InputHash:    doc.InputHash,
			OutputHash:   doc.OutputHash,
			LatencyMs:    doc.LatencyMs,
			InputTokens:  doc.InputTokens,
			OutputTokens: doc.OutputTokens,
			CostUSD:      doc.CostUSD,
			Error:        doc.Error,
		})
	}
	return runs, nil
}

var _ Store = (*MongoStore)(nil)
