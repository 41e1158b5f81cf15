package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	ExperimentsCollection    = "experiments"
	VariantsCollection       = "variants"
	PersonasCollection       = "personas"
	ResponsesCollection      = "responses"
	DecisionTracesCollection = "decision_traces"
	PromptRunsCollection     = "prompt_runs"
)

// DefaultDatabase is used when no database name is configured.
const DefaultDatabase = "ideasim"

// MongoStore is the MongoDB-backed Store.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
	logger   *slog.Logger
}

// Connect opens a MongoDB connection, pings it and ensures indexes.
func Connect(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb uri not set")
	}
	if database == "" {
		database = DefaultDatabase
	}
	if logger == nil {
		logger = slog.Default()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	s := &MongoStore{
		client:   client,
		database: client.Database(database),
		logger:   logger.With("component", "mongo-store"),
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	s.logger.Info("Connected to MongoDB", "database", database)
	return s, nil
}

func (s *MongoStore) collection(name string) *mongo.Collection {
	return s.database.Collection(name)
}

// EnsureIndexes creates the unique response key index and the lookup indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		ResponsesCollection: {
			{
				Keys: bson.D{
					{Key: "experiment_id", Value: 1},
					{Key: "variant_id", Value: 1},
					{Key: "persona_id", Value: 1},
				},
				Options: options.Index().SetUnique(true).SetName("response_natural_key"),
			},
		},
		VariantsCollection: {
			{Keys: bson.D{{Key: "experiment_id", Value: 1}, {Key: "variant_key", Value: 1}}},
		},
		DecisionTracesCollection: {
			{Keys: bson.D{{Key: "response_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		PromptRunsCollection: {
			{Keys: bson.D{{Key: "experiment_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}

	for name, idx := range indexes {
		if _, err := s.collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return storeErr("create indexes", fmt.Errorf("%s: %w", name, err))
		}
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
