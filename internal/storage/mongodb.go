package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const executionLogsCollection = "execution_logs"

// MongoHistory stores execution logs in MongoDB
type MongoHistory struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     zerolog.Logger
}

// NewMongoHistory connects to MongoDB and verifies the connection
func NewMongoHistory(ctx context.Context, uri, dbName string, logger zerolog.Logger) (*MongoHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info().Str("db", dbName).Msg("connected to MongoDB")
	return &MongoHistory{
		client:     client,
		collection: client.Database(dbName).Collection(executionLogsCollection),
		logger:     logger,
	}, nil
}

// SaveExecution implements HistoryStore
func (m *MongoHistory) SaveExecution(ctx context.Context, log ExecutionLog) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := m.collection.InsertOne(ctx, log); err != nil {
		return fmt.Errorf("failed to insert execution log: %w", err)
	}
	return nil
}

// RecentExecutions implements HistoryStore, newest first
func (m *MongoHistory) RecentExecutions(ctx context.Context, limit int) ([]ExecutionLog, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []ExecutionLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// Close disconnects the client
func (m *MongoHistory) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.client.Disconnect(ctx); err != nil {
		return err
	}
	m.logger.Info().Msg("MongoDB connection closed")
	return nil
}
