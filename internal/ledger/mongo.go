package ledger

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/stageload/internal/config"
	"github.com/BartekS5/stageload/pkg/database"
)

const writeTimeout = 10 * time.Second

// MongoRecorder keeps one document per load attempt, keyed by load id.
type MongoRecorder struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoRecorder connects to the configured ledger collection.
func NewMongoRecorder(ctx context.Context, cfg config.HistoryConfig) (*MongoRecorder, error) {
	client, err := database.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)

	idxCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err = coll.Indexes().CreateOne(idxCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "started_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create ledger index: %w", err)
	}
	return &MongoRecorder{client: client, coll: coll}, nil
}

func (m *MongoRecorder) Start(ctx context.Context, e *Entry) error {
	return m.upsert(ctx, e)
}

func (m *MongoRecorder) Finish(ctx context.Context, e *Entry) error {
	return m.upsert(ctx, e)
}

func (m *MongoRecorder) upsert(ctx context.Context, e *Entry) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": e.LoadID}, e, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("record load %s: %w", e.LoadID, err)
	}
	return nil
}

// List returns the most recent entries for run, newest first.
func (m *MongoRecorder) List(ctx context.Context, run string, limit int64) ([]Entry, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		findOpts.SetLimit(limit)
	}

	cursor, err := m.coll.Find(ctx, bson.M{"run_id": run}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode ledger entries: %w", err)
	}
	return entries, nil
}

func (m *MongoRecorder) Running(ctx context.Context, run string) (int64, error) {
	return m.coll.CountDocuments(ctx, bson.M{"run_id": run, "status": StatusRunning})
}

func (m *MongoRecorder) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
