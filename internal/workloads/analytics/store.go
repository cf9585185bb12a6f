package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"database-benchmark/internal/database"
	"database-benchmark/internal/workloads/fixture"
)

const Regions = 10

type Event struct {
	ID        string
	Timestamp time.Time
	UserID    string
	ProductID string
	Region    string
	Value     float64
}

// NewEvents returns n events spread over Regions regions, 1000 users and 100
// products.
func NewEvents(n int64) []Event {
	now := time.Now().UTC()
	events := make([]Event, n)
	for i := range events {
		events[i] = Event{
			ID:        uuid.NewString(),
			Timestamp: now,
			UserID:    fmt.Sprintf("user%d", i%1000),
			ProductID: fmt.Sprintf("product%d", i%100),
			Region:    fmt.Sprintf("region%d", i%Regions),
			Value:     float64(i % 100),
		}
	}
	return events
}

// store writes events one at a time or in bulk.
type store interface {
	insertOne(ctx context.Context, ev Event) error
	insertMany(ctx context.Context, evs []Event) error
	count(ctx context.Context) (int64, error)
	drop(ctx context.Context) error
}

func storeFor(db database.Driver) (store, error) {
	switch db := db.(type) {
	case *database.MongoDriver:
		return mongoStore{db: db}, nil
	case database.SQLDriver:
		return sqlStore{db: db}, nil
	}
	return nil, fmt.Errorf("unsupported database type: %T", db)
}

type sqlStore struct {
	db database.SQLDriver
}

func (s sqlStore) insertOne(ctx context.Context, ev Event) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (event_id, event_timestamp, user_id, product_id, region, metric_value) VALUES (?, ?, ?, ?, ?, ?)",
		ev.ID, ev.Timestamp, ev.UserID, ev.ProductID, ev.Region, ev.Value)
	return err
}

func (s sqlStore) insertMany(ctx context.Context, evs []Event) error {
	rows := make([][]interface{}, len(evs))
	for i, ev := range evs {
		rows[i] = []interface{}{ev.ID, ev.Timestamp, ev.UserID, ev.ProductID, ev.Region, ev.Value}
	}
	_, err := fixture.InsertRows(ctx, s.db, "events", eventColumns, rows, fixture.DefaultBatchSize)
	return err
}

func (s sqlStore) count(ctx context.Context) (int64, error) {
	return fixture.Count(ctx, s.db, "events")
}

func (s sqlStore) drop(ctx context.Context) error {
	return fixture.DropTables(ctx, s.db, "events")
}

type mongoStore struct {
	db *database.MongoDriver
}

func eventDoc(ev Event) bson.M {
	return bson.M{
		"_id":             ev.ID,
		"event_timestamp": ev.Timestamp,
		"user_id":         ev.UserID,
		"product_id":      ev.ProductID,
		"region":          ev.Region,
		"metric_value":    ev.Value,
	}
}

func (s mongoStore) insertOne(ctx context.Context, ev Event) error {
	_, err := s.db.Collection("events").InsertOne(ctx, eventDoc(ev))
	return err
}

func (s mongoStore) insertMany(ctx context.Context, evs []Event) error {
	for start := 0; start < len(evs); start += fixture.DefaultBatchSize {
		end := min(start+fixture.DefaultBatchSize, len(evs))
		docs := make([]interface{}, 0, end-start)
		for _, ev := range evs[start:end] {
			docs = append(docs, eventDoc(ev))
		}
		if _, err := s.db.Collection("events").InsertMany(ctx, docs); err != nil {
			return err
		}
	}
	return nil
}

func (s mongoStore) count(ctx context.Context) (int64, error) {
	return s.db.Collection("events").CountDocuments(ctx, bson.M{})
}

func (s mongoStore) drop(ctx context.Context) error {
	return s.db.Collection("events").Drop(ctx)
}
