package database

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"database-benchmark/internal/capability"
	"database-benchmark/internal/instrument"
)

const (
	defaultMongoDatabase = "benchmarkdb"
	mongoWriteConflict   = 112
)

// handshake and session bookkeeping the driver sends on its own
var mongoInternalCommands = map[string]bool{
	"hello":        true,
	"isMaster":     true,
	"ismaster":     true,
	"ping":         true,
	"saslStart":    true,
	"saslContinue": true,
	"endSessions":  true,
	"buildInfo":    true,
}

type MongoDriver struct {
	client   *mongo.Client
	database string
	queries  recorderSlot
}

func (md *MongoDriver) Name() string { return "mongo" }

func (md *MongoDriver) Connect(ctx context.Context, dsn string) error {
	cs, err := connstring.ParseAndValidate(dsn)
	if err != nil {
		return err
	}
	md.database = cs.Database
	if md.database == "" {
		md.database = defaultMongoDatabase
	}

	monitor := &event.CommandMonitor{Started: md.commandStarted}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dsn).SetMonitor(monitor))
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return err
	}
	md.client = client
	return nil
}

// commandStarted reports a command as "<command> <collection>".
func (md *MongoDriver) commandStarted(_ context.Context, evt *event.CommandStartedEvent) {
	if mongoInternalCommands[evt.CommandName] {
		return
	}
	text := evt.CommandName
	if coll, ok := evt.Command.Lookup(evt.CommandName).StringValueOK(); ok {
		text += " " + coll
	}
	md.queries.record(text)
}

func (md *MongoDriver) Close() error {
	if md.client == nil {
		return nil
	}
	return md.client.Disconnect(context.Background())
}

func (md *MongoDriver) Ping(ctx context.Context) error {
	return md.client.Ping(ctx, readpref.Primary())
}

func (md *MongoDriver) Instrument(rec instrument.QueryRecorder) {
	md.queries.set(rec)
}

// Database returns the database the harness works in.
func (md *MongoDriver) Database() *mongo.Database {
	return md.client.Database(md.database)
}

func (md *MongoDriver) Collection(name string) *mongo.Collection {
	return md.Database().Collection(name)
}

func (md *MongoDriver) Reset(ctx context.Context) error {
	return md.Database().Drop(ctx)
}

// ExecuteTx runs fn inside a session transaction. fn may be retried on
// transient transaction errors.
func (md *MongoDriver) ExecuteTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	session, err := md.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if err := fn(sessCtx); err != nil {
			return nil, err
		}
		return nil, nil
	})

	return err
}

func (md *MongoDriver) IsDeadlock(err error) bool {
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorCode(mongoWriteConflict)
	}
	return false
}

func (md *MongoDriver) Capabilities() *capability.Registry {
	return capability.NewRegistry("mongo",
		capability.ReadOnlyTransactions,
		capability.StatisticalAggregates,
		capability.DistinctAggregates,
		capability.MultiRowInsert,
		capability.BulkUpdate,
		capability.Upsert,
		capability.Pooling,
		capability.ConcurrentWriters,
		capability.PartialIndex,
		capability.FullTextIndex,
		capability.JSONIndex,
	)
}
