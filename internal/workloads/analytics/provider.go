// Package analytics benchmarks event ingestion and dashboard aggregation.
package analytics

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"database-benchmark/internal/database"
	"database-benchmark/internal/runner"
	"database-benchmark/internal/workloads/fixture"
)

const ScenarioName = "analytics"

// Provider seeds the events table with one event per record.
type Provider struct {
	db     database.Driver
	logger *log.Logger
}

func NewProvider(db database.Driver, logger *log.Logger) *Provider {
	return &Provider{db: db, logger: logger}
}

func (p *Provider) SetupScenario(ctx context.Context, scenario runner.Scenario) (*runner.Handle, error) {
	p.logger.Printf("Setting up %s on %s...", scenario.Name, p.db.Name())
	h := &runner.Handle{ID: uuid.NewString(), Scenario: scenario}

	if db, ok := p.db.(*database.MongoDriver); ok {
		if err := db.Ping(ctx); err != nil {
			return h, &runner.SetupError{Kind: runner.BackendUnreachable, Scenario: scenario.Name, Err: err}
		}
		existing, err := db.Database().ListCollectionNames(ctx, bson.M{"name": "events"})
		if err != nil {
			return h, &runner.SetupError{Kind: runner.BackendUnreachable, Scenario: scenario.Name, Err: err}
		}
		if len(existing) > 0 {
			return h, &runner.SetupError{Kind: runner.SchemaConflict, Scenario: scenario.Name, Err: fmt.Errorf("collection events already exists")}
		}
		return h, nil
	}
	db, err := fixture.SQL(p.db, scenario.Name)
	if err != nil {
		return h, err
	}
	return h, fixture.CreateTables(ctx, db, scenario.Name, eventsTable)
}

func (p *Provider) Populate(ctx context.Context, _ *runner.Handle, scale runner.Scale) (int64, error) {
	n := scale.Records()
	p.logger.Printf("Seeding %d events...", n)
	if err := p.seed(ctx, NewEvents(n)); err != nil {
		return 0, err
	}
	return n, nil
}

// seed writes events, all or nothing on SQL backends.
func (p *Provider) seed(ctx context.Context, events []Event) error {
	s, err := storeFor(p.db)
	if err != nil {
		return err
	}
	if _, ok := p.db.(database.SQLDriver); !ok {
		return s.insertMany(ctx, events)
	}
	return p.db.ExecuteTx(ctx, func(ctx context.Context) error {
		return s.insertMany(ctx, events)
	})
}

func (p *Provider) Cleanup(ctx context.Context, _ *runner.Handle) error {
	s, err := storeFor(p.db)
	if err != nil {
		return err
	}
	return s.drop(ctx)
}
