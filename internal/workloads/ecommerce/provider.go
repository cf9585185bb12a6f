// Package ecommerce benchmarks an order pipeline: transactional order
// placement, contention on a single hot product, and catalog loading.
package ecommerce

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/multierr"

	"database-benchmark/internal/database"
	"database-benchmark/internal/runner"
	"database-benchmark/internal/workloads/fixture"
)

const (
	ScenarioName = "ecommerce"

	hotProductID = "product-hot"
	hotStock     = 1000000
	seedStock    = 100
)

func productID(i int64) string {
	return fmt.Sprintf("product-%06d", i)
}

func orderID(i int64) string {
	return fmt.Sprintf("order-%06d", i)
}

// itemsPerProduct is the number of seeded order lines for product i.
func itemsPerProduct(i int64) int64 {
	return i%4 + 1
}

// Provider seeds products, one order per product with one to four order
// lines each, and a hot product with deep stock.
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
		return h, setupMongo(ctx, db, scenario.Name)
	}
	db, err := fixture.SQL(p.db, scenario.Name)
	if err != nil {
		return h, err
	}
	return h, fixture.CreateTables(ctx, db, scenario.Name, schema...)
}

func (p *Provider) Populate(ctx context.Context, h *runner.Handle, scale runner.Scale) (int64, error) {
	n := scale.Records()
	p.logger.Printf("Seeding %d products...", n)

	seededAt := time.Now().UTC().Truncate(time.Second)
	products := make([][]interface{}, 0, n+1)
	orders := make([][]interface{}, 0, n)
	items := make([][]interface{}, 0, n*2)
	for i := int64(0); i < n; i++ {
		products = append(products, []interface{}{productID(i), fmt.Sprintf("product %d", i), seedStock})
		orders = append(orders, []interface{}{orderID(i), fmt.Sprintf("user-%d", i%50), seededAt})
		for j := int64(0); j < itemsPerProduct(i); j++ {
			items = append(items, []interface{}{fmt.Sprintf("item-%06d-%d", i, j), orderID(i), productID(i), j + 1})
		}
	}
	products = append(products, []interface{}{hotProductID, "hot product", hotStock})

	if db, ok := p.db.(*database.MongoDriver); ok {
		return n, populateMongo(ctx, db, products, items)
	}
	db, err := fixture.SQL(p.db, h.Scenario.Name)
	if err != nil {
		return 0, err
	}
	err = db.ExecuteTx(ctx, func(ctx context.Context) error {
		if _, err := fixture.InsertRows(ctx, db, "products", []string{"id", "name", "inventory"}, products, 0); err != nil {
			return err
		}
		if _, err := fixture.InsertRows(ctx, db, "orders", []string{"id", "user_id", "created_at"}, orders, 0); err != nil {
			return err
		}
		_, err := fixture.InsertRows(ctx, db, "order_items", []string{"id", "order_id", "product_id", "quantity"}, items, 0)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Provider) Cleanup(ctx context.Context, _ *runner.Handle) error {
	if db, ok := p.db.(*database.MongoDriver); ok {
		var errs error
		for _, name := range []string{"order_items", "products"} {
			errs = multierr.Append(errs, db.Collection(name).Drop(ctx))
		}
		return errs
	}
	db, err := fixture.SQL(p.db, ScenarioName)
	if err != nil {
		return err
	}
	return fixture.DropTables(ctx, db, tables...)
}

func setupMongo(ctx context.Context, db *database.MongoDriver, scenario string) error {
	if err := db.Ping(ctx); err != nil {
		return &runner.SetupError{Kind: runner.BackendUnreachable, Scenario: scenario, Err: err}
	}
	existing, err := db.Database().ListCollectionNames(ctx, bson.M{"name": bson.M{"$in": []string{"products", "order_items"}}})
	if err != nil {
		return &runner.SetupError{Kind: runner.BackendUnreachable, Scenario: scenario, Err: err}
	}
	if len(existing) > 0 {
		return &runner.SetupError{Kind: runner.SchemaConflict, Scenario: scenario, Err: fmt.Errorf("collections already exist: %v", existing)}
	}
	return nil
}

func populateMongo(ctx context.Context, db *database.MongoDriver, products, items [][]interface{}) error {
	productDocs := make([]interface{}, len(products))
	for i, p := range products {
		productDocs[i] = bson.M{"_id": p[0], "name": p[1], "inventory": p[2]}
	}
	if _, err := db.Collection("products").InsertMany(ctx, productDocs); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	itemDocs := make([]interface{}, len(items))
	for i, it := range items {
		itemDocs[i] = bson.M{"_id": it[0], "order_id": it[1], "product_id": it[2], "quantity": it[3]}
	}
	_, err := db.Collection("order_items").InsertMany(ctx, itemDocs)
	return err
}
