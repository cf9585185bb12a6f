package ecommerce

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"database-benchmark/internal/aggregate"
	"database-benchmark/internal/database"
	"database-benchmark/internal/runner"
)

// nPlusOneThreshold is how often one statement must repeat within the
// window to be reported.
const nPlusOneThreshold = 10

// catalogLazyVsEager loads the ordered quantity of every product twice: once
// with a query per product and once with a single join. Both must agree.
func catalogLazyVsEager(db database.Driver) runner.WorkFunc {
	return func(ctx context.Context, w *runner.Window) error {
		var lazy, eager func(context.Context) (int64, error)
		switch db := db.(type) {
		case *database.MongoDriver:
			lazy = func(ctx context.Context) (int64, error) { return mongoLazyTotal(ctx, db) }
			eager = func(ctx context.Context) (int64, error) { return mongoEagerTotal(ctx, db) }
		case database.SQLDriver:
			lazy = func(ctx context.Context) (int64, error) { return sqlLazyTotal(ctx, db) }
			eager = func(ctx context.Context) (int64, error) { return sqlEagerTotal(ctx, db) }
		default:
			return fmt.Errorf("unsupported database type: %T", db)
		}

		before := w.Queries.Count()
		lazyTotal, err := lazy(ctx)
		if err != nil {
			return err
		}
		w.Snapshot("lazy")
		lazyQueries := w.Queries.Count() - before

		eagerTotal, err := eager(ctx)
		if err != nil {
			return err
		}
		w.Snapshot("eager")
		eagerQueries := w.Queries.Count() - before - lazyQueries

		if lazyTotal != eagerTotal {
			return fmt.Errorf("lazy total %d differs from eager total %d", lazyTotal, eagerTotal)
		}
		w.AddOps(2)

		repeated := aggregate.DetectNPlusOne(w.Queries.Queries(), nPlusOneThreshold)
		w.SetExtra("lazy_queries", float64(lazyQueries))
		w.SetExtra("eager_queries", float64(eagerQueries))
		w.SetExtra("improvement_percent", aggregate.ImprovementPercent(float64(lazyQueries), float64(eagerQueries)))
		w.SetExtra("n_plus_one_statements", float64(len(repeated)))
		w.SetExtra("ordered_quantity", float64(eagerTotal))
		return nil
	}
}

func sqlLazyTotal(ctx context.Context, db database.SQLDriver) (int64, error) {
	rows, err := db.QueryContext(ctx, "SELECT id FROM products ORDER BY id")
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}

	var total int64
	for _, id := range ids {
		var quantity int64
		err := db.QueryRowContext(ctx, "SELECT COALESCE(SUM(quantity), 0) FROM order_items WHERE product_id = ?", id).Scan(&quantity)
		if err != nil {
			return 0, err
		}
		total += quantity
	}
	return total, nil
}

func sqlEagerTotal(ctx context.Context, db database.SQLDriver) (int64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT p.id, COALESCE(SUM(oi.quantity), 0)
		FROM products p LEFT JOIN order_items oi ON oi.product_id = p.id
		GROUP BY p.id
		ORDER BY p.id`)
	if err != nil {
		return 0, err
	}
	var total int64
	for rows.Next() {
		var id string
		var quantity int64
		if err := rows.Scan(&id, &quantity); err != nil {
			rows.Close()
			return 0, err
		}
		total += quantity
	}
	return total, rows.Close()
}

func mongoLazyTotal(ctx context.Context, db *database.MongoDriver) (int64, error) {
	cursor, err := db.Collection("products").Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"_id": 1}).SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, err
	}
	var products []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &products); err != nil {
		return 0, err
	}

	var total int64
	for _, p := range products {
		cursor, err := db.Collection("order_items").Find(ctx, bson.M{"product_id": p.ID})
		if err != nil {
			return 0, err
		}
		var items []struct {
			Quantity int64 `bson:"quantity"`
		}
		if err := cursor.All(ctx, &items); err != nil {
			return 0, err
		}
		for _, it := range items {
			total += it.Quantity
		}
	}
	return total, nil
}

func mongoEagerTotal(ctx context.Context, db *database.MongoDriver) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{"from": "order_items", "localField": "_id", "foreignField": "product_id", "as": "items"}}},
		{{Key: "$project", Value: bson.M{"quantity": bson.M{"$sum": "$items.quantity"}}}},
	}
	cursor, err := db.Collection("products").Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	var rows []struct {
		Quantity int64 `bson:"quantity"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, err
	}
	var total int64
	for _, r := range rows {
		total += r.Quantity
	}
	return total, nil
}
