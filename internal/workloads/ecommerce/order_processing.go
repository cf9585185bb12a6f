package ecommerce

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"database-benchmark/internal/capability"
	"database-benchmark/internal/database"
	"database-benchmark/internal/runner"
	"database-benchmark/internal/workloads/fixture"
)

// Benchmarks returns every ecommerce benchmark against db at scale.
func Benchmarks(db database.Driver, scale runner.Scale, opts fixture.Options) []runner.Benchmark {
	scenario := runner.Scenario{Name: ScenarioName, Scale: scale}
	return []runner.Benchmark{
		{
			Name:         ScenarioName + "/order_processing",
			Scenario:     scenario,
			Requirements: capability.Requires(capability.Savepoints),
			Concurrent:   true,
			Work:         orderProcessing(db, opts),
		},
		{
			Name:         ScenarioName + "/inventory_update",
			Scenario:     scenario,
			Requirements: capability.Requires(capability.RowLevelLocking),
			Concurrent:   true,
			Work:         inventoryUpdate(db, opts),
		},
		{
			Name:     ScenarioName + "/catalog_lazy_vs_eager",
			Scenario: scenario,
			Work:     catalogLazyVsEager(db),
		},
	}
}

// orderProcessing places orders concurrently. Each order writes the order,
// its line under a savepoint, the payment and the stock decrement in one
// transaction.
func orderProcessing(db database.Driver, opts fixture.Options) runner.WorkFunc {
	return func(ctx context.Context, w *runner.Window) error {
		sqlDB, err := fixture.SQL(db, ScenarioName)
		if err != nil {
			return err
		}

		var placed atomic.Int64
		err = w.RunWorkers(ctx, opts.Plan(), func(ctx context.Context, worker, i int) error {
			product := hotProductID
			if w.Records > 0 {
				product = productID(int64(worker*31+i) % w.Records)
			}
			err := sqlDB.ExecuteTx(ctx, func(ctx context.Context) error {
				return placeOrder(ctx, sqlDB, product)
			})
			if err == nil {
				placed.Add(1)
			}
			return err
		})
		if err != nil {
			return err
		}

		stored, err := fixture.Count(ctx, sqlDB, "orders")
		if err != nil {
			return err
		}
		if want := w.Records + placed.Load(); stored != want {
			return fmt.Errorf("data integrity: %d orders stored, %d expected", stored, want)
		}
		w.SetExtra("orders_placed", float64(placed.Load()))
		return nil
	}
}

func placeOrder(ctx context.Context, db database.SQLDriver, product string) error {
	orderID := uuid.NewString()
	if _, err := db.ExecContext(ctx, "INSERT INTO orders (id, user_id, created_at) VALUES (?, ?, ?)",
		orderID, uuid.NewString(), time.Now().UTC()); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, "SAVEPOINT order_line"); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO order_items (id, order_id, product_id, quantity) VALUES (?, ?, ?, 1)",
		uuid.NewString(), orderID, product); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "RELEASE SAVEPOINT order_line"); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO payments (id, order_id, amount) VALUES (?, ?, 10.50)",
		uuid.NewString(), orderID); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, "UPDATE products SET inventory = inventory - 1 WHERE id = ? AND inventory > 0", product)
	return err
}
