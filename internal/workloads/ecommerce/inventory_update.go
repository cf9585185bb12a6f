package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"database-benchmark/internal/database"
	"database-benchmark/internal/runner"
	"database-benchmark/internal/workloads/fixture"
)

var errSoldOut = errors.New("hot product sold out")

// inventoryUpdate has every worker lock the hot product row, decrement it
// and commit. Afterwards the remaining stock must match the committed sales
// and every acquired lock must have been released.
func inventoryUpdate(db database.Driver, opts fixture.Options) runner.WorkFunc {
	return func(ctx context.Context, w *runner.Window) error {
		sqlDB, err := fixture.SQL(db, ScenarioName)
		if err != nil {
			return err
		}

		var sold atomic.Int64
		err = w.RunWorkers(ctx, opts.Plan(), func(ctx context.Context, _, _ int) error {
			var n int64
			err := sqlDB.ExecuteTx(ctx, func(ctx context.Context) error {
				var inventory int64
				if err := sqlDB.QueryRowContext(ctx, "SELECT inventory FROM products WHERE id = ? FOR UPDATE", hotProductID).Scan(&inventory); err != nil {
					return err
				}
				w.Tracker.Acquire(hotProductID)
				defer w.Tracker.Release(hotProductID)

				if inventory <= 0 {
					return errSoldOut
				}
				var err error
				n, err = sqlDB.ExecContext(ctx, "UPDATE products SET inventory = inventory - 1 WHERE id = ?", hotProductID)
				return err
			})
			if err == nil {
				sold.Add(n)
			}
			return err
		})
		if err != nil {
			return err
		}

		var remaining int64
		if err := sqlDB.QueryRowContext(ctx, "SELECT inventory FROM products WHERE id = ?", hotProductID).Scan(&remaining); err != nil {
			return err
		}
		if want := hotStock - sold.Load(); remaining != want {
			return fmt.Errorf("lost update: %d units left, %d expected", remaining, want)
		}
		if leaked := w.Tracker.Leaked(); len(leaked) > 0 {
			return fmt.Errorf("unreleased row locks: %v", leaked)
		}
		w.SetExtra("units_sold", float64(sold.Load()))
		return nil
	}
}
