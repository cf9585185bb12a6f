package socialmedia

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"database-benchmark/internal/database"
	"database-benchmark/internal/runner"
	"database-benchmark/internal/workloads/fixture"
)

// fanOutOnWrite publishes posts and copies each into the timeline of every
// follower of its author in the same transaction.
func fanOutOnWrite(db database.Driver, opts fixture.Options) runner.WorkFunc {
	return func(ctx context.Context, w *runner.Window) error {
		sqlDB, err := fixture.SQL(db, ScenarioName)
		if err != nil {
			return err
		}
		if w.Records == 0 {
			return nil
		}

		var delivered atomic.Int64
		err = w.RunWorkers(ctx, opts.Plan(), func(ctx context.Context, worker, i int) error {
			author := userID(int64(worker*31+i) % w.Records)
			var n int64
			err := sqlDB.ExecuteTx(ctx, func(ctx context.Context) error {
				var err error
				n, err = publish(ctx, sqlDB, author)
				return err
			})
			if err == nil {
				delivered.Add(n)
			}
			return err
		})
		if err != nil {
			return err
		}

		stored, err := fixture.Count(ctx, sqlDB, "timelines")
		if err != nil {
			return err
		}
		if stored != delivered.Load() {
			return fmt.Errorf("data integrity: %d timeline rows stored, %d delivered", stored, delivered.Load())
		}
		w.SetExtra("timeline_rows", float64(stored))
		return nil
	}
}

func publish(ctx context.Context, db database.SQLDriver, author string) (int64, error) {
	postID := uuid.NewString()
	now := time.Now().UTC()
	if _, err := db.ExecContext(ctx, "INSERT INTO posts (id, user_id, content, created_at) VALUES (?, ?, ?, ?)",
		postID, author, "post content", now); err != nil {
		return 0, err
	}

	rows, err := db.QueryContext(ctx, "SELECT follower_id FROM follows WHERE followee_id = ?", author)
	if err != nil {
		return 0, err
	}
	var followers []string
	for rows.Next() {
		var followerID string
		if err := rows.Scan(&followerID); err != nil {
			rows.Close()
			return 0, err
		}
		followers = append(followers, followerID)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}

	var delivered int64
	for _, followerID := range followers {
		n, err := db.ExecContext(ctx, "INSERT INTO timelines (user_id, post_id, created_at) VALUES (?, ?, ?)", followerID, postID, now)
		if err != nil {
			return delivered, err
		}
		delivered += n
	}
	return delivered, nil
}
