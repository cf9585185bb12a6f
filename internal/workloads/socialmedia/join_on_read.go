package socialmedia

import (
	"context"
	"errors"

	"database-benchmark/internal/capability"
	"database-benchmark/internal/database"
	"database-benchmark/internal/runner"
	"database-benchmark/internal/workloads/fixture"
)

const (
	joinTimelineQuery = `
		SELECT p.id FROM posts p
		JOIN follows f ON p.user_id = f.followee_id
		WHERE f.follower_id = ?
		ORDER BY p.created_at DESC, p.id
		LIMIT 20`

	// posts of everyone within two follow hops
	reachTimelineQuery = `
		WITH RECURSIVE reach (user_id, depth) AS (
			SELECT followee_id, 1 FROM follows WHERE follower_id = ?
			UNION
			SELECT f.followee_id, r.depth + 1
			FROM follows f JOIN reach r ON f.follower_id = r.user_id
			WHERE r.depth < 2
		)
		SELECT p.id FROM posts p
		WHERE p.user_id IN (SELECT user_id FROM reach)
		ORDER BY p.created_at DESC, p.id
		LIMIT 20`
)

var errEmptyTimeline = errors.New("empty timeline")

// Benchmarks returns every socialmedia benchmark against db at scale.
func Benchmarks(db database.Driver, scale runner.Scale, opts fixture.Options) []runner.Benchmark {
	scenario := runner.Scenario{Name: ScenarioName, Scale: scale}
	return []runner.Benchmark{
		{
			Name:         ScenarioName + "/timeline_fan_out",
			Scenario:     scenario,
			Requirements: capability.Requires(capability.BasicCTE, capability.RecursiveCTE),
			Concurrent:   true,
			Work:         readTimelines(db, opts, reachTimelineQuery),
		},
		{
			Name:       ScenarioName + "/timeline_join",
			Scenario:   scenario,
			Concurrent: true,
			Work:       readTimelines(db, opts, joinTimelineQuery),
		},
		{
			Name:       ScenarioName + "/fan_out_on_write",
			Scenario:   scenario,
			Concurrent: true,
			Work:       fanOutOnWrite(db, opts),
		},
	}
}

// readTimelines has every worker read one page of a user's timeline per
// operation. A user who follows anyone must see posts.
func readTimelines(db database.Driver, opts fixture.Options, query string) runner.WorkFunc {
	return func(ctx context.Context, w *runner.Window) error {
		sqlDB, err := fixture.SQL(db, ScenarioName)
		if err != nil {
			return err
		}
		if w.Records == 0 {
			return nil
		}
		expectPosts := followsPerUser(w.Records) > 0

		return w.RunWorkers(ctx, opts.Plan(), func(ctx context.Context, worker, i int) error {
			user := userID(int64(worker*31+i) % w.Records)
			n, err := readPage(ctx, sqlDB, query, user)
			if err != nil {
				return err
			}
			if expectPosts && n == 0 {
				return errEmptyTimeline
			}
			return nil
		})
	}
}

func readPage(ctx context.Context, db database.SQLDriver, query, user string) (int, error) {
	rows, err := db.QueryContext(ctx, query, user)
	if err != nil {
		return 0, err
	}
	n := 0
	for rows.Next() {
		var postID string
		if err := rows.Scan(&postID); err != nil {
			rows.Close()
			return n, err
		}
		n++
	}
	return n, rows.Close()
}
