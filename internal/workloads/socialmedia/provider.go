// Package socialmedia benchmarks timeline reads and writes over a follow
// graph.
package socialmedia

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"database-benchmark/internal/database"
	"database-benchmark/internal/runner"
	"database-benchmark/internal/workloads/fixture"
)

const (
	ScenarioName = "socialmedia"

	PostsPerUser   = 5
	FollowsPerUser = 3
)

func userID(i int64) string {
	return fmt.Sprintf("user-%06d", i)
}

// followsPerUser is the out-degree of the follow ring for n users.
func followsPerUser(n int64) int64 {
	if n-1 < FollowsPerUser {
		return max(n-1, 0)
	}
	return FollowsPerUser
}

// Provider seeds users on a ring where user i follows the next
// FollowsPerUser users, each with PostsPerUser posts.
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
	db, err := fixture.SQL(p.db, scenario.Name)
	if err != nil {
		return h, err
	}
	return h, fixture.CreateTables(ctx, db, scenario.Name, schema...)
}

func (p *Provider) Populate(ctx context.Context, h *runner.Handle, scale runner.Scale) (int64, error) {
	db, err := fixture.SQL(p.db, h.Scenario.Name)
	if err != nil {
		return 0, err
	}
	n := scale.Records()
	degree := followsPerUser(n)
	p.logger.Printf("Seeding %d users, %d posts, %d follows...", n, n*PostsPerUser, n*degree)

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Duration(n*PostsPerUser) * time.Second)
	users := make([][]interface{}, 0, n)
	posts := make([][]interface{}, 0, n*PostsPerUser)
	follows := make([][]interface{}, 0, n*degree)
	for i := int64(0); i < n; i++ {
		users = append(users, []interface{}{userID(i), fmt.Sprintf("user %d", i)})
		for j := int64(0); j < PostsPerUser; j++ {
			seq := i*PostsPerUser + j
			posts = append(posts, []interface{}{fmt.Sprintf("post-%08d", seq), userID(i), "post content", base.Add(time.Duration(seq) * time.Second)})
		}
		for d := int64(1); d <= degree; d++ {
			follows = append(follows, []interface{}{userID(i), userID((i + d) % n)})
		}
	}

	err = db.ExecuteTx(ctx, func(ctx context.Context) error {
		if _, err := fixture.InsertRows(ctx, db, "users", []string{"id", "name"}, users, 0); err != nil {
			return err
		}
		if _, err := fixture.InsertRows(ctx, db, "posts", []string{"id", "user_id", "content", "created_at"}, posts, 0); err != nil {
			return err
		}
		_, err := fixture.InsertRows(ctx, db, "follows", []string{"follower_id", "followee_id"}, follows, 0)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Provider) Cleanup(ctx context.Context, _ *runner.Handle) error {
	db, err := fixture.SQL(p.db, ScenarioName)
	if err != nil {
		return err
	}
	return fixture.DropTables(ctx, db, tables...)
}
