package socialmedia

const (
	usersTable = `
		CREATE TABLE users (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL
		)`

	postsTable = `
		CREATE TABLE posts (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`

	followsTable = `
		CREATE TABLE follows (
			follower_id VARCHAR(255) NOT NULL,
			followee_id VARCHAR(255) NOT NULL,
			PRIMARY KEY (follower_id, followee_id)
		)`

	// one row per delivered post, written on fan-out
	timelinesTable = `
		CREATE TABLE timelines (
			user_id VARCHAR(255) NOT NULL,
			post_id VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, post_id)
		)`

	postsByAuthor     = `CREATE INDEX posts_user ON posts (user_id)`
	followsByFollowee = `CREATE INDEX follows_followee ON follows (followee_id)`
)

var (
	schema = []string{usersTable, postsTable, followsTable, timelinesTable, postsByAuthor, followsByFollowee}
	tables = []string{"timelines", "follows", "posts", "users"}
)
