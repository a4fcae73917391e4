package db

import "database/sql"

const (
	sqlCreateActorsTable = `CREATE TABLE IF NOT EXISTS actors (
		id TEXT NOT NULL PRIMARY KEY,
		uri TEXT UNIQUE NOT NULL,
		username TEXT NOT NULL,
		domain TEXT NOT NULL,
		display_name TEXT,
		summary TEXT,
		inbox_uri TEXT NOT NULL,
		shared_inbox_uri TEXT,
		outbox_uri TEXT,
		followers_uri TEXT,
		public_key_pem TEXT NOT NULL,
		private_key_pem TEXT,
		avatar_url TEXT,
		local INTEGER DEFAULT 0,
		fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(username, domain)
	)`

	sqlCreateActorsIndices = `
		CREATE INDEX IF NOT EXISTS idx_actors_uri ON actors(uri);
		CREATE INDEX IF NOT EXISTS idx_actors_followers_uri ON actors(followers_uri);
		CREATE INDEX IF NOT EXISTS idx_actors_local ON actors(local);
	`

	sqlCreateStatusesTable = `CREATE TABLE IF NOT EXISTS statuses (
		id TEXT NOT NULL PRIMARY KEY,
		uri TEXT UNIQUE NOT NULL,
		actor_uri TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT,
		to_json TEXT,
		cc_json TEXT,
		in_reply_to_uri TEXT,
		boost_of_uri TEXT,
		poll_choices_json TEXT,
		poll_ends_at TIMESTAMP,
		local INTEGER DEFAULT 0,
		sensitive INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		edited_at TIMESTAMP
	)`

	sqlCreateStatusesIndices = `
		CREATE INDEX IF NOT EXISTS idx_statuses_uri ON statuses(uri);
		CREATE INDEX IF NOT EXISTS idx_statuses_actor_uri ON statuses(actor_uri);
		CREATE INDEX IF NOT EXISTS idx_statuses_created_at ON statuses(created_at DESC);
	`

	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows (
		id TEXT NOT NULL PRIMARY KEY,
		actor_uri TEXT NOT NULL,
		target_uri TEXT NOT NULL,
		uri TEXT,
		status TEXT NOT NULL DEFAULT 'requested',
		inbox_uri TEXT,
		shared_inbox_uri TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateFollowsIndices = `
		CREATE INDEX IF NOT EXISTS idx_follows_actor_uri ON follows(actor_uri);
		CREATE INDEX IF NOT EXISTS idx_follows_target_uri ON follows(target_uri);
		CREATE INDEX IF NOT EXISTS idx_follows_uri ON follows(uri);
		CREATE INDEX IF NOT EXISTS idx_follows_inbox_uri ON follows(inbox_uri);
	`

	sqlCreateTimelineTable = `CREATE TABLE IF NOT EXISTS timeline_entries (
		viewer_uri TEXT NOT NULL,
		timeline TEXT NOT NULL,
		status_uri TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(viewer_uri, timeline, status_uri)
	)`

	sqlCreateTimelineIndices = `
		CREATE INDEX IF NOT EXISTS idx_timeline_viewer ON timeline_entries(viewer_uri, timeline, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_timeline_status ON timeline_entries(status_uri);
	`

	sqlCreateNotificationsTable = `CREATE TABLE IF NOT EXISTS notifications (
		id TEXT NOT NULL PRIMARY KEY,
		actor_uri TEXT NOT NULL,
		status_uri TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_uri, status_uri)
	)`

	sqlCreatePollVotesTable = `CREATE TABLE IF NOT EXISTS poll_votes (
		id TEXT NOT NULL PRIMARY KEY,
		status_uri TEXT NOT NULL,
		voter_uri TEXT NOT NULL,
		choice TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(status_uri, voter_uri, choice)
	)`

	// Jobs double as the dispatcher's deduplication ledger: the id is the
	// caller-supplied dedup id, so a second submit is an INSERT OR IGNORE
	// no-op. The payload is kept until the handler finishes, so rows with
	// done = 0 can be replayed after a restart.
	sqlCreateJobsTable = `CREATE TABLE IF NOT EXISTS jobs (
		id TEXT NOT NULL PRIMARY KEY,
		kind TEXT NOT NULL,
		payload BLOB NOT NULL DEFAULT '',
		done INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		tables := []struct {
			name string
			stmt string
		}{
			{"actors", sqlCreateActorsTable},
			{"statuses", sqlCreateStatusesTable},
			{"follows", sqlCreateFollowsTable},
			{"timeline_entries", sqlCreateTimelineTable},
			{"notifications", sqlCreateNotificationsTable},
			{"poll_votes", sqlCreatePollVotesTable},
			{"jobs", sqlCreateJobsTable},
		}

		for _, t := range tables {
			if _, err := tx.Exec(t.stmt); err != nil {
				db.log.Error("Error creating table", "table", t.name, "err", err)
				return err
			}
		}

		indices := []string{
			sqlCreateActorsIndices,
			sqlCreateStatusesIndices,
			sqlCreateFollowsIndices,
			sqlCreateTimelineIndices,
		}

		for _, stmt := range indices {
			if _, err := tx.Exec(stmt); err != nil {
				db.log.Warn("Failed to create indices", "err", err)
			}
		}

		return nil
	})
}
