package storage

// schema is valid for both PostgreSQL and SQLite. Instants are unix
// milliseconds, calendar days are YYYY-MM-DD text.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS deliveries (
		id               TEXT PRIMARY KEY,
		normalized_title TEXT NOT NULL,
		full_title       TEXT NOT NULL,
		source_code      TEXT NOT NULL,
		posted_date      TEXT NOT NULL,
		posted_at        BIGINT NOT NULL,
		status           TEXT NOT NULL,
		channel_category TEXT NOT NULL DEFAULT '',
		article_url      TEXT NOT NULL DEFAULT '',
		slot             INTEGER NOT NULL DEFAULT 0,
		UNIQUE (normalized_title, posted_date)
	)`,
	`CREATE INDEX IF NOT EXISTS deliveries_posted_date_idx ON deliveries (posted_date)`,
	`CREATE INDEX IF NOT EXISTS deliveries_status_idx ON deliveries (status)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		run_date      TEXT NOT NULL,
		slot          INTEGER NOT NULL,
		forced        INTEGER NOT NULL DEFAULT 0,
		scheduled_at  BIGINT NOT NULL,
		started_at    BIGINT NOT NULL,
		finished_at   BIGINT,
		status        TEXT NOT NULL,
		posts_sent    INTEGER NOT NULL DEFAULT 0,
		source_counts TEXT NOT NULL DEFAULT '{}',
		error         TEXT NOT NULL DEFAULT ''
	)`,
	// Scheduled runs claim their slot exactly once; forced runs are exempt.
	`CREATE UNIQUE INDEX IF NOT EXISTS runs_slot_uniq ON runs (run_date, slot) WHERE forced = 0`,
	`CREATE INDEX IF NOT EXISTS runs_started_at_idx ON runs (started_at)`,
	`CREATE TABLE IF NOT EXISTS counters (
		name  TEXT PRIMARY KEY,
		value BIGINT NOT NULL DEFAULT 0
	)`,
}
