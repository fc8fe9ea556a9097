// Package migrations applies the database schema at startup. Statements are
// idempotent so repeated application against the same database is safe.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS stories (
		id                TEXT PRIMARY KEY,
		author_id         TEXT NOT NULL,
		caption           TEXT NOT NULL DEFAULT '',
		media_url         TEXT NOT NULL,
		privacy           TEXT NOT NULL DEFAULT 'public',
		status            TEXT NOT NULL DEFAULT 'active',
		created_at        TIMESTAMPTZ NOT NULL,
		expires_at        TIMESTAMPTZ NOT NULL,
		view_count        BIGINT NOT NULL DEFAULT 0,
		unique_view_count BIGINT NOT NULL DEFAULT 0,
		reaction_count    BIGINT NOT NULL DEFAULT 0,
		reply_count       BIGINT NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_stories_author_active
		ON stories (author_id, expires_at) WHERE status <> 'deleted'`,

	`CREATE TABLE IF NOT EXISTS story_views (
		id               TEXT PRIMARY KEY,
		story_id         TEXT NOT NULL REFERENCES stories (id) ON DELETE CASCADE,
		viewer_id        TEXT NOT NULL,
		viewed_at        TIMESTAMPTZ NOT NULL,
		view_duration_ms BIGINT NOT NULL DEFAULT 0,
		completion_rate  INTEGER NOT NULL DEFAULT 0,
		device_type      TEXT NOT NULL DEFAULT '',
		reaction         TEXT,
		reacted_at       TIMESTAMPTZ,
		UNIQUE (story_id, viewer_id)
	)`,

	`CREATE TABLE IF NOT EXISTS daily_quota_counters (
		user_id    TEXT NOT NULL,
		date_key   TEXT NOT NULL,
		posts_used INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, date_key)
	)`,

	`CREATE TABLE IF NOT EXISTS credit_ledger (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		delta      BIGINT NOT NULL,
		reason     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_credit_ledger_user
		ON credit_ledger (user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS credit_balances (
		user_id    TEXT PRIMARY KEY,
		balance    BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id      TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		avatar_url   TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS follows (
		follower_id TEXT NOT NULL,
		followee_id TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (follower_id, followee_id)
	)`,
}

// Apply runs every schema statement in order against db.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
