package db

import (
	"context"
	"fmt"
)

// schemaStatements is applied in order on startup. Every statement is
// idempotent so repeated runs against an existing database are no-ops.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS servers (
		server_id  BIGINT PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		icon_url   TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS subnets (
		id          BIGSERIAL PRIMARY KEY,
		name        VARCHAR(100) UNIQUE NOT NULL,
		description TEXT,
		tags        TEXT[],
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		channel_id BIGINT PRIMARY KEY,
		server_id  BIGINT NOT NULL REFERENCES servers(server_id) ON DELETE CASCADE,
		subnet_id  BIGINT REFERENCES subnets(id) ON DELETE SET NULL,
		name       VARCHAR(255) NOT NULL,
		topic      TEXT,
		category   VARCHAR(255),
		position   INTEGER,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id       BIGINT PRIMARY KEY,
		username      VARCHAR(255) NOT NULL,
		discriminator VARCHAR(10),
		display_name  VARCHAR(255),
		avatar_url    TEXT,
		bot           BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		message_id           BIGINT PRIMARY KEY,
		channel_id           BIGINT NOT NULL REFERENCES channels(channel_id) ON DELETE CASCADE,
		user_id              BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		content              TEXT NOT NULL DEFAULT '',
		timestamp            TIMESTAMPTZ NOT NULL,
		edited_timestamp     TIMESTAMPTZ,
		deleted              BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at           TIMESTAMPTZ,
		message_type         VARCHAR(50) NOT NULL DEFAULT 'Default',
		mentions             BIGINT[],
		attachments          JSONB,
		embeds               JSONB,
		reactions            JSONB,
		reference_message_id BIGINT,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_channel_ts ON messages (channel_id, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_user ON messages (user_id)`,
	`CREATE TABLE IF NOT EXISTS backfill_jobs (
		id                BIGSERIAL PRIMARY KEY,
		channel_id        BIGINT NOT NULL REFERENCES channels(channel_id) ON DELETE CASCADE,
		start_time        TIMESTAMPTZ NOT NULL,
		end_time          TIMESTAMPTZ,
		status            VARCHAR(50) NOT NULL DEFAULT 'pending',
		messages_imported INTEGER NOT NULL DEFAULT 0,
		error_message     TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backfill_jobs_channel ON backfill_jobs (channel_id, created_at DESC)`,
}

// Migrate creates the relational schema if it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
