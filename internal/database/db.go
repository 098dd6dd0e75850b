// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool for databaseURL and pings it.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

// Schema creates the session history tables.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          UUID PRIMARY KEY,
	channel_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'in_progress',
	end_reason  TEXT,
	winner_id   TEXT,
	start_time  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	end_time    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS session_actions (
	session_id     UUID NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
	action_index   INT NOT NULL,
	actor_user_id  TEXT,
	action_type    TEXT NOT NULL,
	action_payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, action_index)
);

CREATE INDEX IF NOT EXISTS sessions_status_idx ON sessions (status);
`

// Migrate applies Schema. Every statement is idempotent.
func Migrate(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
