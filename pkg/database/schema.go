package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS instance_options (
	instance_id TEXT PRIMARY KEY,
	homework_days_back INTEGER,
	homework_days_forward INTEGER,
	schedule_type TEXT,
	schedule_time TEXT,
	schedule_days INTEGER[],
	schedule_interval INTEGER,
	max_items_in_attributes INTEGER,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS refresh_runs (
	id UUID PRIMARY KEY,
	instance_id TEXT NOT NULL,
	trigger TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT,
	students INTEGER NOT NULL DEFAULT 0,
	items INTEGER NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_runs_instance_started ON refresh_runs (instance_id, started_at DESC)`,
}

// EnsureSchema creates the tables the service needs when they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
