package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all accounting tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS exit_records (
		pid           INTEGER PRIMARY KEY,
		name          TEXT NOT NULL,
		priority      INTEGER NOT NULL,
		exit_status   INTEGER NOT NULL,
		cpu_time      INTEGER NOT NULL DEFAULT 0,
		thread_count  INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		terminated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS stat_samples (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		tick              INTEGER NOT NULL,
		context_switches  INTEGER NOT NULL,
		threads_scheduled INTEGER NOT NULL,
		load_balances     INTEGER NOT NULL,
		deadlines_missed  INTEGER NOT NULL DEFAULT 0,
		recorded_at       TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_exit_records_terminated_at ON exit_records(terminated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_stat_samples_tick ON stat_samples(tick)`,
}

// migrate applies every schema statement in order.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
