package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
		id          TEXT PRIMARY KEY,
		type        TEXT NOT NULL,
		severity    TEXT NOT NULL,
		title       TEXT NOT NULL,
		message     TEXT NOT NULL,
		metadata    TEXT NOT NULL DEFAULT '{}',
		timestamp   INTEGER NOT NULL,
		resolved    INTEGER NOT NULL DEFAULT 0,
		resolved_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_type_ts ON alerts(type, timestamp);
	CREATE INDEX IF NOT EXISTS idx_alerts_resolved ON alerts(resolved);`,

	`CREATE TABLE IF NOT EXISTS system_metrics (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp      INTEGER NOT NULL,
		cpu_usage      REAL NOT NULL,
		memory_usage   REAL NOT NULL,
		queue_size     INTEGER NOT NULL,
		active_jobs    INTEGER NOT NULL,
		error_rate     REAL NOT NULL,
		cache_hit_rate REAL NOT NULL,
		metadata       TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_system_metrics_ts ON system_metrics(timestamp);`,
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		if err := applyMigration(ctx, db, i+1, migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, stmt string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return err
	}
	return tx.Commit()
}
