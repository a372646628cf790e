package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// Store is the SQLite-backed alert and snapshot store. Safe for concurrent use.
type Store struct {
	db        *sql.DB
	path      string
	retention time.Duration
	now       func() time.Time // injectable for deterministic tests
}

// Open opens (or creates) the database at path and applies migrations.
// retention <= 0 disables snapshot pruning.
func Open(ctx context.Context, path string, retention time.Duration) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{db: db, path: path, retention: retention, now: time.Now}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// UpsertAlert inserts a or, if a row with the same id exists, overwrites its
// mutable columns.
func (s *Store) UpsertAlert(ctx context.Context, a types.Alert) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal alert metadata: %w", err)
	}
	var resolvedAt sql.NullInt64
	if a.ResolvedAt != nil {
		resolvedAt = sql.NullInt64{Int64: a.ResolvedAt.UnixMilli(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, type, severity, title, message, metadata, timestamp, resolved, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			severity    = excluded.severity,
			title       = excluded.title,
			message     = excluded.message,
			metadata    = excluded.metadata,
			resolved    = excluded.resolved,
			resolved_at = excluded.resolved_at`,
		a.ID, string(a.Type), string(a.Severity), a.Title, a.Message, string(meta),
		a.Timestamp.UnixMilli(), a.Resolved, resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert alert %s: %w", a.ID, err)
	}
	return nil
}

// GetAlert returns the alert with the given id. Metadata is returned as the
// raw decoded JSON value.
func (s *Store) GetAlert(ctx context.Context, id string) (types.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, severity, title, message, metadata, timestamp, resolved, resolved_at
		FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Alert{}, fmt.Errorf("store: alert %s: %w", id, err)
	}
	return a, err
}

// ActiveAlerts returns all unresolved alerts, newest first.
func (s *Store) ActiveAlerts(ctx context.Context) ([]types.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, severity, title, message, metadata, timestamp, resolved, resolved_at
		FROM alerts WHERE resolved = 0
		ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: query active alerts: %w", err)
	}
	defer rows.Close()

	var out []types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ResolveStale marks every unresolved alert as resolved at now and returns
// how many rows changed.
func (s *Store) ResolveStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET resolved = 1, resolved_at = ? WHERE resolved = 0`,
		now.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: resolve stale alerts: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(sc scanner) (types.Alert, error) {
	var (
		a          types.Alert
		typ, sev   string
		meta       string
		ts         int64
		resolvedAt sql.NullInt64
	)
	if err := sc.Scan(&a.ID, &typ, &sev, &a.Title, &a.Message, &meta, &ts, &a.Resolved, &resolvedAt); err != nil {
		return types.Alert{}, err
	}
	a.Type = types.AlertType(typ)
	a.Severity = types.Severity(sev)
	a.Timestamp = time.UnixMilli(ts).UTC()
	if resolvedAt.Valid {
		t := time.UnixMilli(resolvedAt.Int64).UTC()
		a.ResolvedAt = &t
	}
	if meta != "" && meta != "null" {
		var m any
		if err := json.Unmarshal([]byte(meta), &m); err != nil {
			return types.Alert{}, fmt.Errorf("store: decode metadata of %s: %w", a.ID, err)
		}
		a.Metadata = m
	}
	return a, nil
}

// InsertSnapshot appends snap to system_metrics.
func (s *Store) InsertSnapshot(ctx context.Context, snap types.Snapshot) error {
	meta, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO system_metrics
			(timestamp, cpu_usage, memory_usage, queue_size, active_jobs, error_rate, cache_hit_rate, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Timestamp.UnixMilli(),
		snap.CPU.Usage,
		snap.Memory.UsagePercent,
		snap.Application.QueueSize,
		snap.Application.ActiveJobs,
		snap.Application.ErrorRate,
		snap.Application.CacheHitRate,
		string(meta),
	)
	if err != nil {
		return fmt.Errorf("store: insert snapshot: %w", err)
	}
	return nil
}

// Probe runs a trivial round trip and reports the number of open connections.
// The caller bounds it with ctx.
func (s *Store) Probe(ctx context.Context) (int, error) {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return 0, fmt.Errorf("store: probe: %w", err)
	}
	return s.db.Stats().OpenConnections, nil
}
