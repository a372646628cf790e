package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const maxRetentionInterval = time.Hour

// Prune deletes system_metrics rows at or before now minus the retention.
// It returns the number of rows removed.
func (s *Store) Prune(ctx context.Context, now time.Time) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.retention).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM system_metrics WHERE timestamp <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return res.RowsAffected()
}

// Run starts the background retention loop. It ticks at half the retention
// (between 1 second and 1 hour). Run blocks until ctx is cancelled and
// returns immediately when retention is disabled.
func (s *Store) Run(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	interval := s.retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	if interval > maxRetentionInterval {
		interval = maxRetentionInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Prune(ctx, s.now())
			if err != nil {
				slog.Warn("store: retention prune failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("store: pruned old snapshots", "count", n)
			}
		}
	}
}
