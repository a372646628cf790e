// Package store persists alerts and metric snapshots in SQLite.
//
// The alerts table is keyed by alert id and written with an upsert, so the
// resolved transition of an alert updates the row its fired transition
// created. The system_metrics table is append-only; a background retention
// loop (Run) deletes rows older than the configured retention.
//
// Store also implements the collector's database probe: a SELECT 1 round
// trip whose failure is reported as a lost connection.
package store
