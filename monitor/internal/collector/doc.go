// Package collector drives the collect, persist, publish, evaluate and
// dispatch pipeline once per tick.
//
// Collector.Run ticks once immediately and then on a fixed interval that can
// be changed at runtime with UpdateInterval. A tick never fails: source errors
// degrade the snapshot, persistence errors are logged, and a panic is
// recovered. Ticks never overlap; a Tick call made while another is running
// is skipped, so the rule engine always has a single writer.
//
// Alert dispatch is handed off with a non-blocking Enqueue, so a slow
// notification channel never delays the next tick.
package collector
