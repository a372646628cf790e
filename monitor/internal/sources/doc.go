// Package sources reads the raw inputs of a snapshot.
//
// System (system.go) samples host CPU, load and memory plus the monitor's own
// process through gopsutil. Queue (queue.go) scrapes a remote job queue's
// Prometheus endpoint for pending and active job gauges, for deployments
// where the queue does not live in this process.
//
// Sources never abort a tick: a failed read returns an error alongside a
// zeroed value and the collector degrades the affected fields.
package sources
