// Package alerts implements the rule evaluation engine. Rules are static
// threshold conditions over a types.Snapshot; the engine tracks one active
// alert and one last-fired time per rule and emits a types.Transition each
// time an alert fires or resolves.
//
// A firing is suppressed while the rule's cooldown, measured from its last
// firing, has not elapsed. Resolution is never suppressed.
package alerts
