// Package types defines the shared data model of the monitor: the immutable
// Snapshot produced once per collection tick, the Alert raised when a rule's
// condition holds, and the Transition the rule engine emits for every fired
// or resolved alert.
package types
