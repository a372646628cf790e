package types

import (
	"fmt"
	"time"
)

// Severity is the importance of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from info (0) to critical (3). Unknown values rank -1.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AlertType identifies a rule. At most one unresolved alert exists per type.
type AlertType string

const (
	AlertCPUHigh          AlertType = "cpu-high"
	AlertMemoryHigh       AlertType = "memory-high"
	AlertDBConnectionLost AlertType = "db-connection-lost"
	AlertDBSlowQuery      AlertType = "db-slow-query"
	AlertQueueBacklog     AlertType = "queue-backlog"
	AlertErrorRateHigh    AlertType = "error-rate-high"
	AlertCacheMissHigh    AlertType = "cache-miss-high"
)

// Alert is one fired condition. Once Resolved is set the alert is final.
type Alert struct {
	ID         string     `json:"id"`
	Type       AlertType  `json:"type"`
	Severity   Severity   `json:"severity"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Metadata   any        `json:"metadata,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolvedAt"`
}

// AlertID derives the unique alert id from its type and firing time.
func AlertID(t AlertType, firedAt time.Time) string {
	return fmt.Sprintf("%s-%d", t, firedAt.UnixMilli())
}

// TransitionKind is the lifecycle step an alert just went through.
type TransitionKind string

const (
	TransitionFired    TransitionKind = "fired"
	TransitionResolved TransitionKind = "resolved"
)

// Transition is emitted by the rule engine for every fired or resolved alert.
// Alert is a copy; receivers may keep it.
type Transition struct {
	Kind  TransitionKind `json:"kind"`
	Alert Alert          `json:"alert"`
}
