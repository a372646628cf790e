package api

import (
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State         string         `json:"state"`
	UptimeSeconds float64        `json:"uptimeSeconds"`
	LastTick      *time.Time     `json:"lastTick"`
	ActiveAlerts  int            `json:"activeAlerts"`
	BySeverity    map[string]int `json:"bySeverity"`
	Database      bool           `json:"database"`
	Handlers      []string       `json:"handlers"`
}

// AlertsResponse is the payload for GET /api/v1/alerts.
type AlertsResponse struct {
	Active []types.Alert `json:"active"`
	Recent []types.Alert `json:"recent"`
	Window string        `json:"window"`
}

// RuleResponse is one entry of GET /api/v1/rules.
type RuleResponse struct {
	Type            types.AlertType `json:"type"`
	Condition       string          `json:"condition"`
	Severity        types.Severity  `json:"severity"`
	Title           string          `json:"title"`
	CooldownSeconds float64         `json:"cooldownSeconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}
