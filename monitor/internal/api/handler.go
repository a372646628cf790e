package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/healthwatch/healthwatch/monitor/internal/alerts"
	"github.com/healthwatch/healthwatch/pkg/types"
)

const defaultRecentWindow = time.Hour

// SnapshotSource returns the latest snapshot. *collector.Collector implements it.
type SnapshotSource interface {
	Latest() (types.Snapshot, bool)
}

// AlertSource exposes the rule engine state. *alerts.Engine implements it.
type AlertSource interface {
	Active() []types.Alert
	Recent(window time.Duration) []types.Alert
	Rules() []alerts.Rule
}

// Deps are the read sources behind the API.
type Deps struct {
	Snapshots SnapshotSource
	Alerts    AlertSource
	// Handlers lists the registered notification handler names.
	Handlers []string
	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
	// Stream serves /ws/stream when non-nil.
	Stream http.Handler
	// Started is the process start time reported by /api/v1/health.
	Started time.Time
}

// Handler is the HTTP handler for all monitor endpoints.
type Handler struct {
	deps Deps
	mux  *http.ServeMux
	now  func() time.Time
}

// New creates a Handler and registers all routes.
func New(deps Deps) *Handler {
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}
	h := &Handler{deps: deps, mux: http.NewServeMux(), now: time.Now}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/rules", h.rules)
	if deps.Metrics != nil {
		h.mux.Handle("/metrics", deps.Metrics)
	}
	if deps.Stream != nil {
		h.mux.Handle("/ws/stream", deps.Stream)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: overall state plus active alert counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	active := h.deps.Alerts.Active()
	resp := HealthResponse{
		UptimeSeconds: h.now().Sub(h.deps.Started).Seconds(),
		ActiveAlerts:  len(active),
		BySeverity:    make(map[string]int),
		Handlers:      h.deps.Handlers,
	}
	if resp.Handlers == nil {
		resp.Handlers = []string{}
	}
	for _, a := range active {
		resp.BySeverity[string(a.Severity)]++
	}

	snap, ok := h.deps.Snapshots.Latest()
	if !ok {
		resp.State = "unknown"
		jsonResp(w, http.StatusOK, resp)
		return
	}
	ts := snap.Timestamp
	resp.LastTick = &ts
	resp.Database = snap.Database.Connected
	resp.State = stateFromAlerts(active)
	jsonResp(w, http.StatusOK, resp)
}

// snapshot returns GET /api/v1/snapshot: the latest collected snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap, ok := h.deps.Snapshots.Latest()
	if !ok {
		jsonErr(w, http.StatusServiceUnavailable, "no snapshot collected yet")
		return
	}
	jsonResp(w, http.StatusOK, snap)
}

// alerts returns GET /api/v1/alerts: active alerts and those resolved within
// ?window= (a Go duration, default 1h).
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	window := defaultRecentWindow
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			jsonErr(w, http.StatusBadRequest, "window must be a positive duration")
			return
		}
		window = d
	}

	resp := AlertsResponse{
		Active: h.deps.Alerts.Active(),
		Recent: h.deps.Alerts.Recent(window),
		Window: window.String(),
	}
	if resp.Active == nil {
		resp.Active = []types.Alert{}
	}
	if resp.Recent == nil {
		resp.Recent = []types.Alert{}
	}
	jsonResp(w, http.StatusOK, resp)
}

// rules returns GET /api/v1/rules: the rule table in evaluation order.
func (h *Handler) rules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rules := h.deps.Alerts.Rules()
	out := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, RuleResponse{
			Type:            rule.Type,
			Condition:       rule.Condition.String(),
			Severity:        rule.Severity,
			Title:           rule.Title,
			CooldownSeconds: rule.Cooldown.Seconds(),
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// stateFromAlerts maps the most severe active alert to an overall state.
func stateFromAlerts(active []types.Alert) string {
	worst := -1
	for _, a := range active {
		if r := a.Severity.Rank(); r > worst {
			worst = r
		}
	}
	switch {
	case worst >= types.SeverityError.Rank():
		return "critical"
	case worst >= types.SeverityInfo.Rank():
		return "degraded"
	default:
		return "healthy"
	}
}
