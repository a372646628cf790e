// Package api implements the monitor's read-only HTTP API.
//
// New(deps) returns an http.Handler that serves:
//
//	GET /api/v1/health    overall state derived from active alerts
//	GET /api/v1/snapshot  the latest snapshot; 503 before the first tick
//	GET /api/v1/alerts    active alerts plus alerts resolved within ?window=
//	GET /api/v1/rules     the rule table
//	GET /metrics          Prometheus exposition, when deps.Metrics is set
//	    /ws/stream        WebSocket push channel, when deps.Stream is set
//
// All JSON endpoints respond with Content-Type: application/json and return
// 405 for non-GET methods. APIKey and RateLimit are optional middleware.
package api
