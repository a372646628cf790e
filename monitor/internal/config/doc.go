// Package config loads and watches the monitor configuration file.
//
// Top-level types:
//   - Config{Monitor, Database, Storage, Queue, Notifications}
//   - MonitorConfig: interval, http_port, auth
//   - NotificationsConfig: email recipients per severity, chat webhook URL,
//     generic webhook URLs; an absent channel disables its handler
//
// Load(path) applies defaults (30s interval, port 8080, 5s probe timeout,
// 7 day retention), parses the YAML file when path is non-empty, applies
// environment overrides, then validates.
//
// Environment overrides:
//
//	MONITOR_INTERVAL_MS   tick interval in milliseconds
//	ALERT_EMAIL_ERROR     recipient for error alerts
//	ALERT_EMAIL_CRITICAL  recipient for critical alerts
//	CHAT_WEBHOOK_URL      chat webhook URL
//	ALERT_WEBHOOK_URLS    comma-separated generic webhook URLs
//
// Watch(ctx, path, current, onChange) uses fsnotify to reload the file when
// its content changes. Only the tick interval is applied at runtime; notification
// handlers are fixed at startup.
package config
