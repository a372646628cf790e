// Package notify fans alert transitions out to notification channels.
//
// A Manager holds an ordered, immutable set of Handlers. Each handler decides
// for itself which alerts it accepts (ShouldHandle) and delivers through one
// external channel: the alert store, SMTP email, a Slack-compatible chat
// webhook, or generic JSON webhooks.
//
// Manager.Enqueue is non-blocking and is what the collector calls from its
// tick. Manager.Run drains the queue in order and dispatches each alert to
// every accepting handler concurrently. A failing handler is logged and never
// stops its siblings; delivery is at-most-once with no retries.
package notify
