package alerts

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

const maxHistoryLen = 200

// ruleState is the per-type lifecycle record: the current unresolved alert,
// if any, and when the rule last fired.
type ruleState struct {
	active      *types.Alert
	lastFiredAt time.Time
}

// Engine evaluates the rule table against incoming snapshots and tracks the
// lifecycle of every alert it raises.
//
// Evaluate is meant to be driven from a single goroutine. The read accessors
// are safe to call concurrently with it.
type Engine struct {
	rules []Rule
	now   func() time.Time

	mu      sync.Mutex
	state   map[types.AlertType]*ruleState
	history []types.Alert // resolved alerts, oldest first
}

// New creates an Engine over rules. A nil rules slice selects DefaultRules.
func New(rules []Rule) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	state := make(map[types.AlertType]*ruleState, len(rules))
	for _, r := range rules {
		state[r.Type] = &ruleState{}
	}
	return &Engine{
		rules: rules,
		now:   time.Now,
		state: state,
	}
}

// Evaluate tests every rule against snap in table order and returns the
// transitions it produced, in that order.
func (e *Engine) Evaluate(snap types.Snapshot) []types.Transition {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []types.Transition
	for _, rule := range e.rules {
		st := e.state[rule.Type]
		fires, value := rule.Condition.Eval(snap)

		switch {
		case fires && st.active == nil:
			if !st.lastFiredAt.IsZero() && now.Sub(st.lastFiredAt) < rule.Cooldown {
				slog.Debug("alerts: firing suppressed by cooldown",
					"type", rule.Type,
					"value", value,
					"remaining", rule.Cooldown-now.Sub(st.lastFiredAt),
				)
				continue
			}
			a := &types.Alert{
				ID:        types.AlertID(rule.Type, now),
				Type:      rule.Type,
				Severity:  rule.Severity,
				Title:     rule.Title,
				Message:   rule.Message(snap),
				Metadata:  snap,
				Timestamp: now,
			}
			st.active = a
			st.lastFiredAt = now
			out = append(out, types.Transition{Kind: types.TransitionFired, Alert: *a})

			slog.Warn("alerts: fired",
				"id", a.ID,
				"type", rule.Type,
				"severity", rule.Severity,
				"value", value,
			)

		case !fires && st.active != nil:
			resolvedAt := now
			a := st.active
			a.Resolved = true
			a.ResolvedAt = &resolvedAt
			st.active = nil

			e.history = append(e.history, *a)
			if len(e.history) > maxHistoryLen {
				e.history = e.history[len(e.history)-maxHistoryLen:]
			}
			out = append(out, types.Transition{Kind: types.TransitionResolved, Alert: *a})

			slog.Info("alerts: resolved",
				"id", a.ID,
				"type", rule.Type,
				"active_for", resolvedAt.Sub(a.Timestamp),
			)
		}
	}
	return out
}

// Active returns copies of all unresolved alerts, newest first.
func (e *Engine) Active() []types.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.Alert, 0, len(e.state))
	for _, st := range e.state {
		if st.active != nil {
			out = append(out, *st.active)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Type < out[j].Type
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Recent returns alerts resolved within window, newest first.
func (e *Engine) Recent(window time.Duration) []types.Alert {
	cutoff := e.now().Add(-window)

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []types.Alert
	for i := len(e.history) - 1; i >= 0; i-- {
		a := e.history[i]
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			out = append(out, a)
		}
	}
	return out
}

// Rules returns the rule table in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}
