package alerts

import (
	"fmt"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// Rule is one static alert definition.
type Rule struct {
	Type      types.AlertType
	Condition Condition
	Severity  types.Severity
	Title     string
	// Message renders the human-readable alert text for the triggering snapshot.
	Message  func(types.Snapshot) string
	Cooldown time.Duration
}

// ShouldFire evaluates the rule's predicate.
func (r Rule) ShouldFire(snap types.Snapshot) bool {
	fires, _ := r.Condition.Eval(snap)
	return fires
}

// DefaultRules returns the built-in rule table in evaluation order.
// Thresholds, severities and cooldowns are part of the external contract.
func DefaultRules() []Rule {
	return []Rule{
		{
			Type:      types.AlertCPUHigh,
			Condition: MustCondition("cpu_usage > 80"),
			Severity:  types.SeverityWarning,
			Title:     "High CPU usage",
			Message: func(s types.Snapshot) string {
				return fmt.Sprintf("CPU usage is %.1f%% (threshold 80%%), load average %.2f",
					s.CPU.Usage, s.CPU.LoadAverage[0])
			},
			Cooldown: 5 * time.Minute,
		},
		{
			Type:      types.AlertMemoryHigh,
			Condition: MustCondition("memory_usage > 85"),
			Severity:  types.SeverityWarning,
			Title:     "High memory usage",
			Message: func(s types.Snapshot) string {
				return fmt.Sprintf("Memory usage is %.1f%% (threshold 85%%), %s of %s used",
					s.Memory.UsagePercent, humanBytes(s.Memory.Used), humanBytes(s.Memory.Total))
			},
			Cooldown: 5 * time.Minute,
		},
		{
			Type:      types.AlertDBConnectionLost,
			Condition: MustCondition("db_connected == 0"),
			Severity:  types.SeverityCritical,
			Title:     "Database connection lost",
			Message: func(s types.Snapshot) string {
				return fmt.Sprintf("Database health check failed after %.0fms", s.Database.ResponseTime)
			},
			Cooldown: 1 * time.Minute,
		},
		{
			Type:      types.AlertDBSlowQuery,
			Condition: MustCondition("db_response_ms > 5000"),
			Severity:  types.SeverityWarning,
			Title:     "Slow database response",
			Message: func(s types.Snapshot) string {
				return fmt.Sprintf("Database round trip took %.0fms (threshold 5000ms)", s.Database.ResponseTime)
			},
			Cooldown: 10 * time.Minute,
		},
		{
			Type:      types.AlertQueueBacklog,
			Condition: MustCondition("queue_size > 100"),
			Severity:  types.SeverityWarning,
			Title:     "Job queue backlog",
			Message: func(s types.Snapshot) string {
				return fmt.Sprintf("%d jobs pending (threshold 100), %d active",
					s.Application.QueueSize, s.Application.ActiveJobs)
			},
			Cooldown: 15 * time.Minute,
		},
		{
			Type:      types.AlertErrorRateHigh,
			Condition: MustCondition("error_rate > 5"),
			Severity:  types.SeverityError,
			Title:     "High error rate",
			Message: func(s types.Snapshot) string {
				return fmt.Sprintf("%.1f%% of operations failed in the last 5 minutes (threshold 5%%)",
					s.Application.ErrorRate)
			},
			Cooldown: 10 * time.Minute,
		},
		{
			Type:      types.AlertCacheMissHigh,
			Condition: MustCondition("cache_miss_rate > 50"),
			Severity:  types.SeverityInfo,
			Title:     "High cache miss rate",
			Message: func(s types.Snapshot) string {
				return fmt.Sprintf("Cache miss rate is %.1f%% (threshold 50%%)", 100-s.Application.CacheHitRate)
			},
			Cooldown: 30 * time.Minute,
		},
	}
}

func humanBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
