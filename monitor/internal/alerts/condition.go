package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// Condition is a parsed "field operator value" expression.
//
// Supported fields:
//
//	cpu_usage            cpu.usage (%)
//	memory_usage         memory.usagePercent (%)
//	db_connected         1 when database.connected, else 0
//	db_response_ms       database.responseTime (ms)
//	queue_size           application.queueSize
//	active_jobs          application.activeJobs
//	error_rate           application.errorRate (%)
//	cache_hit_rate       application.cacheHitRate (%)
//	cache_miss_rate      100 - application.cacheHitRate (%)
//	load1                cpu.loadAverage[0]
type Condition struct {
	Field     string
	Op        string
	Threshold float64
}

// ParseCondition parses expressions like "cpu_usage > 80".
func ParseCondition(expr string) (Condition, error) {
	parts := strings.Fields(expr)
	if len(parts) != 3 {
		return Condition{}, fmt.Errorf("condition %q: want \"field op value\"", expr)
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if _, ok := fieldValue(field, types.Snapshot{}); !ok {
		return Condition{}, fmt.Errorf("condition %q: unknown field %q", expr, field)
	}
	switch op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return Condition{}, fmt.Errorf("condition %q: unknown operator %q", expr, op)
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return Condition{}, fmt.Errorf("condition %q: bad threshold: %w", expr, err)
	}
	return Condition{Field: field, Op: op, Threshold: threshold}, nil
}

// MustCondition is ParseCondition for static rule tables.
func MustCondition(expr string) Condition {
	c, err := ParseCondition(expr)
	if err != nil {
		panic(err)
	}
	return c
}

// Eval reports whether the condition holds for snap, and the observed value.
func (c Condition) Eval(snap types.Snapshot) (bool, float64) {
	v, ok := fieldValue(c.Field, snap)
	if !ok {
		return false, 0
	}
	return compareFloat(v, c.Op, c.Threshold), v
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, strconv.FormatFloat(c.Threshold, 'f', -1, 64))
}

// fieldValue maps a field name to its value in the snapshot.
func fieldValue(field string, snap types.Snapshot) (float64, bool) {
	switch field {
	case "cpu_usage":
		return snap.CPU.Usage, true
	case "memory_usage":
		return snap.Memory.UsagePercent, true
	case "db_connected":
		if snap.Database.Connected {
			return 1, true
		}
		return 0, true
	case "db_response_ms":
		return snap.Database.ResponseTime, true
	case "queue_size":
		return float64(snap.Application.QueueSize), true
	case "active_jobs":
		return float64(snap.Application.ActiveJobs), true
	case "error_rate":
		return snap.Application.ErrorRate, true
	case "cache_hit_rate":
		return snap.Application.CacheHitRate, true
	case "cache_miss_rate":
		return 100 - snap.Application.CacheHitRate, true
	case "load1":
		return snap.CPU.LoadAverage[0], true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
