package types

import "time"

// Snapshot is one immutable bundle of system and application measurements,
// taken on a single collection tick. JSON field names are part of the push
// channel and webhook contracts.
type Snapshot struct {
	Timestamp   time.Time        `json:"timestamp"`
	CPU         CPUStats         `json:"cpu"`
	Memory      MemoryStats      `json:"memory"`
	Process     ProcessStats     `json:"process"`
	Application ApplicationStats `json:"application"`
	Database    DatabaseStats    `json:"database"`
}

// CPUStats holds host CPU usage.
type CPUStats struct {
	// Usage is the instantaneous utilisation across all cores, 0–100.
	Usage float64 `json:"usage"`
	// LoadAverage holds the 1, 5 and 15 minute load averages.
	LoadAverage [3]float64 `json:"loadAverage"`
	Cores       int        `json:"cores"`
}

// MemoryStats holds host memory usage in bytes.
type MemoryStats struct {
	Total        uint64  `json:"total"`
	Used         uint64  `json:"used"`
	Free         uint64  `json:"free"`
	UsagePercent float64 `json:"usagePercent"`
}

// ProcessStats describes the monitor's own process.
type ProcessStats struct {
	// Uptime is the process age in seconds.
	Uptime     float64            `json:"uptime"`
	PID        int                `json:"pid"`
	Memory     ProcessMemoryStats `json:"memory"`
	Goroutines int                `json:"goroutines"`
}

// ProcessMemoryStats is the memory-usage breakdown of the process.
type ProcessMemoryStats struct {
	RSS       uint64 `json:"rss"`
	VMS       uint64 `json:"vms"`
	HeapAlloc uint64 `json:"heapAlloc"`
	HeapSys   uint64 `json:"heapSys"`
}

// ApplicationStats holds counters maintained by request-handling code.
type ApplicationStats struct {
	ActiveConnections int `json:"activeConnections"`
	QueueSize         int `json:"queueSize"`
	ActiveJobs        int `json:"activeJobs"`
	// CacheHitRate is hits/(hits+misses)*100; 100 when nothing was observed.
	CacheHitRate float64 `json:"cacheHitRate"`
	// ErrorRate is the share of failed operations in the trailing window, 0–100.
	ErrorRate float64 `json:"errorRate"`
}

// DatabaseStats is the outcome of the per-tick store probe.
type DatabaseStats struct {
	Connected         bool `json:"connected"`
	ActiveConnections int  `json:"activeConnections"`
	// ResponseTime is the probe round trip in milliseconds. On a failed probe
	// it is the time until the failure was detected.
	ResponseTime float64 `json:"responseTime"`
}

// Normalize returns a copy of s with every percentage clamped to [0, 100] and
// every other numeric field forced non-negative.
func (s Snapshot) Normalize() Snapshot {
	s.CPU.Usage = clampPct(s.CPU.Usage)
	for i, v := range s.CPU.LoadAverage {
		s.CPU.LoadAverage[i] = nonNeg(v)
	}
	if s.CPU.Cores < 0 {
		s.CPU.Cores = 0
	}
	s.Memory.UsagePercent = clampPct(s.Memory.UsagePercent)
	s.Process.Uptime = nonNeg(s.Process.Uptime)

	s.Application.ActiveConnections = nonNegInt(s.Application.ActiveConnections)
	s.Application.QueueSize = nonNegInt(s.Application.QueueSize)
	s.Application.ActiveJobs = nonNegInt(s.Application.ActiveJobs)
	s.Application.CacheHitRate = clampPct(s.Application.CacheHitRate)
	s.Application.ErrorRate = clampPct(s.Application.ErrorRate)

	s.Database.ActiveConnections = nonNegInt(s.Database.ActiveConnections)
	s.Database.ResponseTime = nonNeg(s.Database.ResponseTime)
	return s
}

// clampPct restricts v to [0, 100]. NaN maps to 0.
func clampPct(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func nonNeg(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	return v
}

func nonNegInt(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
