package ws

import (
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// Event names.
const (
	EventMetrics = "metrics"
	EventAlert   = "alert"
)

// Message is the JSON envelope for every published event.
type Message struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// MetricsData is the compact per-tick metrics summary.
type MetricsData struct {
	CPUUsage    float64 `json:"cpuUsage"`
	MemoryUsage float64 `json:"memoryUsage"`
	ActiveJobs  int     `json:"activeJobs"`
	QueueSize   int     `json:"queueSize"`
	Uptime      float64 `json:"uptime"`
}

// AlertData carries one alert transition.
type AlertData struct {
	Kind types.TransitionKind `json:"kind"`
	types.Alert
}

func metricsData(s types.Snapshot) MetricsData {
	return MetricsData{
		CPUUsage:    s.CPU.Usage,
		MemoryUsage: s.Memory.UsagePercent,
		ActiveJobs:  s.Application.ActiveJobs,
		QueueSize:   s.Application.QueueSize,
		Uptime:      s.Process.Uptime,
	}
}
