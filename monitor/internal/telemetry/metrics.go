// Package telemetry exposes the monitor's own Prometheus metrics: the latest
// snapshot as gauges, plus counters for alert transitions, notification
// outcomes and tick health.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/healthwatch/healthwatch/pkg/types"
)

const namespace = "healthwatch"

// Metrics holds every collector registered by New.
type Metrics struct {
	reg *prometheus.Registry

	CPUUsage          prometheus.Gauge
	MemoryUsage       prometheus.Gauge
	ProcessRSS        prometheus.Gauge
	Goroutines        prometheus.Gauge
	QueueSize         prometheus.Gauge
	ActiveJobs        prometheus.Gauge
	ActiveConnections prometheus.Gauge
	ErrorRate         prometheus.Gauge
	CacheHitRate      prometheus.Gauge
	DBConnected       prometheus.Gauge
	DBResponseTime    prometheus.Gauge

	AlertsActive     *prometheus.GaugeVec
	AlertTransitions *prometheus.CounterVec
	NotifyResults    *prometheus.CounterVec
	NotifyQueueDrops prometheus.Counter
	TickDuration     prometheus.Histogram
	TicksSkipped     prometheus.Counter
	StoreErrors      *prometheus.CounterVec
}

// New registers all metrics on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	return &Metrics{
		reg: reg,

		CPUUsage:          gauge("cpu_usage_percent", "System CPU usage at the last tick"),
		MemoryUsage:       gauge("memory_usage_percent", "System memory usage at the last tick"),
		ProcessRSS:        gauge("process_rss_bytes", "Resident set size of the monitored process"),
		Goroutines:        gauge("goroutines", "Goroutines in the monitored process"),
		QueueSize:         gauge("queue_size", "Pending jobs at the last tick"),
		ActiveJobs:        gauge("active_jobs", "Running jobs at the last tick"),
		ActiveConnections: gauge("active_connections", "Open client connections at the last tick"),
		ErrorRate:         gauge("error_rate_percent", "Failed operations over the trailing window"),
		CacheHitRate:      gauge("cache_hit_rate_percent", "Cache hit rate since start"),
		DBConnected:       gauge("database_connected", "1 when the last database probe succeeded"),
		DBResponseTime:    gauge("database_response_seconds", "Duration of the last database probe"),

		AlertsActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_active",
			Help:      "1 while an alert of the given type is unresolved",
		}, []string{"type", "severity"}),
		AlertTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_transitions_total",
			Help:      "Alert lifecycle transitions emitted by the rule engine",
		}, []string{"type", "kind"}),
		NotifyResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_results_total",
			Help:      "Notification handler invocations by outcome",
		}, []string{"handler", "result"}),
		NotifyQueueDrops: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_queue_dropped_total",
			Help:      "Alerts evicted from a full dispatch queue",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one collect-evaluate tick",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		TicksSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because the previous one was still running",
		}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Persistence failures by operation",
		}, []string{"op"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveSnapshot copies s into the snapshot gauges.
func (m *Metrics) ObserveSnapshot(s types.Snapshot) {
	m.CPUUsage.Set(s.CPU.Usage)
	m.MemoryUsage.Set(s.Memory.UsagePercent)
	m.ProcessRSS.Set(float64(s.Process.Memory.RSS))
	m.Goroutines.Set(float64(s.Process.Goroutines))
	m.QueueSize.Set(float64(s.Application.QueueSize))
	m.ActiveJobs.Set(float64(s.Application.ActiveJobs))
	m.ActiveConnections.Set(float64(s.Application.ActiveConnections))
	m.ErrorRate.Set(s.Application.ErrorRate)
	m.CacheHitRate.Set(s.Application.CacheHitRate)
	m.DBResponseTime.Set(s.Database.ResponseTime / 1000)
	if s.Database.Connected {
		m.DBConnected.Set(1)
	} else {
		m.DBConnected.Set(0)
	}
}

// AlertTransition counts tr and updates the active-alert gauge.
func (m *Metrics) AlertTransition(tr types.Transition) {
	a := tr.Alert
	m.AlertTransitions.WithLabelValues(string(a.Type), string(tr.Kind)).Inc()
	switch tr.Kind {
	case types.TransitionFired:
		m.AlertsActive.WithLabelValues(string(a.Type), string(a.Severity)).Set(1)
	case types.TransitionResolved:
		m.AlertsActive.WithLabelValues(string(a.Type), string(a.Severity)).Set(0)
	}
}

// HandlerResult records one notification handler outcome.
func (m *Metrics) HandlerResult(handler string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.NotifyResults.WithLabelValues(handler, result).Inc()
}

// QueueDropped records one alert evicted from the dispatch queue.
func (m *Metrics) QueueDropped() { m.NotifyQueueDrops.Inc() }

// TickDone records the duration of a completed tick.
func (m *Metrics) TickDone(d time.Duration) { m.TickDuration.Observe(d.Seconds()) }

// TickSkipped records a tick dropped because the previous one was busy.
func (m *Metrics) TickSkipped() { m.TicksSkipped.Inc() }

// StoreError records a persistence failure for op.
func (m *Metrics) StoreError(op string) { m.StoreErrors.WithLabelValues(op).Inc() }
