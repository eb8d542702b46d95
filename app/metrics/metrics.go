// Package metrics exposes Prometheus counters for sync runs and crawls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsNamespace = "rss_ledger"

// Metrics is safe to use through a nil pointer, which records nothing.
type Metrics struct {
	SyncRunsTotal         *prometheus.CounterVec
	SyncDurationSeconds   *prometheus.HistogramVec
	RecordsAppendedTotal  *prometheus.CounterVec
	WindowSize            *prometheus.GaugeVec
	CrawlWindowsTotal     *prometheus.CounterVec
	TasksEnqueuedTotal    *prometheus.CounterVec
	TaskQueueDepth        prometheus.Gauge
	TasksCurrentlyRunning prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.SyncRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "sync_runs_total",
			Help:      "Total number of source sync runs by outcome",
		},
		[]string{"source", "status"},
	)

	m.SyncDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of source sync runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 13), // 0.1s to ~7min
		},
		[]string{"source"},
	)

	m.RecordsAppendedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "records_appended_total",
			Help:      "Total number of records appended to source ledgers",
		},
		[]string{"source"},
	)

	m.WindowSize = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "window_items",
			Help:      "Number of items in the last rendered output window",
		},
		[]string{"source"},
	)

	m.CrawlWindowsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "crawl",
			Name:      "windows_total",
			Help:      "Total number of crawled month windows by outcome",
		},
		[]string{"source", "outcome"},
	)

	m.TasksEnqueuedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "scheduler",
			Name:      "tasks_enqueued_total",
			Help:      "Total number of sync tasks enqueued by trigger",
		},
		[]string{"trigger"},
	)

	m.TaskQueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Number of sync tasks waiting for a worker",
		},
	)

	m.TasksCurrentlyRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: "scheduler",
			Name:      "tasks_currently_running",
			Help:      "Number of sync tasks currently running",
		},
	)

	return m
}

func (m *Metrics) ObserveSync(source, status string, appended, windowSize int, duration time.Duration) {
	if m == nil {
		return
	}
	m.SyncRunsTotal.WithLabelValues(source, status).Inc()
	m.SyncDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
	if appended > 0 {
		m.RecordsAppendedTotal.WithLabelValues(source).Add(float64(appended))
	}
	if windowSize > 0 {
		m.WindowSize.WithLabelValues(source).Set(float64(windowSize))
	}
}

func (m *Metrics) ObserveCrawlWindow(source, outcome string) {
	if m == nil {
		return
	}
	m.CrawlWindowsTotal.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) TaskEnqueued(trigger string, depth int) {
	if m == nil {
		return
	}
	m.TasksEnqueuedTotal.WithLabelValues(trigger).Inc()
	m.TaskQueueDepth.Set(float64(depth))
}

func (m *Metrics) TaskStarted(depth int) {
	if m == nil {
		return
	}
	m.TaskQueueDepth.Set(float64(depth))
	m.TasksCurrentlyRunning.Inc()
}

func (m *Metrics) TaskFinished() {
	if m == nil {
		return
	}
	m.TasksCurrentlyRunning.Dec()
}
