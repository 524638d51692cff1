package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the raffle engine
type PrometheusMetrics struct {
	// Event ingestion metrics
	EventsProcessedTotal    *prometheus.CounterVec
	EventProcessingDuration *prometheus.HistogramVec
	PollsTotal              *prometheus.CounterVec
	PollDuration            *prometheus.HistogramVec
	PollErrorsTotal         *prometheus.CounterVec
	SourceSwitchesTotal     *prometheus.CounterVec
	WatchersActive          prometheus.Gauge

	// Allocation metrics
	JobsEnqueuedTotal     *prometheus.CounterVec
	JobsProcessedTotal    *prometheus.CounterVec
	JobProcessingDuration *prometheus.HistogramVec
	QueueDepth            prometheus.Gauge
	TicketsAllocatedTotal *prometheus.CounterVec

	// Winner selection metrics
	WinnerSelectionsTotal *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		EventsProcessedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_events_processed_total",
				Help: "Total number of normalized events processed by watchers",
			},
			[]string{"kind", "status"},
		),

		EventProcessingDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "raffle_event_processing_duration_seconds",
				Help:    "Time spent processing individual events",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		PollsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_polls_total",
				Help: "Total number of source polls per watcher",
			},
			[]string{"kind", "source", "status"},
		),

		PollDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "raffle_poll_duration_seconds",
				Help:    "Duration of a single source poll",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "source"},
		),

		PollErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_poll_errors_total",
				Help: "Total number of failed source polls",
			},
			[]string{"kind", "source"},
		),

		SourceSwitchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_source_switches_total",
				Help: "Total number of event source failovers and recoveries",
			},
			[]string{"from", "to"},
		),

		WatchersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "raffle_watchers_active",
				Help: "Number of currently running event watchers",
			},
		),

		JobsEnqueuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_jobs_enqueued_total",
				Help: "Total number of allocation jobs enqueued",
			},
			[]string{"job"},
		),

		JobsProcessedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_jobs_processed_total",
				Help: "Total number of allocation jobs processed by workers",
			},
			[]string{"job", "status"},
		),

		JobProcessingDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "raffle_job_processing_duration_seconds",
				Help:    "Time spent applying individual allocation jobs",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),

		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "raffle_queue_depth",
				Help: "Number of allocation jobs waiting in the queue",
			},
		),

		TicketsAllocatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_tickets_allocated_total",
				Help: "Total ticket deltas applied, by event kind",
			},
			[]string{"kind"},
		),

		WinnerSelectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_winner_selections_total",
				Help: "Total number of winner selections performed",
			},
			[]string{"method", "status"},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "raffle_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		NotificationsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_notifications_sent_total",
				Help: "Total number of operational notifications sent",
			},
			[]string{"channel", "type"},
		),

		NotificationFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_notification_failures_total",
				Help: "Total number of failed notification deliveries",
			},
			[]string{"channel", "type"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_http_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "raffle_http_request_duration_seconds",
				Help:    "Duration of HTTP API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "raffle_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "raffle_component_health",
				Help: "Component health status (1 healthy, 0 unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "raffle_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "raffle_goroutine_count",
				Help: "Current number of goroutines",
			},
		),
	}
}

// RecordEventProcessed increments the event processing counter
func (m *PrometheusMetrics) RecordEventProcessed(kind, status string) {
	m.EventsProcessedTotal.WithLabelValues(kind, status).Inc()
}

// RecordEventProcessingDuration records how long one event took to process
func (m *PrometheusMetrics) RecordEventProcessingDuration(kind string, duration time.Duration) {
	m.EventProcessingDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordPoll records a completed source poll
func (m *PrometheusMetrics) RecordPoll(kind, source, status string, duration time.Duration) {
	m.PollsTotal.WithLabelValues(kind, source, status).Inc()
	m.PollDuration.WithLabelValues(kind, source).Observe(duration.Seconds())
	if status != "success" {
		m.PollErrorsTotal.WithLabelValues(kind, source).Inc()
	}
}

// RecordSourceSwitch records a failover or recovery between event sources
func (m *PrometheusMetrics) RecordSourceSwitch(from, to string) {
	m.SourceSwitchesTotal.WithLabelValues(from, to).Inc()
}

// UpdateWatchersActive sets the running-watcher gauge
func (m *PrometheusMetrics) UpdateWatchersActive(count int) {
	m.WatchersActive.Set(float64(count))
}

// RecordJobEnqueued increments the enqueue counter
func (m *PrometheusMetrics) RecordJobEnqueued(job string) {
	m.JobsEnqueuedTotal.WithLabelValues(job).Inc()
}

// RecordJobProcessed records a worker-applied job
func (m *PrometheusMetrics) RecordJobProcessed(job, status string, duration time.Duration) {
	m.JobsProcessedTotal.WithLabelValues(job, status).Inc()
	m.JobProcessingDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// UpdateQueueDepth sets the queue depth gauge
func (m *PrometheusMetrics) UpdateQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// RecordTicketsAllocated adds an applied ticket delta's magnitude
func (m *PrometheusMetrics) RecordTicketsAllocated(kind string, tickets int64) {
	if tickets < 0 {
		tickets = -tickets
	}
	m.TicketsAllocatedTotal.WithLabelValues(kind).Add(float64(tickets))
}

// RecordWinnerSelection records a winner selection attempt
func (m *PrometheusMetrics) RecordWinnerSelection(method, status string) {
	m.WinnerSelectionsTotal.WithLabelValues(method, status).Inc()
}

// RecordDatabaseOperation records the outcome and duration of a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordNotificationSent increments the notification counter
func (m *PrometheusMetrics) RecordNotificationSent(channel, notificationType string) {
	m.NotificationsSentTotal.WithLabelValues(channel, notificationType).Inc()
}

// RecordNotificationFailure increments the notification failure counter
func (m *PrometheusMetrics) RecordNotificationFailure(channel, notificationType string) {
	m.NotificationFailuresTotal.WithLabelValues(channel, notificationType).Inc()
}

// RecordHTTPRequest records an HTTP API request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the uptime gauge
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates a component's health gauge
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage gauge
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count gauge
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
