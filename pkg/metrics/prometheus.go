// Package metrics provides Prometheus metrics for the drillbook service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Reconciliation metrics
	eventsApplied         prometheus.Counter
	eventsDuplicate       prometheus.Counter
	eventsUnresolved      prometheus.Counter
	eventsNonIdentifiable prometheus.Counter
	rollbacksApplied      prometheus.Counter
	rollbacksOrphaned     prometheus.Counter

	// Catalog sync metrics
	refreshes       prometheus.Counter
	refreshErrors   prometheus.Counter
	tasksCreated    prometheus.Counter
	taskCreateFails prometheus.Counter

	// State gauges
	overlaySize      prometheus.Gauge
	pendingRollbacks prometheus.Gauge
	identitySize     prometheus.Gauge
	exercisesTotal   prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "drillbook",
		subsystem:        "library",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all Prometheus collectors on the configured registry.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.eventsApplied = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feedback_events_applied_total",
		Help:      "Total number of feedback events applied to exercise counters",
	})

	m.eventsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feedback_events_duplicate_total",
		Help:      "Total number of duplicate feedback event deliveries skipped",
	})

	m.eventsUnresolved = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feedback_events_unresolved_total",
		Help:      "Total number of feedback events whose template could not be linked to an exercise",
	})

	m.eventsNonIdentifiable = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feedback_events_non_identifiable_total",
		Help:      "Total number of feedback events missing the references needed to build an execution identity",
	})

	m.rollbacksApplied = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rollbacks_applied_total",
		Help:      "Total number of counter rollbacks applied after failed saves",
	})

	m.rollbacksOrphaned = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rollbacks_orphaned_total",
		Help:      "Total number of save-failed notifications with no matching pending rollback",
	})

	m.refreshes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "catalog_refreshes_total",
		Help:      "Total number of full catalog refetches",
	})

	m.refreshErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "catalog_refresh_errors_total",
		Help:      "Total number of failed catalog refetches",
	})

	m.tasksCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tasks_created_total",
		Help:      "Total number of tasks created from exercises",
	})

	m.taskCreateFails = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "task_create_failures_total",
		Help:      "Total number of failed task creations",
	})

	m.overlaySize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "counter_overrides",
		Help:      "Current number of exercises with a local counter override",
	})

	m.pendingRollbacks = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pending_rollbacks",
		Help:      "Current number of optimistic saves awaiting confirmation",
	})

	m.identitySize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "execution_identities",
		Help:      "Current number of execution identities tracked for dedup",
	})

	m.exercisesTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "exercises_total",
		Help:      "Number of exercises in the last fetched catalog page",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "Histogram of HTTP request durations in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})
}

// RecordEventApplied increments the applied feedback events counter.
func RecordEventApplied() {
	globalManager.eventsApplied.Inc()
}

// RecordEventDuplicate increments the duplicate deliveries counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordEventUnresolved increments the unresolved-linkage counter.
func RecordEventUnresolved() {
	globalManager.eventsUnresolved.Inc()
}

// RecordEventNonIdentifiable increments the non-identifiable events counter.
func RecordEventNonIdentifiable() {
	globalManager.eventsNonIdentifiable.Inc()
}

// RecordRollbackApplied increments the applied rollbacks counter.
func RecordRollbackApplied() {
	globalManager.rollbacksApplied.Inc()
}

// RecordRollbackOrphaned increments the orphaned rollbacks counter.
func RecordRollbackOrphaned() {
	globalManager.rollbacksOrphaned.Inc()
}

// RecordRefresh increments the catalog refresh counter.
func RecordRefresh() {
	globalManager.refreshes.Inc()
}

// RecordRefreshError increments the failed refresh counter.
func RecordRefreshError() {
	globalManager.refreshErrors.Inc()
}

// RecordTaskCreated increments the created tasks counter.
func RecordTaskCreated() {
	globalManager.tasksCreated.Inc()
}

// RecordTaskCreateFailure increments the failed task creation counter.
func RecordTaskCreateFailure() {
	globalManager.taskCreateFails.Inc()
}

// UpdateOverlaySize sets the current number of counter overrides.
func UpdateOverlaySize(size int) {
	globalManager.overlaySize.Set(float64(size))
}

// UpdatePendingRollbacks sets the current number of pending rollbacks.
func UpdatePendingRollbacks(count int) {
	globalManager.pendingRollbacks.Set(float64(count))
}

// UpdateIdentitySize sets the current number of tracked execution identities.
func UpdateIdentitySize(size int64) {
	globalManager.identitySize.Set(float64(size))
}

// UpdateExercisesTotal sets the size of the last fetched exercise list.
func UpdateExercisesTotal(count int) {
	globalManager.exercisesTotal.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, status string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(durationMs)
}

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
