// Package metrics provides Prometheus metrics for the FanPulse analytics engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the FanPulse service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Ingestion Metrics
	pingsIngested    prometheus.Counter
	pingsRejected    *prometheus.CounterVec
	pingsDuplicate   prometheus.Counter
	checkinsRecorded prometheus.Counter
	usageRecorded    prometheus.Counter
	recordsAppended  *prometheus.CounterVec
	recordsDropped   prometheus.Counter

	// Live Cache Metrics
	cacheLookups     *prometheus.CounterVec
	cacheSwept       prometheus.Counter
	cacheOpLatency   *prometheus.HistogramVec
	liveEntities     prometheus.Gauge
	liveVenues       prometheus.Gauge
	cacheShardCount  prometheus.Gauge
	cacheKeysByShard *prometheus.GaugeVec

	// Analytics Metrics
	analyticsLatency      *prometheus.HistogramVec
	analyticsWorkingSet   *prometheus.HistogramVec
	analyticsErrors       *prometheus.CounterVec
	dashboardVenueSkipped prometheus.Counter

	// Durable Storage Metrics
	storageLatency *prometheus.HistogramVec
	storageErrors  *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics - Message queue performance
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics - Processing performance
	workerCount             prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "fanpulse",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// name applies the configured metric prefix.
func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		})
	}
	counterVec := func(name, help string, lbl ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		}, lbl)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		})
	}
	gaugeVec := func(name, help string, lbl ...string) *prometheus.GaugeVec {
		return auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		}, lbl)
	}
	histogram := func(name, help string, buckets []float64) prometheus.Histogram {
		return auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels, Buckets: buckets,
		})
	}
	histogramVec := func(name, help string, buckets []float64, lbl ...string) *prometheus.HistogramVec {
		return auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels, Buckets: buckets,
		}, lbl)
	}

	// Ingestion
	m.pingsIngested = counter("pings_ingested_total", "Total number of location pings written to the live cache")
	m.pingsRejected = counterVec("pings_rejected_total", "Total number of rejected ingestion calls by reason", "reason")
	m.pingsDuplicate = counter("pings_duplicate_total", "Total number of pings whose durable record was skipped as a duplicate")
	m.checkinsRecorded = counter("checkins_recorded_total", "Total number of event check-ins recorded")
	m.usageRecorded = counter("usage_recorded_total", "Total number of app usage interactions recorded")
	m.recordsAppended = counterVec("records_appended_total", "Total number of analytics records appended to durable storage", "type")
	m.recordsDropped = counter("records_dropped_total", "Total number of analytics records dropped on backpressure")

	// Live cache
	m.cacheLookups = counterVec("cache_lookups_total", "Live cache lookups by result (hit, miss, expired)", "result")
	m.cacheSwept = counter("cache_swept_total", "Total number of expired entries removed by the sweeper")
	m.cacheOpLatency = histogramVec("cache_op_latency_milliseconds", "Live cache operation latency in milliseconds", m.histogramBuckets, "op")
	m.liveEntities = gauge("live_entities", "Number of entities with a live location entry")
	m.liveVenues = gauge("live_venues", "Number of venues with at least one live occupant")
	m.cacheShardCount = gauge("cache_shard_count", "Number of in-memory cache shards")
	m.cacheKeysByShard = gaugeVec("cache_keys_per_shard", "Number of keys held per cache shard", "shard_id")

	// Analytics
	m.analyticsLatency = histogramVec("analytics_latency_milliseconds", "Latency of derived analytics operations", m.histogramBuckets, "operation")
	m.analyticsWorkingSet = histogramVec("analytics_working_set_records", "Number of records scanned per analytics operation",
		[]float64{0, 10, 100, 500, 1000, 2500, 5000, 10000}, "operation")
	m.analyticsErrors = counterVec("analytics_errors_total", "Analytics operation failures by kind", "operation", "kind")
	m.dashboardVenueSkipped = counter("dashboard_venues_skipped_total", "Venues skipped in dashboard snapshots after a failed lookup")

	// Durable storage
	m.storageLatency = histogramVec("storage_latency_milliseconds", "Durable store operation latency in milliseconds", m.histogramBuckets, "op")
	m.storageErrors = counterVec("storage_errors_total", "Durable store errors by operation", "op")
	m.breakerState = gaugeVec("breaker_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)", "name")

	// HTTP
	m.httpRequests = counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		m.histogramBuckets, "endpoint", "method", "status_code")

	// Queue
	m.queueSize = gauge("queue_size", "Current size of the analytics record queue (backlog indicator)")
	m.queueCapacity = gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = counter("queue_enqueue_total", "Total number of records enqueued")
	m.queueDequeueRate = counter("queue_dequeue_total", "Total number of records dequeued")
	m.queueEnqueueErrors = counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = histogram("queue_processing_latency_milliseconds", "Queue processing latency in milliseconds", m.histogramBuckets)

	// Workers
	m.workerCount = gauge("worker_count", "Current number of active writer workers")
	m.workerMessagesPerSecond = gauge("worker_messages_per_second", "Average records persisted per second by workers")
	m.workerProcessingLatency = histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = counter("worker_errors_total", "Total number of worker errors")

	// Errors
	m.errorRateByComponent = counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors",
		m.histogramBuckets, "component", "error_type")

	// System
	m.systemMemoryUsage = gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Ingestion Metrics Functions.

// RecordPingIngested increments the ingested pings counter.
func RecordPingIngested() {
	globalManager.pingsIngested.Inc()
}

// RecordPingRejected increments the rejected ingestion counter for a reason.
func RecordPingRejected(reason string) {
	globalManager.pingsRejected.WithLabelValues(reason).Inc()
}

// RecordPingDuplicate increments the duplicate ping counter.
func RecordPingDuplicate() {
	globalManager.pingsDuplicate.Inc()
}

// RecordCheckin increments the check-in counter.
func RecordCheckin() {
	globalManager.checkinsRecorded.Inc()
}

// RecordUsage increments the usage interaction counter.
func RecordUsage() {
	globalManager.usageRecorded.Inc()
}

// RecordRecordAppended increments the appended records counter for a record type.
func RecordRecordAppended(recordType string) {
	globalManager.recordsAppended.WithLabelValues(recordType).Inc()
}

// RecordRecordDropped increments the dropped records counter.
func RecordRecordDropped() {
	globalManager.recordsDropped.Inc()
}

// Live Cache Metrics Functions.

// RecordCacheLookup counts a cache lookup by result: hit, miss or expired.
func RecordCacheLookup(result string) {
	globalManager.cacheLookups.WithLabelValues(result).Inc()
}

// RecordCacheSwept adds n swept entries.
func RecordCacheSwept(n int) {
	globalManager.cacheSwept.Add(float64(n))
}

// RecordCacheOpLatency records a cache operation latency in milliseconds.
func RecordCacheOpLatency(op string, latencyMs float64) {
	globalManager.cacheOpLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateLiveEntities sets the number of entities with a live location.
func UpdateLiveEntities(count int) {
	globalManager.liveEntities.Set(float64(count))
}

// UpdateLiveVenues sets the number of venues with live occupants.
func UpdateLiveVenues(count int) {
	globalManager.liveVenues.Set(float64(count))
}

// UpdateCacheShardCount sets the number of cache shards.
func UpdateCacheShardCount(count int) {
	globalManager.cacheShardCount.Set(float64(count))
}

// UpdateCacheKeysPerShard sets the key count of one shard.
func UpdateCacheKeysPerShard(shardID string, count int) {
	globalManager.cacheKeysByShard.WithLabelValues(shardID).Set(float64(count))
}

// Analytics Metrics Functions.

// RecordAnalyticsLatency records the latency of a derived analytics operation.
func RecordAnalyticsLatency(operation string, latencyMs float64) {
	globalManager.analyticsLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordAnalyticsWorkingSet records how many records an operation scanned.
func RecordAnalyticsWorkingSet(operation string, n int) {
	globalManager.analyticsWorkingSet.WithLabelValues(operation).Observe(float64(n))
}

// RecordAnalyticsError counts a failed analytics operation.
func RecordAnalyticsError(operation, kind string) {
	globalManager.analyticsErrors.WithLabelValues(operation, kind).Inc()
}

// RecordDashboardVenueSkipped counts a venue left out of a dashboard snapshot.
func RecordDashboardVenueSkipped() {
	globalManager.dashboardVenueSkipped.Inc()
}

// Durable Storage Metrics Functions.

// RecordStorageLatency records a durable store operation latency.
func RecordStorageLatency(op string, latencyMs float64) {
	globalManager.storageLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStorageError counts a durable store failure.
func RecordStorageError(op string) {
	globalManager.storageErrors.WithLabelValues(op).Inc()
}

// UpdateBreakerState sets the numeric state of a named circuit breaker.
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average records persisted per second.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
