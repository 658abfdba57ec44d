// Package metrics provides Prometheus metrics for the festrank service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeImproved  = "improved"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
)

// Verification outcomes.
const (
	VerifyMatch    = "match"
	VerifyMismatch = "mismatch"
	VerifyError    = "error"
	VerifySkipped  = "skipped"
)

// Manager owns every festrank collector.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Scoring
	submissions       *prometheus.CounterVec
	normalizeLatency  prometheus.Histogram
	rankRecomputes    prometheus.Counter
	recomputeLatency  prometheus.Histogram
	leaderboardSize   *prometheus.GaugeVec
	labelSyncs        *prometheus.CounterVec
	catalogSongsAdded prometheus.Counter

	// Verification and review
	verifications  *prometheus.CounterVec
	reviewsOpened  prometheus.Counter
	reviewsDecided *prometheus.CounterVec

	// Queue and workers
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram
	workerCount            prometheus.Gauge
	workerActive           prometheus.Gauge
	workerErrors           prometheus.Counter
	workerLatency          prometheus.Histogram

	// Storage
	repositoryUpdateLatency *prometheus.HistogramVec
	repositoryQueryLatency  *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         prometheus.Counter

	errorsByComponent *prometheus.CounterVec

	// Process
	systemMemory     prometheus.Gauge
	systemGoroutines prometheus.Gauge
	systemGCPause    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "festrank",
		subsystem:        "leaderboard",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.submissions = auto.NewCounterVec(m.counterOpts("submissions_total", "Submissions by outcome"), []string{"instrument", "outcome"})
	m.normalizeLatency = auto.NewHistogram(m.histogramOpts("normalize_latency_milliseconds", "Time spent normalizing a submission"))
	m.rankRecomputes = auto.NewCounter(m.counterOpts("rank_recomputes_total", "Aggregate, tier and named-rank recomputations"))
	m.recomputeLatency = auto.NewHistogram(m.histogramOpts("rank_recompute_latency_milliseconds", "Time spent on the serialized write path"))
	m.leaderboardSize = auto.NewGaugeVec(m.gaugeOpts("entries", "Ranked players per instrument"), []string{"instrument"})
	m.labelSyncs = auto.NewCounterVec(m.counterOpts("label_syncs_total", "Labels derived by the label observer"), []string{"kind"})
	m.catalogSongsAdded = auto.NewCounter(m.counterOpts("catalog_songs_added_total", "Songs added to the catalog"))

	m.verifications = auto.NewCounterVec(m.counterOpts("verifications_total", "Evidence verifications by outcome"), []string{"outcome"})
	m.reviewsOpened = auto.NewCounter(m.counterOpts("reviews_opened_total", "Manual reviews opened"))
	m.reviewsDecided = auto.NewCounterVec(m.counterOpts("reviews_decided_total", "Manual reviews decided"), []string{"decision"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Verification jobs waiting"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Verification queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Verification queue fill ratio"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Verification jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Verification jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Verification jobs rejected by the queue"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_wait_milliseconds", "Time a job spent queued"))
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Verification workers started"))
	m.workerActive = auto.NewGauge(m.gaugeOpts("worker_active", "Verification workers busy"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Verification worker failures"))
	m.workerLatency = auto.NewHistogram(m.histogramOpts("worker_latency_milliseconds", "Verification job duration"))

	m.repositoryUpdateLatency = auto.NewHistogramVec(m.histogramOpts("repository_update_latency_milliseconds", "Store write latency"), []string{"store"})
	m.repositoryQueryLatency = auto.NewHistogramVec(m.histogramOpts("repository_query_latency_milliseconds", "Store read latency"), []string{"store"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by route"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration"), []string{"endpoint", "method", "status_code"})
	m.rateLimited = auto.NewCounter(m.counterOpts("http_rate_limited_total", "Requests rejected by the rate limiter"))

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component and type"), []string{"component", "error_type"})

	m.systemMemory = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Heap bytes allocated"))
	m.systemGoroutines = auto.NewGauge(m.gaugeOpts("system_goroutines", "Live goroutines"))
	m.systemGCPause = auto.NewHistogram(m.histogramOpts("system_gc_pause_milliseconds", "Average GC pause"))
}

// RecordSubmission counts a submission outcome for instrument.
func RecordSubmission(instrument, outcome string) error {
	switch outcome {
	case OutcomeAccepted, OutcomeImproved, OutcomeRejected, OutcomeDuplicate:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOutcome, outcome)
	}
	globalManager.submissions.WithLabelValues(instrument, outcome).Inc()
	return nil
}

// RecordNormalizeLatency records normalizer latency in milliseconds.
func RecordNormalizeLatency(ms float64) { globalManager.normalizeLatency.Observe(ms) }

// RecordRankRecompute counts one recompute and its latency.
func RecordRankRecompute(ms float64) {
	globalManager.rankRecomputes.Inc()
	globalManager.recomputeLatency.Observe(ms)
}

// UpdateLeaderboardSize sets the number of ranked players on instrument.
func UpdateLeaderboardSize(instrument string, n int) {
	globalManager.leaderboardSize.WithLabelValues(instrument).Set(float64(n))
}

// RecordLabelSync counts a derived label ("instrument" or "overall").
func RecordLabelSync(kind string) { globalManager.labelSyncs.WithLabelValues(kind).Inc() }

// RecordSongAdded counts a new catalog song.
func RecordSongAdded() { globalManager.catalogSongsAdded.Inc() }

// RecordVerification counts an evidence verification outcome.
func RecordVerification(outcome string) error {
	switch outcome {
	case VerifyMatch, VerifyMismatch, VerifyError, VerifySkipped:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOutcome, outcome)
	}
	globalManager.verifications.WithLabelValues(outcome).Inc()
	return nil
}

// RecordReviewOpened counts a new manual review.
func RecordReviewOpened() { globalManager.reviewsOpened.Inc() }

// RecordReviewDecided counts a review decision.
func RecordReviewDecided(decision string) {
	globalManager.reviewsDecided.WithLabelValues(decision).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue fill ratio.
func UpdateQueueUtilization(ratio float64) { globalManager.queueUtilization.Set(ratio) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueProcessingLatency records how long a job waited.
func RecordQueueProcessingLatency(ms float64) { globalManager.queueProcessingLatency.Observe(ms) }

// UpdateWorkerCount sets the number of started workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActive.Set(float64(count)) }

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordWorkerProcessingLatency records a job's duration.
func RecordWorkerProcessingLatency(ms float64) { globalManager.workerLatency.Observe(ms) }

// RecordRepositoryUpdateLatency records write latency for store.
func RecordRepositoryUpdateLatency(store string, ms float64) {
	globalManager.repositoryUpdateLatency.WithLabelValues(store).Observe(ms)
}

// RecordRepositoryQueryLatency records read latency for store.
func RecordRepositoryQueryLatency(store string, ms float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(store).Observe(ms)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited() { globalManager.rateLimited.Inc() }

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemory.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(n int) { globalManager.systemGoroutines.Set(float64(n)) }

// RecordSystemGCPauseTime observes an average GC pause.
func RecordSystemGCPauseTime(ms float64) { globalManager.systemGCPause.Observe(ms) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
