package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	workflowOperations *prometheus.CounterVec
	generationDuration prometheus.Observer
	warningEmails      *prometheus.CounterVec
	warningExports     *prometheus.CounterVec
	sendQueueDepth     prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	workflowCount        uint64
	emailSentCount       uint64
	emailFailedCount     uint64
	exportCount          uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	workflowOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warning_workflow_operations_total",
		Help: "Workflow lifecycle operations by outcome",
	}, []string{"operation", "outcome"})

	generationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "warning_generation_duration_seconds",
		Help:    "Duration of warning list generation runs",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	warningEmails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warning_emails_total",
		Help: "Warning emails by delivery outcome",
	}, []string{"outcome"})

	warningExports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warning_exports_total",
		Help: "Warning list exports by format",
	}, []string{"format"})

	sendQueueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "send_queue_depth",
		Help: "Jobs waiting in the send queue",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, workflowOperations, generationDuration, warningEmails, warningExports, sendQueueDepth, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		workflowOperations: workflowOperations,
		generationDuration: generationDuration,
		warningEmails:      warningEmails,
		warningExports:     warningExports,
		sendQueueDepth:     sendQueueDepth,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordWorkflowOperation counts a lifecycle operation and its outcome.
func (m *MetricsService) RecordWorkflowOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.workflowOperations.WithLabelValues(operation, outcome).Inc()
	if operation == "create" && err == nil {
		atomic.AddUint64(&m.workflowCount, 1)
	}
}

// ObserveGeneration records how long a generation run took.
func (m *MetricsService) ObserveGeneration(duration time.Duration) {
	if m == nil || m.generationDuration == nil {
		return
	}
	m.generationDuration.Observe(duration.Seconds())
}

// RecordEmailOutcome counts one warning email attempt.
func (m *MetricsService) RecordEmailOutcome(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.warningEmails.WithLabelValues("sent").Inc()
		atomic.AddUint64(&m.emailSentCount, 1)
	} else {
		m.warningEmails.WithLabelValues("failed").Inc()
		atomic.AddUint64(&m.emailFailedCount, 1)
	}
}

// RecordExport counts one export by format.
func (m *MetricsService) RecordExport(format string) {
	if m == nil {
		return
	}
	m.warningExports.WithLabelValues(format).Inc()
	atomic.AddUint64(&m.exportCount, 1)
}

// SetSendQueueDepth publishes the current number of queued send jobs.
func (m *MetricsService) SetSendQueueDepth(depth int) {
	if m == nil || m.sendQueueDepth == nil {
		return
	}
	m.sendQueueDepth.Set(float64(depth))
}

// Snapshot returns aggregated metrics suitable for the admin dashboard.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		WorkflowsCreated:         atomic.LoadUint64(&m.workflowCount),
		EmailsSent:               atomic.LoadUint64(&m.emailSentCount),
		EmailsFailed:             atomic.LoadUint64(&m.emailFailedCount),
		ExportsGenerated:         atomic.LoadUint64(&m.exportCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
