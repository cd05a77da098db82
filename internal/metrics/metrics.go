// Package metrics provides Prometheus metrics for the file manager.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filemanager_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filemanager_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	rateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filemanager_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	// File manager operations
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filemanager_operations_total",
			Help: "Total file manager operations by outcome",
		},
		[]string{"operation", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filemanager_operation_duration_seconds",
			Help:    "File manager operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Content transfer metrics
	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filemanager_bytes_uploaded_total",
			Help: "Total bytes accepted by uploads",
		},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filemanager_bytes_downloaded_total",
			Help: "Total bytes streamed by downloads",
		},
	)

	// Subtree operations
	subtreeFilesCopied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filemanager_subtree_files_copied_total",
			Help: "Files copied by directory subtree operations",
		},
		[]string{"status"},
	)

	// Storage backend metrics
	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filemanager_storage_operation_duration_seconds",
			Help:    "Storage backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"disk_type", "operation"},
	)

	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filemanager_storage_operations_total",
			Help: "Total storage backend operations",
		},
		[]string{"disk_type", "operation", "status"},
	)

	// Events
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filemanager_events_total",
			Help: "Total domain events published",
		},
		[]string{"type"},
	)

	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filemanager_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// Jobs
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filemanager_jobs_total",
			Help: "Background jobs by lifecycle state",
		},
		[]string{"job", "state"},
	)

	jobQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "filemanager_job_queue_depth",
			Help: "Jobs waiting in each queue",
		},
		[]string{"queue"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation records a file manager operation and its outcome
// ("success" or an error kind such as "not_found").
func RecordOperation(operation, result string, duration time.Duration) {
	operationsTotal.WithLabelValues(operation, result).Inc()
	operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordUpload records accepted upload bytes.
func RecordUpload(bytes int64) {
	bytesUploaded.Add(float64(bytes))
}

// RecordDownload records streamed download bytes.
func RecordDownload(bytes int64) {
	bytesDownloaded.Add(float64(bytes))
}

// RecordSubtreeCopy records the file outcome of a subtree copy.
func RecordSubtreeCopy(copied, failed int) {
	subtreeFilesCopied.WithLabelValues("success").Add(float64(copied))
	subtreeFilesCopied.WithLabelValues("error").Add(float64(failed))
}

// RecordStorageOperation records a storage backend call.
func RecordStorageOperation(diskType, operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(diskType, operation).Observe(duration.Seconds())
	storageOperationsTotal.WithLabelValues(diskType, operation, status(success)).Inc()
}

// RecordEvent records a published domain event.
func RecordEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordJob records a job lifecycle transition (queued, dropped, done, failed).
func RecordJob(job, state string) {
	jobsTotal.WithLabelValues(job, state).Inc()
}

// RecordRateLimitHit records a request rejected with 429.
func RecordRateLimitHit() {
	rateLimitHits.Inc()
}

// SetJobQueueDepth sets the number of jobs waiting in a queue.
func SetJobQueueDepth(queue string, depth int) {
	jobQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
// Routes are labelled by their mux pattern to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
