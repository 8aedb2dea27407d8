// Package metrics exposes the Prometheus collectors for the HTTP API and
// the background job queue. Grounded on the teacher's global-registry,
// InstrumentHandler-middleware shape, narrowed to the gauges and
// histograms this domain actually needs: HTTP request counts/latency,
// queue depth per queue, and job dequeue/processing latency.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loansystem",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loansystem",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loansystem",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "loansystem",
			Subsystem: "jobqueue",
			Name:      "depth",
			Help:      "Number of jobs per queue and status, as of the last poll.",
		},
		[]string{"queue", "status"},
	)

	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loansystem",
			Subsystem: "jobqueue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs completed or failed by a worker.",
		},
		[]string{"queue", "outcome"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loansystem",
			Subsystem: "jobqueue",
			Name:      "job_duration_seconds",
			Help:      "Duration of job processing from dequeue to completion or failure.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"queue", "outcome"},
	)

	dequeueLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loansystem",
			Subsystem: "jobqueue",
			Name:      "dequeue_latency_seconds",
			Help:      "Time a job spent scheduled before a worker claimed it.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"queue"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		queueDepth,
		jobsProcessed,
		jobDuration,
		dequeueLatency,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// SetQueueDepth records the current job count for a queue/status pair. Call
// this periodically from whatever polls jobqueue.Store.GetQueueStats.
func SetQueueDepth(queue, status string, count int) {
	queueDepth.WithLabelValues(queue, status).Set(float64(count))
}

// RecordDequeueLatency records how long a claimed job waited between being
// scheduled and being picked up by a worker.
func RecordDequeueLatency(queue string, waited time.Duration) {
	if waited < 0 {
		waited = 0
	}
	dequeueLatency.WithLabelValues(queue).Observe(waited.Seconds())
}

// RecordJobOutcome records a completed or failed job's processing duration.
// outcome should be "completed" or "failed".
func RecordJobOutcome(queue, outcome string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	jobsProcessed.WithLabelValues(queue, outcome).Inc()
	jobDuration.WithLabelValues(queue, outcome).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path parameters so high-cardinality IDs don't
// blow up the requests_total/request_duration_seconds label space.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "api" || len(parts) < 3 {
		return "/" + parts[0]
	}
	// api/v1/loans/<id>/... -> /api/v1/loans/:id/...
	resource := "/" + strings.Join(parts[:3], "/")
	if len(parts) >= 4 {
		resource += "/:id"
	}
	if len(parts) >= 5 {
		resource += "/" + strings.Join(parts[4:], "/")
	}
	return resource
}
