// Package metrics exposes Prometheus counters/gauges for the scheduler,
// grounded on the teacher's internal/metrics/metrics.go (promauto vectors,
// a promhttp.Handler, and small Record* wrapper functions).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpu_scheduler_jobs_submitted_total",
			Help: "Total number of jobs submitted",
		},
		[]string{},
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpu_scheduler_jobs_finished_total",
			Help: "Total number of jobs that finished, by terminal status",
		},
		[]string{"status"},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gpu_scheduler_job_duration_seconds",
			Help:    "Wall-clock duration of completed or failed jobs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 15),
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpu_scheduler_queue_depth",
			Help: "Current number of queued jobs",
		},
	)

	GPUsAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpu_scheduler_gpus_available",
			Help: "Current number of GPUs considered available for placement",
		},
	)

	GPUUtilization = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gpu_scheduler_gpu_utilization_pct",
			Help: "Last-polled utilization percentage per GPU",
		},
		[]string{"gpu_id"},
	)

	PollFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gpu_scheduler_poll_failures_total",
			Help: "Total number of failed gpu-query probe invocations",
		},
	)

	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpu_scheduler_api_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "path", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpu_scheduler_api_request_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	SelfCPUUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpu_scheduler_self_cpu_usage_percent",
			Help: "Daemon's own CPU usage percentage",
		},
	)

	SelfMemoryUsageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpu_scheduler_self_memory_usage_bytes",
			Help: "Daemon's own resident memory usage in bytes",
		},
	)
)

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordJobSubmitted increments the submission counter.
func RecordJobSubmitted() {
	JobsSubmitted.WithLabelValues().Inc()
}

// RecordJobFinished increments the per-status finish counter and observes
// the job's wall-clock duration.
func RecordJobFinished(status string, durationSeconds float64) {
	JobsFinished.WithLabelValues(status).Inc()
	JobDuration.Observe(durationSeconds)
}

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, path, statusCode string, durationSeconds float64) {
	APIRequests.WithLabelValues(method, path, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}
