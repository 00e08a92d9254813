package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(backendJobsTotal, httpRequestsTotal, httpRequestSeconds) }

var (
	backendJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintel_backend_jobs_total",
			Help: "Jobs settled by the stub backend simulator.",
		},
		[]string{"job_type", "outcome"}, // completed, failed, low_balance
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintel_backend_http_requests_total",
			Help: "HTTP requests served by the stub backend.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docintel_backend_http_request_seconds",
			Help:    "Stub backend request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func IncBackendJob(jobType, outcome string) {
	backendJobsTotal.WithLabelValues(norm(jobType), norm(outcome)).Inc()
}

// ObserveHTTPRequest records one request. route is the matched route
// pattern, never the raw path.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
