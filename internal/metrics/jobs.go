package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobOutcomesTotal, jobDurationSeconds, stalePollsTotal, pollFailuresTotal) }

var (
	jobOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintel_job_outcomes_total",
			Help: "Tracked jobs that reached a terminal outcome, by job type and outcome.",
		},
		[]string{"job_type", "outcome"}, // completed, error, not_found, low_balance, timed_out
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docintel_job_duration_seconds",
			Help:    "Time from tracking start to terminal outcome.",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"job_type", "outcome"},
	)

	stalePollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintel_stale_polls_total",
			Help: "Poll responses discarded because the job was cancelled or superseded.",
		},
		[]string{"job_type"},
	)

	pollFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docintel_poll_failures_total",
			Help: "Transient transport failures while polling.",
		},
		[]string{"job_type"},
	)
)

func ObserveJobOutcome(jobType, outcome string, elapsed time.Duration) {
	jobOutcomesTotal.WithLabelValues(norm(jobType), norm(outcome)).Inc()
	jobDurationSeconds.WithLabelValues(norm(jobType), norm(outcome)).Observe(elapsed.Seconds())
}

func IncStalePoll(jobType string) {
	stalePollsTotal.WithLabelValues(norm(jobType)).Inc()
}

func IncPollFailure(jobType string) {
	pollFailuresTotal.WithLabelValues(norm(jobType)).Inc()
}
