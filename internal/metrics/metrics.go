package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the portal's attendance collectors.
type Metrics struct {
	MarksWritten   prometheus.Counter
	MarkRequests   *prometheus.CounterVec
	ReportDuration *prometheus.HistogramVec
	JobsProcessed  *prometheus.CounterVec
	RateLimited    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MarksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "attendance",
			Name:      "marks_written_total",
			Help:      "Attendance rows written by marking submissions.",
		}),
		MarkRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "attendance",
			Name:      "mark_requests_total",
			Help:      "Marking submissions by outcome.",
		}, []string{"outcome"}),
		ReportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "attendance",
			Name:      "report_duration_seconds",
			Help:      "Time spent building attendance reports.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"group_by"}),
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "Background jobs handled by type and outcome.",
		}, []string{"type", "outcome"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
	reg.MustRegister(m.MarksWritten, m.MarkRequests, m.ReportDuration, m.JobsProcessed, m.RateLimited)
	return m
}

// Outcome labels a result for the counters.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
