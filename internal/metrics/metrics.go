package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aloonj/reefnotify/internal/dispatch"
	"github.com/aloonj/reefnotify/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	JobsCompleted   *prometheus.CounterVec
	JobsRescheduled *prometheus.CounterVec
	JobsFailed      *prometheus.CounterVec
	SendLatency     *prometheus.HistogramVec
	JobsEnqueued    *prometheus.CounterVec
	JobsMerged      *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_completed_total",
			Help: "Total number of successfully delivered notification jobs.",
		}, []string{"type"}),

		JobsRescheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_rescheduled_total",
			Help: "Total number of send attempts that were rescheduled with backoff.",
		}, []string{"type"}),

		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_failed_total",
			Help: "Total number of permanently failed jobs (retries exhausted or rejected).",
		}, []string{"type"}),

		SendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_send_seconds",
			Help:    "Latency of a single send attempt from claim to delivery ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),

		JobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_enqueued_total",
			Help: "Total number of enqueue requests that created a new job.",
		}, []string{"type"}),

		JobsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_jobs_merged_total",
			Help: "Total number of enqueue requests merged into an open batch.",
		}, []string{"type"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "notification_jobs_queue_depth",
			Help: "Current number of jobs by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.JobsCompleted,
		m.JobsRescheduled,
		m.JobsFailed,
		m.SendLatency,
		m.JobsEnqueued,
		m.JobsMerged,
		m.QueueDepth,
	)

	return m
}

// DispatchHooks returns the metric callbacks expected by dispatch.MetricHooks.
// Centralises the prometheus observation calls so the worker stays
// import-free.
func (m *Metrics) DispatchHooks() dispatch.MetricHooks {
	return dispatch.MetricHooks{
		OnCompleted: func(t domain.JobType, latency time.Duration) {
			m.JobsCompleted.WithLabelValues(string(t)).Inc()
			m.SendLatency.WithLabelValues(string(t)).Observe(latency.Seconds())
		},
		OnRescheduled: func(t domain.JobType) {
			m.JobsRescheduled.WithLabelValues(string(t)).Inc()
		},
		OnFailed: func(t domain.JobType) {
			m.JobsFailed.WithLabelValues(string(t)).Inc()
		},
	}
}

// SetQueueDepth updates the per-status depth gauges from an aggregate
// snapshot. Called periodically by a poller in main.
func (m *Metrics) SetQueueDepth(st *domain.QueueStatus) {
	m.QueueDepth.WithLabelValues(string(domain.StatusPending)).Set(float64(st.Pending))
	m.QueueDepth.WithLabelValues(string(domain.StatusProcessing)).Set(float64(st.Processing))
	m.QueueDepth.WithLabelValues(string(domain.StatusFailed)).Set(float64(st.Failed))
}

// ObserveEnqueue records the result of one enqueue request.
func (m *Metrics) ObserveEnqueue(t domain.JobType, merged bool) {
	if merged {
		m.JobsMerged.WithLabelValues(string(t)).Inc()
		return
	}
	m.JobsEnqueued.WithLabelValues(string(t)).Inc()
}
