// Package metrics provides the Prometheus collectors named across the spec:
// rate-limit wait/429/estimation-accuracy (§4.11), phase/task throughput
// (§4.8) and metadata-store query health (§4.4).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the coordinator process registers.
type Metrics struct {
	// Rate limiter (spec §4.11: "wait-seconds histograms, 429 counts
	// (should be ≈0), estimation-accuracy ratio").
	RateLimitWaitSeconds       *prometheus.HistogramVec
	RateLimitUpstream429Total  *prometheus.CounterVec
	RateLimitEstimationAccuracy *prometheus.HistogramVec
	RateLimitAcquireTimeouts   *prometheus.CounterVec

	// Scheduler / tasks (spec §4.8).
	TasksTotal        *prometheus.CounterVec
	TaskDuration       *prometheus.HistogramVec
	PhaseOutcomesTotal *prometheus.CounterVec

	// Runs.
	RunsTotal   *prometheus.CounterVec
	RunsActive  prometheus.Gauge

	// Metadata store.
	DatabaseQueriesTotal  *prometheus.CounterVec
	DatabaseQueryDuration *prometheus.HistogramVec

	// HTTP API.
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers every collector against the default Prometheus registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers every collector against registerer, or leaves
// them unregistered if registerer is nil (test use).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RateLimitWaitSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratelimit_wait_seconds",
				Help:    "Time a caller spent blocked acquiring a rate-limit permit",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10, 30},
			},
			[]string{"provider", "model"},
		),
		RateLimitUpstream429Total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_upstream_429_total",
				Help: "Upstream 429 responses observed despite local rate limiting",
			},
			[]string{"provider", "model"},
		),
		RateLimitEstimationAccuracy: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratelimit_estimation_accuracy_ratio",
				Help:    "estimated_tokens / actual_tokens for each completed call",
				Buckets: []float64{.5, .7, .85, .95, 1, 1.05, 1.15, 1.3, 1.5, 2},
			},
			[]string{"provider", "model"},
		),
		RateLimitAcquireTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_acquire_timeouts_total",
				Help: "Permit acquisitions that exceeded the configured wait timeout",
			},
			[]string{"provider", "model"},
		),

		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasks_total",
				Help: "Tasks dispatched by the scheduler",
			},
			[]string{"phase", "kind", "status"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "task_duration_seconds",
				Help:    "Task execution time from running to terminal",
				Buckets: []float64{.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"phase", "kind"},
		),
		PhaseOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phase_outcomes_total",
				Help: "Phase completions by outcome",
			},
			[]string{"phase", "outcome"},
		),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runs_total",
				Help: "Runs by terminal status",
			},
			[]string{"status"},
		),
		RunsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "runs_active",
				Help: "Runs currently in the running state",
			},
		),

		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_queries_total",
				Help: "Metadata store queries",
			},
			[]string{"operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_seconds",
				Help:    "Metadata store query duration",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP API request duration",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RateLimitWaitSeconds,
			m.RateLimitUpstream429Total,
			m.RateLimitEstimationAccuracy,
			m.RateLimitAcquireTimeouts,
			m.TasksTotal,
			m.TaskDuration,
			m.PhaseOutcomesTotal,
			m.RunsTotal,
			m.RunsActive,
			m.DatabaseQueriesTotal,
			m.DatabaseQueryDuration,
			m.RequestsTotal,
			m.RequestDuration,
		)
	}

	return m
}
