package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics, registered with the default Prometheus registry and served on /metrics.
var (
	RunsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustscore_runs_completed_total",
		Help: "Runs transitioned to completed, by assessment type.",
	}, []string{"assessment_type"})

	RunCompletionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trustscore_run_completion_conflicts_total",
		Help: "Completion attempts rejected because the run was already completed.",
	})

	DriftEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustscore_drift_events_total",
		Help: "Drift events recorded, split by materiality.",
	}, []string{"material"})

	HealthRecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trustscore_health_recompute_duration_seconds",
		Help:    "Time spent recomputing one organisation's health snapshot.",
		Buckets: prometheus.DefBuckets,
	})

	HealthRecomputeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trustscore_health_recompute_errors_total",
		Help: "Failed health recomputations.",
	})

	SweepEscalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustscore_sweep_escalations_total",
		Help: "Escalations raised by sweeps, by source.",
	}, []string{"source"})

	AssessmentsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trustscore_assessments_expired_total",
		Help: "Assessments marked expired by the expiry sweep.",
	})
)
