package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	assistantQuestionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hrapp_assistant_questions_total",
			Help: "Total number of natural-language questions received.",
		},
	)
	assistantVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hrapp_assistant_verdicts_total",
			Help: "Validation verdicts for generated SQL, by kind.",
		},
		[]string{"verdict"},
	)
	assistantGenerationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hrapp_assistant_generation_seconds",
			Help:    "Latency of SQL generation calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)
	assistantExecutionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hrapp_assistant_execution_seconds",
			Help:    "Latency of validated query executions.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
	assistantBackpressureTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hrapp_assistant_backpressure_total",
			Help: "Questions refused because the execution pool was saturated.",
		},
	)
	auditWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hrapp_audit_write_failures_total",
			Help: "Audit records that could not be persisted after retry.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		assistantQuestionsTotal,
		assistantVerdictsTotal,
		assistantGenerationSeconds,
		assistantExecutionSeconds,
		assistantBackpressureTotal,
		auditWriteFailuresTotal,
	)
}

func ObserveQuestion() {
	assistantQuestionsTotal.Inc()
}

func ObserveVerdict(kind string) {
	assistantVerdictsTotal.WithLabelValues(kind).Inc()
}

func ObserveGeneration(elapsed time.Duration) {
	assistantGenerationSeconds.Observe(elapsed.Seconds())
}

func ObserveExecution(elapsed time.Duration) {
	assistantExecutionSeconds.Observe(elapsed.Seconds())
}

func IncrementBackpressure() {
	assistantBackpressureTotal.Inc()
}

func IncrementAuditWriteFailure() {
	auditWriteFailuresTotal.Inc()
}
