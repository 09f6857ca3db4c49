package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeAnswered = "answered"
	OutcomeFailed   = "failed"

	PurposeSQL    = "sql"
	PurposeAnswer = "answer"
)

var (
	pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receiptqa_pipeline_requests_total",
			Help: "Total number of questions processed by outcome.",
		},
		[]string{"outcome"},
	)
	pipelineStageSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "receiptqa_pipeline_stage_duration_seconds",
			Help:    "Latency of each pipeline stage.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	queryExecutionErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "receiptqa_query_execution_errors_total",
			Help: "Total number of generated statements that failed to execute.",
		},
	)
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receiptqa_llm_calls_total",
			Help: "Total number of language model calls by purpose and status.",
		},
		[]string{"purpose", "status"},
	)
	ingestRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receiptqa_ingest_rows_total",
			Help: "Total number of extract rows loaded per table.",
		},
		[]string{"table"},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRequestsTotal,
		pipelineStageSeconds,
		queryExecutionErrorsTotal,
		llmCallsTotal,
		ingestRowsTotal,
	)
}

func ObservePipelineRequest(outcome string) {
	pipelineRequestsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	pipelineStageSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementExecutionErrors() {
	queryExecutionErrorsTotal.Inc()
}

func ObserveLLMCall(purpose string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmCallsTotal.WithLabelValues(purpose, status).Inc()
}

func ObserveIngestRows(table string, rows int64) {
	if rows <= 0 {
		return
	}
	ingestRowsTotal.WithLabelValues(table).Add(float64(rows))
}
