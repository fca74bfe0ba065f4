package web

import "github.com/alokproc/geotutor/internal/observability"

// Metrics bundles the HTTP-facing tutoring metrics.
type Metrics struct {
	QuestionsTotal *observability.Counter
	QuestionErrors *observability.Counter
	IngestsTotal   *observability.Counter
	IngestErrors   *observability.Counter
	TokensTotal    *observability.Counter
	AnswerLatency  *observability.Histogram
	ActiveSSEConns *observability.Gauge
}

// NewMetrics registers the tutoring metrics on a registry. Returns nil
// for a nil registry so callers can treat metrics as optional.
func NewMetrics(reg *observability.MetricsRegistry) *Metrics {
	if reg == nil {
		return nil
	}
	return &Metrics{
		QuestionsTotal: reg.NewCounter("geotutor_questions_total",
			"Total questions received", nil),
		QuestionErrors: reg.NewCounter("geotutor_question_errors_total",
			"Total questions that failed", nil),
		IngestsTotal: reg.NewCounter("geotutor_ingests_total",
			"Total document ingest runs", nil),
		IngestErrors: reg.NewCounter("geotutor_ingest_errors_total",
			"Total document ingest failures", nil),
		TokensTotal: reg.NewCounter("geotutor_llm_tokens_total",
			"Total LLM tokens consumed", nil),
		AnswerLatency: reg.NewHistogram("geotutor_answer_duration_seconds",
			"End-to-end answer latency", nil, nil),
		ActiveSSEConns: reg.NewGauge("geotutor_sse_clients",
			"Connected SSE clients", nil),
	}
}
