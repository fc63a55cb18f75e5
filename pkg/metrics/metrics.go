// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMCallDuration tracks LLM completion duration.
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider", "purpose", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"provider", "direction"},
	)

	// TurnsTotal tracks conversational turns by classified action.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_turns_total",
			Help: "Total conversational turns by classified action",
		},
		[]string{"action"},
	)

	// ClassifierShortCircuits tracks turns decided by a deterministic rule.
	ClassifierShortCircuits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_short_circuits_total",
			Help: "Classifications decided without the language model",
		},
		[]string{"rule"},
	)

	// BookingsTotal tracks booking attempts by outcome.
	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_total",
			Help: "Booking attempts by outcome",
		},
		[]string{"outcome"},
	)

	// GateHalts tracks pipeline gates that suspended a turn.
	GateHalts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_gate_halts_total",
			Help: "Pipeline gates that suspended a turn",
		},
		[]string{"gate"},
	)

	// CollaboratorDuration tracks external collaborator call duration.
	CollaboratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collaborator_call_duration_seconds",
			Help:    "External collaborator call duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"collaborator", "status"},
	)

	// CollaboratorFallbacks tracks degraded paths taken after a collaborator failure.
	CollaboratorFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collaborator_fallbacks_total",
			Help: "Degraded paths taken after a collaborator failure",
		},
		[]string{"collaborator"},
	)

	// JournalPublishFailures tracks booking journal writes that failed.
	JournalPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "journal_publish_failures_total",
			Help: "Booking journal events that could not be published",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLM records metrics for an LLM completion.
func RecordLLM(provider, purpose, status string, duration float64, tokensIn, tokensOut int) {
	LLMCallDuration.WithLabelValues(provider, purpose, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))
}

// RecordCollaborator records the outcome of an external collaborator call.
func RecordCollaborator(name string, err error, duration float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	CollaboratorDuration.WithLabelValues(name, status).Observe(duration)
}
