// Package metrics holds the Prometheus collectors for uavlog.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uavlog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uavlog_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	FlightsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uavlog_flights_ingested_total",
			Help: "Flight logs ingested, by result",
		},
		[]string{"result"}, // "success", "failure"
	)

	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uavlog_chat_requests_total",
			Help: "Chat messages answered, by provider",
		},
		[]string{"provider"}, // "openai", "anthropic", "gemini", "fallback", "error"
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uavlog_llm_request_duration_seconds",
			Help:    "LLM completion latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"provider"},
	)

	LLMBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "uavlog_llm_breaker_state",
			Help: "LLM circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)
)

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordIngest records the outcome of a flight ingestion.
func RecordIngest(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	FlightsIngested.WithLabelValues(result).Inc()
}

// RecordChat records an answered chat message.
func RecordChat(provider string) {
	ChatRequests.WithLabelValues(provider).Inc()
}

// RecordLLMRequest records the latency of one completion call.
func RecordLLMRequest(provider string, duration time.Duration) {
	LLMRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// LLMObserver feeds LLM latency and breaker state into the collectors. It
// satisfies llm.Observer.
type LLMObserver struct{}

func (LLMObserver) ObserveCompletion(provider string, d time.Duration) {
	RecordLLMRequest(provider, d)
}

func (LLMObserver) ObserveBreakerState(provider string, state gobreaker.State) {
	LLMBreakerState.WithLabelValues(provider).Set(breakerStateValue(state))
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
