package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"
)

func TestRecordHTTPRequest(t *testing.T) {
	c := HTTPRequestsTotal.WithLabelValues("GET", "/api/flights", "200")
	before := testutil.ToFloat64(c)

	RecordHTTPRequest("GET", "/api/flights", 200, 15*time.Millisecond)

	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("request counter delta = %v, want 1", got)
	}
}

func TestRecordIngest(t *testing.T) {
	ok := FlightsIngested.WithLabelValues("success")
	failed := FlightsIngested.WithLabelValues("failure")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	RecordIngest(nil)
	RecordIngest(errors.New("bad log"))
	RecordIngest(errors.New("bad log"))

	if got := testutil.ToFloat64(ok) - okBefore; got != 1 {
		t.Errorf("success delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(failed) - failedBefore; got != 2 {
		t.Errorf("failure delta = %v, want 2", got)
	}
}

func TestRecordChat(t *testing.T) {
	c := ChatRequests.WithLabelValues("fallback")
	before := testutil.ToFloat64(c)
	RecordChat("fallback")
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("chat counter delta = %v, want 1", got)
	}
}

func TestCollectorsRegistered(t *testing.T) {
	RecordLLMRequest("openai", time.Second)
	LLMBreakerState.WithLabelValues("openai").Set(0)

	if n := testutil.CollectAndCount(LLMRequestDuration); n == 0 {
		t.Error("LLM duration histogram has no series")
	}
	if n := testutil.CollectAndCount(LLMBreakerState); n == 0 {
		t.Error("breaker gauge has no series")
	}
}

func TestLLMObserver(t *testing.T) {
	var obs LLMObserver
	obs.ObserveCompletion("observer-test", 250*time.Millisecond)
	if n := testutil.CollectAndCount(LLMRequestDuration); n == 0 {
		t.Error("LLM duration histogram has no series")
	}

	gauge := LLMBreakerState.WithLabelValues("observer-test")
	obs.ObserveBreakerState("observer-test", gobreaker.StateOpen)
	if got := testutil.ToFloat64(gauge); got != 2 {
		t.Errorf("open state = %v, want 2", got)
	}
	obs.ObserveBreakerState("observer-test", gobreaker.StateHalfOpen)
	if got := testutil.ToFloat64(gauge); got != 1 {
		t.Errorf("half-open state = %v, want 1", got)
	}
	obs.ObserveBreakerState("observer-test", gobreaker.StateClosed)
	if got := testutil.ToFloat64(gauge); got != 0 {
		t.Errorf("closed state = %v, want 0", got)
	}
}
