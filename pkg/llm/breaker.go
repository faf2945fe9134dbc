package llm

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the circuit breaker. Zero values use the defaults.
type BreakerSettings struct {
	// MinRequests is the number of requests in the interval before the
	// failure ratio is considered. Default: 5.
	MinRequests uint32
	// FailureRatio opens the circuit. Default: 0.6.
	FailureRatio float64
	// Interval resets the counts while closed. Default: 1 minute.
	Interval time.Duration
	// Timeout is how long the circuit stays open. Default: 1 minute.
	Timeout time.Duration
	// Observer is told the initial state and every transition.
	Observer Observer
}

// Breaker is a Client guarded by a circuit breaker. While open, calls fail
// fast with gobreaker.ErrOpenState.
type Breaker struct {
	next Client
	name string
	cb   *gobreaker.CircuitBreaker[string]
}

// WithBreaker wraps c in a circuit breaker with default settings.
func WithBreaker(c Client) *Breaker {
	return NewBreaker(c, BreakerSettings{})
}

// NewBreaker wraps c in a circuit breaker.
func NewBreaker(c Client, s BreakerSettings) *Breaker {
	if s.MinRequests == 0 {
		s.MinRequests = 5
	}
	if s.FailureRatio == 0 {
		s.FailureRatio = 0.6
	}
	if s.Interval == 0 {
		s.Interval = time.Minute
	}
	if s.Timeout == 0 {
		s.Timeout = time.Minute
	}

	obs := observerOrNop(s.Observer)
	name := ProviderName(c)
	obs.ObserveBreakerState(name, gobreaker.StateClosed)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("LLM circuit breaker state change")
			obs.ObserveBreakerState(name, to)
		},
		// A caller giving up is not a provider failure.
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	})
	return &Breaker{next: c, name: name, cb: cb}
}

func (b *Breaker) Name() string { return b.name }

// State reports the breaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) Complete(ctx context.Context, system, user string) (string, error) {
	return b.cb.Execute(func() (string, error) {
		return b.next.Complete(ctx, system, user)
	})
}
