// Package llm defines the LLM client interface used by the chat service and
// selects a provider from the configured API keys.
package llm

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/jxucoder/uavlog/pkg/llm/anthropic"
	"github.com/jxucoder/uavlog/pkg/llm/gemini"
	"github.com/jxucoder/uavlog/pkg/llm/openai"
)

// Client is a minimal interface for making LLM API calls.
// Implementations provide the actual transport to a specific provider.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Named is implemented by clients that report their provider name.
type Named interface {
	Name() string
}

// ProviderName returns c's provider name, or "unknown".
func ProviderName(c Client) string {
	if n, ok := c.(Named); ok {
		return n.Name()
	}
	return "unknown"
}

// Keys holds provider credentials and model overrides.
type Keys struct {
	OpenAI    string
	Anthropic string
	Google    string

	OpenAIModel    string
	AnthropicModel string
	GeminiModel    string

	MaxTokens int

	// Observer receives completion latency and breaker state. Optional.
	Observer Observer
}

// Observer is notified about provider calls. The server implements it with
// Prometheus collectors.
type Observer interface {
	ObserveCompletion(provider string, d time.Duration)
	ObserveBreakerState(provider string, state gobreaker.State)
}

type nopObserver struct{}

func (nopObserver) ObserveCompletion(string, time.Duration)     {}
func (nopObserver) ObserveBreakerState(string, gobreaker.State) {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

// NewFromKeys returns a client for the first provider with a key, in the
// order OpenAI, Anthropic, Gemini, wrapped in a circuit breaker. It returns
// nil when no key is set.
func NewFromKeys(ctx context.Context, k Keys) (Client, error) {
	var c Client
	switch {
	case k.OpenAI != "":
		c = openai.New(k.OpenAI, k.OpenAIModel, openai.WithMaxTokens(k.MaxTokens))
	case k.Anthropic != "":
		c = anthropic.New(k.Anthropic, k.AnthropicModel, anthropic.WithMaxTokens(k.MaxTokens))
	case k.Google != "":
		g, err := gemini.New(ctx, k.Google, k.GeminiModel, gemini.WithMaxTokens(k.MaxTokens))
		if err != nil {
			return nil, err
		}
		c = g
	default:
		return nil, nil
	}
	return NewBreaker(Timed(c, k.Observer), BreakerSettings{Observer: k.Observer}), nil
}

// timed reports completion latency per provider.
type timed struct {
	next Client
	name string
	obs  Observer
}

// Timed wraps c so every completion's latency is reported to obs.
func Timed(c Client, obs Observer) Client {
	return &timed{next: c, name: ProviderName(c), obs: observerOrNop(obs)}
}

func (t *timed) Name() string { return t.name }

func (t *timed) Complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	out, err := t.next.Complete(ctx, system, user)
	t.obs.ObserveCompletion(t.name, time.Since(start))
	return out, err
}
