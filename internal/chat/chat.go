// Package chat answers questions about flights using an LLM provider (or a
// fixed fallback) together with conversation memory.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jxucoder/uavlog/internal/logging"
	"github.com/jxucoder/uavlog/internal/memory"
	"github.com/jxucoder/uavlog/internal/metrics"
	"github.com/jxucoder/uavlog/internal/store"
	"github.com/jxucoder/uavlog/pkg/eventbus"
	"github.com/jxucoder/uavlog/pkg/llm"
	"github.com/jxucoder/uavlog/pkg/model"
)

// FlightStore loads flights by ID.
type FlightStore interface {
	GetFlight(ctx context.Context, id string) (*model.Flight, error)
}

// Service processes chat messages.
type Service struct {
	flights FlightStore
	memory  *memory.Memory
	llm     llm.Client
	bus     eventbus.Bus
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEventBus publishes a chat.message event for every answered message.
func WithEventBus(b eventbus.Bus) Option {
	return func(s *Service) { s.bus = b }
}

// New creates a chat service. client may be nil, in which case answers come
// from the fallback text.
func New(flights FlightStore, mem *memory.Memory, client llm.Client, opts ...Option) *Service {
	s := &Service{flights: flights, memory: mem, llm: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provider returns the active provider name, or "fallback".
func (s *Service) Provider() string {
	if s.llm == nil {
		return "fallback"
	}
	return llm.ProviderName(s.llm)
}

// ProcessMessage answers a message, optionally about a flight. Failures
// never surface as errors: they become an apologetic answer with no flight
// data.
func (s *Service) ProcessMessage(ctx context.Context, message string, flightID *string) *model.ChatResponse {
	resp, err := s.process(ctx, message, flightID)
	if err != nil {
		logging.Error().Err(err).Msg("Chat message failed")
		metrics.RecordChat("error")
		return &model.ChatResponse{
			Response:             fmt.Sprintf("Sorry, I encountered an error: %v", err),
			ProactiveSuggestions: []string{},
			Timestamp:            s.now().UTC(),
		}
	}
	return resp
}

func (s *Service) process(ctx context.Context, message string, flightID *string) (*model.ChatResponse, error) {
	id := ""
	if flightID != nil {
		id = *flightID
	}

	var flight *model.Flight
	if id != "" {
		f, err := s.flights.GetFlight(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			logging.Warn().Str("flight_id", id).Msg("Chat references unknown flight")
		case err != nil:
			return nil, fmt.Errorf("loading flight: %w", err)
		default:
			flight = f
		}
	}

	var history string
	if id != "" {
		h, err := s.memory.Context(ctx, id, memory.DefaultContextTurns)
		if err != nil {
			return nil, fmt.Errorf("loading conversation: %w", err)
		}
		history = h
	}

	var answer string
	provider := s.Provider()
	if s.llm != nil {
		out, err := s.llm.Complete(ctx, SystemPrompt(flight, history), message)
		if err != nil {
			return nil, err
		}
		answer = out
	} else {
		answer = FallbackResponse(flight)
	}

	resp := &model.ChatResponse{
		Response:             answer,
		FlightData:           flight,
		ProactiveSuggestions: []string{},
		Timestamp:            s.now().UTC(),
	}

	if id != "" {
		if _, err := s.memory.AddTurn(ctx, id, message, answer); err != nil {
			return nil, err
		}
	}
	if flight != nil {
		suggestions, err := s.memory.Suggestions(ctx, id, flight)
		if err != nil {
			return nil, fmt.Errorf("building suggestions: %w", err)
		}
		resp.ProactiveSuggestions = suggestions

		insights, err := s.memory.Compare(ctx, id, flight)
		if err != nil {
			return nil, fmt.Errorf("comparing flights: %w", err)
		}
		resp.ComparisonInsights = insights
	}

	metrics.RecordChat(provider)
	if s.bus != nil {
		s.bus.Publish(&model.Event{
			Type:      model.EventChatMessage,
			FlightID:  id,
			Data:      message,
			CreatedAt: resp.Timestamp,
		})
	}
	return resp, nil
}
