package model

import "time"

// ChatRequest is the body of POST /api/chat. FlightID is always encoded and
// is null when no flight is selected.
type ChatRequest struct {
	Message  string  `json:"message" validate:"required"`
	FlightID *string `json:"flight_id"`
}

// ChatResponse is the reply to a chat message.
type ChatResponse struct {
	Response             string    `json:"response"`
	FlightData           *Flight   `json:"flight_data"`
	ProactiveSuggestions []string  `json:"proactive_suggestions"`
	ComparisonInsights   string    `json:"comparison_insights"`
	Timestamp            time.Time `json:"timestamp"`
}

// UploadResponse is the reply to a successful upload.
type UploadResponse struct {
	FlightID  string    `json:"flight_id"`
	Summary   Summary   `json:"summary"`
	Telemetry Telemetry `json:"telemetry"`
	Message   string    `json:"message"`
}

// ErrorResponse is the JSON error body returned by the API.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Event is a flight lifecycle or chat event published on the event bus.
type Event struct {
	Type      string    `json:"type"` // "flight.ingested", "flight.failed", "chat.message"
	FlightID  string    `json:"flight_id,omitempty"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	EventFlightIngested = "flight.ingested"
	EventFlightFailed   = "flight.failed"
	EventChatMessage    = "chat.message"
)
