package model

import "time"

// Turn is a single user/assistant exchange about a flight.
type Turn struct {
	ID                string    `json:"id"`
	FlightID          string    `json:"flight_id"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	Topic             string    `json:"topic"`
	Sentiment         string    `json:"sentiment"`
	FollowUpSuggested bool      `json:"follow_up_suggested"`
	CreatedAt         time.Time `json:"created_at"`
}

// Session is the conversation history for one flight.
type Session struct {
	FlightID        string    `json:"flight_id"`
	StartedAt       time.Time `json:"started_at"`
	LastActivity    time.Time `json:"last_activity"`
	TopicsDiscussed []string  `json:"topics_discussed"`
	Turns           []*Turn   `json:"turns"`
}

// Profile records what the user tends to ask about across flights.
type Profile struct {
	PreferredAnalysisDepth string   `json:"preferred_analysis_depth"` // "detailed" or "summary"
	FrequentTopics         []string `json:"frequently_asked_topics"`
	ResponsePreferences    string   `json:"response_preferences"`
}

// DefaultProfile returns the profile used before any conversation happens.
func DefaultProfile() *Profile {
	return &Profile{
		PreferredAnalysisDepth: "detailed",
		FrequentTopics:         []string{},
		ResponsePreferences:    "technical",
	}
}
