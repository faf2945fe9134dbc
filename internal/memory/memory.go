// Package memory keeps per-flight conversation history and derives
// context, proactive suggestions, cross-flight comparisons and a user
// profile from it.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jxucoder/uavlog/internal/logging"
	"github.com/jxucoder/uavlog/internal/store"
	"github.com/jxucoder/uavlog/pkg/model"
)

const (
	// DefaultContextTurns is how many recent turns feed the prompt context.
	DefaultContextTurns = 5

	// DefaultRetention is how long an idle session is kept.
	DefaultRetention = 30 * 24 * time.Hour

	maxSuggestions      = 2
	responsePreviewLen  = 200
	altitudeFactor      = 1.2
	durationFactor      = 1.3
	minSessionsCompared = 2
)

// Repository persists sessions, turns and the profile.
type Repository interface {
	AddTurn(ctx context.Context, t *model.Turn) error
	GetSession(ctx context.Context, flightID string) (*model.Session, error)
	ListSessions(ctx context.Context) ([]*model.Session, error)
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	GetProfile(ctx context.Context) (*model.Profile, error)
	SaveProfile(ctx context.Context, p *model.Profile) error
}

// FlightLookup loads stored flights for comparison.
type FlightLookup interface {
	GetFlight(ctx context.Context, id string) (*model.Flight, error)
}

// Memory is the conversation memory. It is safe for concurrent use.
type Memory struct {
	repo    Repository
	flights FlightLookup
	now     func() time.Time

	// Serializes profile read-modify-write.
	profileMu sync.Mutex
}

// New creates a Memory. flights may be nil, in which case comparisons are
// never produced.
func New(repo Repository, flights FlightLookup) *Memory {
	return &Memory{repo: repo, flights: flights, now: time.Now}
}

// AddTurn records an exchange about a flight, tagging it with topic and
// sentiment, and updates the user profile.
func (m *Memory) AddTurn(ctx context.Context, flightID, userMessage, response string) (*model.Turn, error) {
	t := &model.Turn{
		ID:                uuid.New().String(),
		FlightID:          flightID,
		UserMessage:       userMessage,
		AssistantResponse: response,
		Topic:             AnalyzeTopic(userMessage),
		Sentiment:         AnalyzeSentiment(userMessage),
		CreatedAt:         m.now().UTC(),
	}
	if err := m.repo.AddTurn(ctx, t); err != nil {
		return nil, fmt.Errorf("recording turn: %w", err)
	}
	if err := m.updateProfile(ctx, t.Topic); err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return t, nil
}

func (m *Memory) updateProfile(ctx context.Context, topic string) error {
	m.profileMu.Lock()
	defer m.profileMu.Unlock()

	p, err := m.repo.GetProfile(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(p.FrequentTopics, topic) {
		p.FrequentTopics = append(p.FrequentTopics, topic)
	}
	switch topic {
	case TopicTechnical:
		p.PreferredAnalysisDepth = "detailed"
	case TopicGeneral:
		p.PreferredAnalysisDepth = "summary"
	}
	return m.repo.SaveProfile(ctx, p)
}

// Profile returns the current user profile.
func (m *Memory) Profile(ctx context.Context) (*model.Profile, error) {
	return m.repo.GetProfile(ctx)
}

// Session returns a flight's session, or nil if none exists yet.
func (m *Memory) Session(ctx context.Context, flightID string) (*model.Session, error) {
	sess, err := m.repo.GetSession(ctx, flightID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return sess, err
}

// Context renders the last n turns of a flight's conversation for the
// prompt. It returns "" when the flight has no session.
func (m *Memory) Context(ctx context.Context, flightID string, n int) (string, error) {
	sess, err := m.Session(ctx, flightID)
	if err != nil || sess == nil {
		return "", err
	}
	turns := sess.Turns
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Previous conversation context for flight %s:\n", flightID)
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\n", t.UserMessage)
		fmt.Fprintf(&b, "Assistant: %s...\n", truncate(t.AssistantResponse, responsePreviewLen))
		fmt.Fprintf(&b, "Topic: %s\n\n", t.Topic)
	}
	return b.String(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Suggestion texts.
const (
	SuggestGPS       = "I notice we haven't discussed the GPS signal instability yet. Would you like me to analyze the GPS performance patterns?"
	SuggestBattery   = "You might want to know about the battery performance degradation I detected. Should I explain the voltage patterns?"
	SuggestSafety    = "Given the multiple anomalies detected, would you like me to provide a comprehensive safety assessment?"
	SuggestTechnical = "I see you're interested in technical details. Would you like me to dive deeper into the telemetry data analysis?"
)

// Suggestions proposes at most two follow-up topics, based on which topics
// have not been discussed yet, the flight's anomalies, and recent interest
// in technical detail.
func (m *Memory) Suggestions(ctx context.Context, flightID string, flight *model.Flight) ([]string, error) {
	suggestions := []string{}
	sess, err := m.Session(ctx, flightID)
	if err != nil || sess == nil {
		return suggestions, err
	}

	discussed := func(topic string) bool { return slices.Contains(sess.TopicsDiscussed, topic) }
	var anomalies []string
	if flight != nil {
		anomalies = flight.Summary.Anomalies
	}

	if !discussed(TopicGPS) && slices.ContainsFunc(anomalies, func(a string) bool { return strings.Contains(a, "GPS") }) {
		suggestions = append(suggestions, SuggestGPS)
	}
	if !discussed(TopicBattery) && slices.ContainsFunc(anomalies, func(a string) bool { return strings.Contains(strings.ToLower(a), "battery") }) {
		suggestions = append(suggestions, SuggestBattery)
	}
	if !discussed(TopicSafety) && len(anomalies) > 2 {
		suggestions = append(suggestions, SuggestSafety)
	}
	if n := len(sess.Turns); n > 3 {
		technical := 0
		for _, t := range sess.Turns[n-3:] {
			if t.Topic == TopicTechnical {
				technical++
			}
		}
		if technical > 1 {
			suggestions = append(suggestions, SuggestTechnical)
		}
	}

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions, nil
}

// Compare contrasts a flight with the other flights that have been
// discussed. It needs at least two sessions and returns "" when nothing
// stands out.
func (m *Memory) Compare(ctx context.Context, flightID string, flight *model.Flight) (string, error) {
	if m.flights == nil || flight == nil {
		return "", nil
	}
	sessions, err := m.repo.ListSessions(ctx)
	if err != nil {
		return "", err
	}
	if len(sessions) < minSessionsCompared {
		return "", nil
	}

	var prev []model.Summary
	for _, s := range sessions {
		if s.FlightID == flightID {
			continue
		}
		f, err := m.flights.GetFlight(ctx, s.FlightID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		prev = append(prev, f.Summary)
	}
	if len(prev) == 0 {
		return "", nil
	}

	var avgAlt, avgDur float64
	for _, s := range prev {
		avgAlt += s.MaxAltitude
		avgDur += s.Duration
	}
	avgAlt /= float64(len(prev))
	avgDur /= float64(len(prev))

	cur := flight.Summary
	var insights []string
	if cur.MaxAltitude > avgAlt*altitudeFactor {
		insights = append(insights, fmt.Sprintf("This flight reached %.1fm - significantly higher than your average of %.1fm", cur.MaxAltitude, avgAlt))
	}
	if cur.Duration > avgDur*durationFactor {
		insights = append(insights, fmt.Sprintf("This was a longer flight (%.1fs vs avg %.1fs)", cur.Duration, avgDur))
	}
	return strings.Join(insights, " | "), nil
}

// Cleanup removes sessions idle for longer than retention.
func (m *Memory) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	n, err := m.repo.DeleteSessionsBefore(ctx, m.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("removing idle sessions: %w", err)
	}
	if n > 0 {
		logging.Info().Int64("sessions", n).Dur("retention", retention).Msg("Removed idle conversation sessions")
	}
	return n, nil
}
