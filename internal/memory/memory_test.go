package memory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jxucoder/uavlog/internal/store"
	"github.com/jxucoder/uavlog/pkg/model"
)

func newTestMemory(t *testing.T) (*Memory, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, st), st
}

func flightWith(id string, alt, dur float64, anomalies ...string) *model.Flight {
	return &model.Flight{
		ID:           id,
		FileName:     id + ".bin",
		UploadedAt:   time.Now().UTC(),
		Summary:      model.Summary{MaxAltitude: alt, Duration: dur, Anomalies: anomalies},
		Telemetry:    model.NewTelemetry(),
		MessageTypes: map[string]int{},
	}
}

func TestAnalyzeTopic(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"How was the GPS?", TopicGPS},
		{"Check the battery voltage", TopicBattery},
		{"Was there a sudden drop?", TopicAltitude},
		{"any shake or oscillation", TopicVibration},
		{"Is it a safety risk?", TopicSafety},
		{"optimize efficiency", TopicPerformance},
		{"Any problem in this log?", TopicAnomalies},
		{"show me the raw data", TopicTechnical},
		{"hello there", TopicGeneral},
		// First matching topic wins.
		{"GPS battery", TopicGPS},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AnalyzeTopic(tt.msg), tt.msg)
	}
}

func TestAnalyzeSentiment(t *testing.T) {
	assert.Equal(t, SentimentPositive, AnalyzeSentiment("Great flight, thanks!"))
	assert.Equal(t, SentimentNegative, AnalyzeSentiment("I'm worried, this looks bad"))
	assert.Equal(t, SentimentNeutral, AnalyzeSentiment("good but a problem"))
	assert.Equal(t, SentimentNeutral, AnalyzeSentiment("what is the altitude"))
}

func TestAddTurn_UpdatesProfile(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	turn, err := m.AddTurn(ctx, "f1", "hello", "hi!")
	require.NoError(t, err)
	assert.Equal(t, TopicGeneral, turn.Topic)
	assert.NotEmpty(t, turn.ID)

	p, err := m.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "summary", p.PreferredAnalysisDepth)
	assert.Equal(t, []string{TopicGeneral}, p.FrequentTopics)

	_, err = m.AddTurn(ctx, "f1", "technical metric breakdown please", "...")
	require.NoError(t, err)
	_, err = m.AddTurn(ctx, "f1", "hello again", "hi")
	require.NoError(t, err)

	p, err = m.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "summary", p.PreferredAnalysisDepth)
	assert.Equal(t, []string{TopicGeneral, TopicTechnical}, p.FrequentTopics)
}

func TestContext(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	got, err := m.Context(ctx, "f1", DefaultContextTurns)
	require.NoError(t, err)
	assert.Empty(t, got, "no session means no context")

	long := strings.Repeat("x", 250)
	for i := 0; i < 7; i++ {
		msg := "question " + string(rune('A'+i))
		_, err := m.AddTurn(ctx, "f1", msg, long)
		require.NoError(t, err)
	}

	got, err = m.Context(ctx, "f1", DefaultContextTurns)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "Previous conversation context for flight f1:\n"))
	assert.NotContains(t, got, "question A")
	assert.NotContains(t, got, "question B")
	assert.Contains(t, got, "User: question C\n")
	assert.Contains(t, got, "User: question G\n")
	assert.Contains(t, got, "Assistant: "+strings.Repeat("x", 200)+"...\n")
	assert.NotContains(t, got, strings.Repeat("x", 201))
	assert.Equal(t, 5, strings.Count(got, "Topic: general\n\n"))
}

func TestSuggestions(t *testing.T) {
	ctx := context.Background()
	gps := "GPS signal instability detected"
	battery := "Low battery voltage detected"
	vibe := "High vibration levels detected"

	t.Run("no session", func(t *testing.T) {
		m, _ := newTestMemory(t)
		got, err := m.Suggestions(ctx, "f1", flightWith("f1", 10, 10, gps))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("undiscussed anomalies", func(t *testing.T) {
		m, _ := newTestMemory(t)
		_, err := m.AddTurn(ctx, "f1", "hello", "hi")
		require.NoError(t, err)

		got, err := m.Suggestions(ctx, "f1", flightWith("f1", 10, 10, gps, battery, vibe))
		require.NoError(t, err)
		assert.Equal(t, []string{SuggestGPS, SuggestBattery}, got, "capped at two")
	})

	t.Run("discussed topics are skipped", func(t *testing.T) {
		m, _ := newTestMemory(t)
		_, err := m.AddTurn(ctx, "f1", "what about gps", "fine")
		require.NoError(t, err)

		got, err := m.Suggestions(ctx, "f1", flightWith("f1", 10, 10, gps, battery, vibe))
		require.NoError(t, err)
		assert.Equal(t, []string{SuggestBattery, SuggestSafety}, got)
	})

	t.Run("technical interest", func(t *testing.T) {
		m, _ := newTestMemory(t)
		for _, msg := range []string{"hello", "show data", "more detail", "hi"} {
			_, err := m.AddTurn(ctx, "f1", msg, "ok")
			require.NoError(t, err)
		}
		got, err := m.Suggestions(ctx, "f1", flightWith("f1", 10, 10))
		require.NoError(t, err)
		assert.Equal(t, []string{SuggestTechnical}, got)
	})
}

func TestCompare(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMemory(t)

	current := flightWith("cur", 150, 400)
	for _, f := range []*model.Flight{current, flightWith("a", 80, 200), flightWith("b", 120, 300)} {
		require.NoError(t, st.CreateFlight(ctx, f))
	}

	_, err := m.AddTurn(ctx, "cur", "hello", "hi")
	require.NoError(t, err)
	got, err := m.Compare(ctx, "cur", current)
	require.NoError(t, err)
	assert.Empty(t, got, "needs at least two sessions")

	for _, id := range []string{"a", "b"} {
		_, err := m.AddTurn(ctx, id, "hello", "hi")
		require.NoError(t, err)
	}
	got, err = m.Compare(ctx, "cur", current)
	require.NoError(t, err)
	assert.Equal(t,
		"This flight reached 150.0m - significantly higher than your average of 100.0m | This was a longer flight (400.0s vs avg 250.0s)",
		got)

	got, err = m.Compare(ctx, "a", flightWith("a", 80, 200))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t)

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now.AddDate(0, 0, -40) }
	_, err := m.AddTurn(ctx, "old", "hello", "hi")
	require.NoError(t, err)
	m.now = func() time.Time { return now }
	_, err = m.AddTurn(ctx, "new", "hello", "hi")
	require.NoError(t, err)

	n, err := m.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sess, err := m.Session(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

type mockRepo struct {
	mock.Mock
	Repository
}

func (r *mockRepo) AddTurn(ctx context.Context, t *model.Turn) error {
	return r.Called(ctx, t).Error(0)
}

func TestAddTurn_RepositoryError(t *testing.T) {
	repo := &mockRepo{}
	repo.On("AddTurn", mock.Anything, mock.AnythingOfType("*model.Turn")).Return(errors.New("disk full"))

	m := New(repo, nil)
	_, err := m.AddTurn(context.Background(), "f1", "hi", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	repo.AssertExpectations(t)
}
