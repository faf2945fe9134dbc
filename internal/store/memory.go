package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/jxucoder/uavlog/pkg/model"
)

// --- Conversation memory ---

// AddTurn records a conversation turn. The flight's session is created on
// the first turn; later turns advance its last activity and add the turn's
// topic to the discussed topics.
func (s *Store) AddTurn(ctx context.Context, t *model.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	at := formatTime(t.CreatedAt)
	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT topics FROM memory_sessions WHERE flight_id = ?`, t.FlightID,
	).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		raw = "[]"
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_sessions (flight_id, started_at, last_activity, topics)
			 VALUES (?, ?, ?, '[]')`,
			t.FlightID, at, at,
		); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
	case err != nil:
		return err
	}

	var topics []string
	if err := json.Unmarshal([]byte(raw), &topics); err != nil {
		return fmt.Errorf("session %s topics: %w", t.FlightID, err)
	}
	if !slices.Contains(topics, t.Topic) {
		topics = append(topics, t.Topic)
	}
	encoded, err := json.Marshal(topics)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE memory_sessions SET last_activity = ?, topics = ? WHERE flight_id = ?`,
		at, string(encoded), t.FlightID,
	); err != nil {
		return fmt.Errorf("updating session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memory_turns (id, flight_id, user_message, assistant_response, topic, sentiment, follow_up_suggested, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.FlightID, t.UserMessage, t.AssistantResponse, t.Topic, t.Sentiment, t.FollowUpSuggested, at,
	); err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	return tx.Commit()
}

// GetSession returns a flight's session with all of its turns in order.
func (s *Store) GetSession(ctx context.Context, flightID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT flight_id, started_at, last_activity, topics
		 FROM memory_sessions WHERE flight_id = ?`, flightID,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, flight_id, user_message, assistant_response, topic, sentiment, follow_up_suggested, created_at
		 FROM memory_turns WHERE flight_id = ? ORDER BY seq ASC`, flightID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		t := &model.Turn{}
		var created string
		if err := rows.Scan(&t.ID, &t.FlightID, &t.UserMessage, &t.AssistantResponse,
			&t.Topic, &t.Sentiment, &t.FollowUpSuggested, &created); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		sess.Turns = append(sess.Turns, t)
	}
	return sess, rows.Err()
}

// ListSessions returns every session without its turns, most recently
// active first.
func (s *Store) ListSessions(ctx context.Context) ([]*model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT flight_id, started_at, last_activity, topics
		 FROM memory_sessions ORDER BY last_activity DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// DeleteSessionsBefore removes sessions, and their turns, whose last
// activity is before cutoff. It returns the number of sessions removed.
func (s *Store) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	c := formatTime(cutoff)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_turns WHERE flight_id IN
		   (SELECT flight_id FROM memory_sessions WHERE last_activity < ?)`, c,
	); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM memory_sessions WHERE last_activity < ?`, c)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// GetProfile returns the stored user profile, or the default profile when
// none has been saved.
func (s *Store) GetProfile(ctx context.Context) (*model.Profile, error) {
	p := &model.Profile{}
	var topics string
	err := s.db.QueryRowContext(ctx,
		`SELECT preferred_analysis_depth, frequent_topics, response_preferences
		 FROM memory_profile WHERE id = 1`,
	).Scan(&p.PreferredAnalysisDepth, &topics, &p.ResponsePreferences)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultProfile(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topics), &p.FrequentTopics); err != nil {
		return nil, fmt.Errorf("profile topics: %w", err)
	}
	return p, nil
}

// SaveProfile replaces the stored user profile.
func (s *Store) SaveProfile(ctx context.Context, p *model.Profile) error {
	topics := p.FrequentTopics
	if topics == nil {
		topics = []string{}
	}
	encoded, err := json.Marshal(topics)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_profile (id, preferred_analysis_depth, frequent_topics, response_preferences)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			preferred_analysis_depth = excluded.preferred_analysis_depth,
			frequent_topics = excluded.frequent_topics,
			response_preferences = excluded.response_preferences`,
		p.PreferredAnalysisDepth, string(encoded), p.ResponsePreferences,
	)
	return err
}

// --- Scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.Session, error) {
	sess := &model.Session{}
	var started, last, topics string
	if err := row.Scan(&sess.FlightID, &started, &last, &topics); err != nil {
		return nil, err
	}
	var err error
	if sess.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if sess.LastActivity, err = parseTime(last); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topics), &sess.TopicsDiscussed); err != nil {
		return nil, fmt.Errorf("session %s topics: %w", sess.FlightID, err)
	}
	return sess, nil
}
