// Package store provides flight and conversation-memory persistence using
// SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/jxucoder/uavlog/pkg/model"
)

// ErrNotFound is returned when a flight or session does not exist.
var ErrNotFound = errors.New("not found")

// Times are stored as fixed-width UTC text so that they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// Store manages persistence in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at the given path. Pragmas are
// set in the DSN so every pooled connection gets them, and transactions take
// the write lock when they begin.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func dsn(dbPath string) string {
	return "file:" + dbPath +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS flights (
			id             TEXT PRIMARY KEY,
			file_name      TEXT NOT NULL,
			file_path      TEXT NOT NULL DEFAULT '',
			uploaded_at    TEXT NOT NULL,
			summary        TEXT NOT NULL DEFAULT '{}',
			telemetry      TEXT NOT NULL DEFAULT '{}',
			message_types  TEXT NOT NULL DEFAULT '{}',
			total_messages INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_flights_uploaded_at
			ON flights(uploaded_at);

		CREATE TABLE IF NOT EXISTS memory_sessions (
			flight_id     TEXT PRIMARY KEY,
			started_at    TEXT NOT NULL,
			last_activity TEXT NOT NULL,
			topics        TEXT NOT NULL DEFAULT '[]'
		);

		CREATE TABLE IF NOT EXISTS memory_turns (
			seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
			id                  TEXT NOT NULL UNIQUE,
			flight_id           TEXT NOT NULL,
			user_message        TEXT NOT NULL,
			assistant_response  TEXT NOT NULL,
			topic               TEXT NOT NULL DEFAULT 'general',
			sentiment           TEXT NOT NULL DEFAULT 'neutral',
			follow_up_suggested INTEGER NOT NULL DEFAULT 0,
			created_at          TEXT NOT NULL,
			FOREIGN KEY (flight_id) REFERENCES memory_sessions(flight_id)
		);

		CREATE INDEX IF NOT EXISTS idx_turns_flight_id
			ON memory_turns(flight_id);

		CREATE TABLE IF NOT EXISTS memory_profile (
			id                       INTEGER PRIMARY KEY CHECK (id = 1),
			preferred_analysis_depth TEXT NOT NULL,
			frequent_topics          TEXT NOT NULL DEFAULT '[]',
			response_preferences     TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Flights ---

// CreateFlight inserts a parsed flight.
func (s *Store) CreateFlight(ctx context.Context, f *model.Flight) error {
	summary, err := json.Marshal(f.Summary)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	telemetry, err := json.Marshal(f.Telemetry)
	if err != nil {
		return fmt.Errorf("encoding telemetry: %w", err)
	}
	types, err := json.Marshal(f.MessageTypes)
	if err != nil {
		return fmt.Errorf("encoding message types: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flights (id, file_name, file_path, uploaded_at, summary, telemetry, message_types, total_messages)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.FileName, f.FilePath, formatTime(f.UploadedAt),
		string(summary), string(telemetry), string(types), f.TotalMessages,
	)
	return err
}

// GetFlight retrieves a flight with its full telemetry.
func (s *Store) GetFlight(ctx context.Context, id string) (*model.Flight, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_name, file_path, uploaded_at, summary, telemetry, message_types, total_messages
		 FROM flights WHERE id = ?`, id,
	)

	var (
		f                         model.Flight
		uploaded                  string
		summary, telemetry, types string
	)
	err := row.Scan(&f.ID, &f.FileName, &f.FilePath, &uploaded, &summary, &telemetry, &types, &f.TotalMessages)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if f.UploadedAt, err = parseTime(uploaded); err != nil {
		return nil, fmt.Errorf("flight %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(summary), &f.Summary); err != nil {
		return nil, fmt.Errorf("flight %s summary: %w", id, err)
	}
	f.Telemetry = model.NewTelemetry()
	if err := json.Unmarshal([]byte(telemetry), &f.Telemetry); err != nil {
		return nil, fmt.Errorf("flight %s telemetry: %w", id, err)
	}
	if err := json.Unmarshal([]byte(types), &f.MessageTypes); err != nil {
		return nil, fmt.Errorf("flight %s message types: %w", id, err)
	}
	return &f, nil
}

// ListFlights returns all flights without telemetry, newest first.
func (s *Store) ListFlights(ctx context.Context) ([]*model.FlightSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, uploaded_at, summary
		 FROM flights ORDER BY uploaded_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flights := []*model.FlightSummary{}
	for rows.Next() {
		var (
			f                 model.FlightSummary
			uploaded, summary string
		)
		if err := rows.Scan(&f.ID, &f.FileName, &uploaded, &summary); err != nil {
			return nil, err
		}
		if f.UploadedAt, err = parseTime(uploaded); err != nil {
			return nil, fmt.Errorf("flight %s: %w", f.ID, err)
		}
		if err := json.Unmarshal([]byte(summary), &f.Summary); err != nil {
			return nil, fmt.Errorf("flight %s summary: %w", f.ID, err)
		}
		flights = append(flights, &f)
	}
	return flights, rows.Err()
}
