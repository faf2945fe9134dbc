// Package ingest turns flight-log files into stored flights. It is shared by
// the upload handler and the watch-folder loop.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jxucoder/uavlog/internal/flightlog"
	"github.com/jxucoder/uavlog/internal/logging"
	"github.com/jxucoder/uavlog/internal/metrics"
	"github.com/jxucoder/uavlog/pkg/eventbus"
	"github.com/jxucoder/uavlog/pkg/model"
)

// ErrUnsupportedExtension is returned for files that are not flight logs.
var ErrUnsupportedExtension = errors.New("unsupported file extension")

// DefaultExtensions are the accepted log file extensions.
var DefaultExtensions = []string{".bin", ".log"}

// FlightCreator persists parsed flights.
type FlightCreator interface {
	CreateFlight(ctx context.Context, f *model.Flight) error
}

// Ingester parses log files and stores them as flights.
type Ingester struct {
	store      FlightCreator
	bus        eventbus.Bus
	extensions []string
	now        func() time.Time
}

// New creates an Ingester. bus may be nil. An empty extensions list means
// DefaultExtensions.
func New(store FlightCreator, bus eventbus.Bus, extensions []string) *Ingester {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Ingester{store: store, bus: bus, extensions: extensions, now: time.Now}
}

// Supported reports whether name has an accepted extension.
func (i *Ingester) Supported(name string) bool {
	return slices.Contains(i.extensions, strings.ToLower(filepath.Ext(name)))
}

// Extensions returns the accepted extensions.
func (i *Ingester) Extensions() []string {
	return slices.Clone(i.extensions)
}

// IngestFile parses the log at path and stores it as a new flight named
// originalName.
func (i *Ingester) IngestFile(ctx context.Context, path, originalName string) (*model.Flight, error) {
	f, err := i.ingest(ctx, path, originalName)
	metrics.RecordIngest(err)
	if err != nil {
		logging.Error().Err(err).Str("file", originalName).Msg("Flight ingestion failed")
		i.publish(&model.Event{Type: model.EventFlightFailed, Data: fmt.Sprintf("%s: %v", originalName, err)})
		return nil, err
	}

	logging.Info().
		Str("flight_id", f.ID).
		Str("file", originalName).
		Int("messages", f.TotalMessages).
		Msg("Flight ingested")
	i.publish(&model.Event{Type: model.EventFlightIngested, FlightID: f.ID, Data: originalName})
	return f, nil
}

func (i *Ingester) ingest(ctx context.Context, path, originalName string) (*model.Flight, error) {
	if !i.Supported(originalName) {
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnsupportedExtension,
			filepath.Ext(originalName), strings.Join(i.extensions, ", "))
	}

	res, err := flightlog.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", originalName, err)
	}

	f := &model.Flight{
		ID:            uuid.New().String(),
		FileName:      originalName,
		FilePath:      path,
		UploadedAt:    i.now().UTC(),
		Summary:       res.Summary,
		Telemetry:     res.Telemetry,
		MessageTypes:  res.MessageTypes,
		TotalMessages: res.TotalMessages,
	}
	if err := i.store.CreateFlight(ctx, f); err != nil {
		return nil, fmt.Errorf("storing flight: %w", err)
	}
	return f, nil
}

func (i *Ingester) publish(e *model.Event) {
	if i.bus == nil {
		return
	}
	e.CreatedAt = i.now().UTC()
	i.bus.Publish(e)
}
