// Package server provides the uavlog HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jxucoder/uavlog/internal/chat"
	"github.com/jxucoder/uavlog/internal/ingest"
	"github.com/jxucoder/uavlog/internal/logging"
	"github.com/jxucoder/uavlog/internal/memory"
	"github.com/jxucoder/uavlog/internal/store"
	"github.com/jxucoder/uavlog/pkg/apiclient"
	"github.com/jxucoder/uavlog/pkg/eventbus"
	"github.com/jxucoder/uavlog/pkg/model"
)

// Config holds the HTTP-facing settings.
type Config struct {
	// UploadDir is where uploaded logs are saved before ingestion.
	UploadDir string
	// MaxUploadSize caps the upload request body in bytes.
	MaxUploadSize int64
	// CORSOrigins lists origins allowed to call the API.
	CORSOrigins []string
	// Retention is how long an idle conversation is kept.
	Retention time.Duration
	// CleanupInterval is how often expired conversations are removed.
	CleanupInterval time.Duration
}

// FlightStore reads stored flights.
type FlightStore interface {
	ListFlights(ctx context.Context) ([]*model.FlightSummary, error)
	GetFlight(ctx context.Context, id string) (*model.Flight, error)
}

// Server is the uavlog HTTP API server.
type Server struct {
	config   Config
	flights  FlightStore
	ingester *ingest.Ingester
	chat     *chat.Service
	memory   *memory.Memory
	bus      eventbus.Bus
	validate *validator.Validate
	router   chi.Router
}

// New creates a Server. bus and mem may be nil, which disables the event
// stream and the conversation reaper.
func New(cfg Config, flights FlightStore, ing *ingest.Ingester, chatSvc *chat.Service, mem *memory.Memory, bus eventbus.Bus) *Server {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 100 << 20
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = memory.DefaultRetention
	}

	s := &Server{
		config:   cfg,
		flights:  flights,
		ingester: ing,
		chat:     chatSvc,
		memory:   mem,
		bus:      bus,
		validate: newValidator(),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(s.config.CORSOrigins))
	r.Use(recordMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/chat", s.handleChat)
		r.Get("/flights", s.handleListFlights)
		r.Get("/flights/{flightID}", s.handleGetFlight)
		r.Get("/events", s.handleEvents)
	})

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// --- Handlers ---

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.config.MaxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, tooLarge(s.config.MaxUploadSize))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize)

	file, header, err := r.FormFile(apiclient.FileField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, tooLarge(s.config.MaxUploadSize))
			return
		}
		writeError(w, http.StatusBadRequest, "no file provided in field \""+apiclient.FileField+"\"")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !s.ingester.Supported(name) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Only %s files are supported", strings.Join(s.ingester.Extensions(), ", ")))
		return
	}

	path, err := s.saveUpload(file, name)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, tooLarge(s.config.MaxUploadSize))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	flight, err := s.ingester.IngestFile(r.Context(), path, name)
	if err != nil {
		os.Remove(path)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.UploadResponse{
		FlightID:  flight.ID,
		Summary:   flight.Summary,
		Telemetry: flight.Telemetry,
		Message:   "Flight data uploaded and parsed successfully",
	})
}

// saveUpload copies an uploaded file into the upload directory under a
// unique name.
func (s *Server) saveUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(s.config.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}
	path := filepath.Join(s.config.UploadDir, uuid.NewString()[:8]+"_"+name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("saving upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("saving upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("saving upload: %w", err)
	}
	return path, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, s.chat.ProcessMessage(r.Context(), req.Message, req.FlightID))
}

func (s *Server) handleListFlights(w http.ResponseWriter, r *http.Request) {
	flights, err := s.flights.ListFlights(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, flights)
}

func (s *Server) handleGetFlight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "flightID")
	f, err := s.flights.GetFlight(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Flight not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handleEvents streams flight and chat events. With ?flight_id= only that
// flight's events are sent.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusNotFound, "event stream disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	key := r.URL.Query().Get("flight_id")
	if key == "" {
		key = eventbus.All
	}
	ch := s.bus.Subscribe(key)
	defer s.bus.Unsubscribe(key, ch)

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

// --- Background work ---

// RunReaper removes idle conversations every CleanupInterval until ctx is
// done.
func (s *Server) RunReaper(ctx context.Context) {
	if s.memory == nil {
		return
	}
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.memory.Cleanup(ctx, s.config.Retention); err != nil {
				logging.Error().Err(err).Msg("Conversation cleanup failed")
			}
		}
	}
}

// --- Helpers ---

func tooLarge(limit int64) string {
	return fmt.Sprintf("file exceeds the %d byte upload limit", limit)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Detail: msg})
}

func writeSSE(w io.Writer, event *model.Event) {
	data, _ := json.Marshal(event)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
}
