// Package uavlog is the top-level entry point for the uavlog backend.
//
// Use the Builder to compose an application from configuration:
//
//	cfg, err := config.Load()
//	app, err := uavlog.NewBuilder().WithConfig(cfg).Build()
//	app.Start(ctx)
//
// Or replace individual components:
//
//	app, err := uavlog.NewBuilder().
//	    WithStore(myStore).
//	    WithLLM(myClient).
//	    Build()
package uavlog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jxucoder/uavlog/internal/chat"
	"github.com/jxucoder/uavlog/internal/config"
	"github.com/jxucoder/uavlog/internal/ingest"
	"github.com/jxucoder/uavlog/internal/logging"
	"github.com/jxucoder/uavlog/internal/memory"
	"github.com/jxucoder/uavlog/internal/metrics"
	"github.com/jxucoder/uavlog/internal/server"
	"github.com/jxucoder/uavlog/internal/store"
	"github.com/jxucoder/uavlog/internal/watcher"
	"github.com/jxucoder/uavlog/pkg/apiclient"
	"github.com/jxucoder/uavlog/pkg/channel"
	"github.com/jxucoder/uavlog/pkg/channel/telegram"
	"github.com/jxucoder/uavlog/pkg/eventbus"
	"github.com/jxucoder/uavlog/pkg/llm"
)

const shutdownTimeout = 10 * time.Second

// Builder constructs a uavlog App.
type Builder struct {
	config   *config.Config
	store    *store.Store
	bus      eventbus.Bus
	llm      llm.Client
	llmSet   bool
	channels []channel.Channel
}

// NewBuilder creates a new Builder. Components left unset are created from
// the configuration in Build.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the application configuration.
func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the flight and memory store.
func (b *Builder) WithStore(s *store.Store) *Builder {
	b.store = s
	return b
}

// WithBus sets the event bus implementation.
func (b *Builder) WithBus(bus eventbus.Bus) *Builder {
	b.bus = bus
	return b
}

// WithLLM sets the LLM client used by the chat service. A nil client
// forces the fallback answers even when API keys are configured.
func (b *Builder) WithLLM(client llm.Client) *Builder {
	b.llm = client
	b.llmSet = true
	return b
}

// WithChannel adds a channel that runs next to the HTTP server.
func (b *Builder) WithChannel(ch channel.Channel) *Builder {
	b.channels = append(b.channels, ch)
	return b
}

// Build creates the App. Missing components are filled with defaults.
func (b *Builder) Build() (*App, error) {
	if err := applyDefaults(b); err != nil {
		return nil, err
	}
	cfg := b.config

	mem := memory.New(b.store, b.store)
	chatSvc := chat.New(b.store, mem, b.llm, chat.WithEventBus(b.bus))
	ing := ingest.New(b.store, b.bus, cfg.AllowedExtensions)

	srv := server.New(server.Config{
		UploadDir:       cfg.UploadDir,
		MaxUploadSize:   cfg.MaxUploadSize,
		CORSOrigins:     cfg.CORSOrigins,
		Retention:       cfg.Memory.Retention,
		CleanupInterval: cfg.Memory.CleanupInterval,
	}, b.store, ing, chatSvc, mem, b.bus)

	channels := b.channels
	if cfg.WatchEnabled() {
		channels = append(channels, watcher.New(cfg.WatchDir, cfg.WatchDebounce, ing))
	}
	if cfg.TelegramEnabled() {
		bot, err := telegram.NewBot(cfg.Telegram.BotToken, apiclient.New(cfg.ServerURL))
		if err != nil {
			b.store.Close()
			return nil, err
		}
		channels = append(channels, bot)
	}

	logging.Info().
		Str("provider", chatSvc.Provider()).
		Str("data_dir", cfg.DataDir).
		Int("channels", len(channels)).
		Msg("uavlog configured")

	return &App{
		config:   cfg,
		store:    b.store,
		server:   srv,
		chat:     chatSvc,
		channels: channels,
	}, nil
}

// App is a configured uavlog application.
type App struct {
	config   *config.Config
	store    *store.Store
	server   *server.Server
	chat     *chat.Service
	channels []channel.Channel
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler { return a.server.Router() }

// Channels returns the channels started with the server.
func (a *App) Channels() []channel.Channel { return a.channels }

// Start serves HTTP, runs the memory reaper and all channels. Blocks until
// ctx is done, then shuts down and closes the store.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.server.RunReaper(ctx)
	}()

	for _, ch := range a.channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ch.Run(ctx); err != nil {
				logging.Error().Err(err).Str("channel", ch.Name()).Msg("Channel stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:              a.config.Addr,
		Handler:           a.server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("HTTP shutdown")
		}
	}()

	logging.Info().Str("addr", a.config.Addr).Msg("uavlog server listening")
	err := srv.ListenAndServe()
	cancel()
	wg.Wait()

	if closeErr := a.store.Close(); closeErr != nil {
		logging.Warn().Err(closeErr).Msg("Closing store")
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// applyDefaults fills in missing fields on the builder.
func applyDefaults(b *Builder) error {
	if b.config == nil {
		b.config = config.Default()
	}
	cfg := b.config
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(cfg.DataDir, "uploads")
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = ingest.DefaultExtensions
	}

	for _, dir := range []string{cfg.DataDir, cfg.UploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	if b.store == nil {
		st, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("initializing store: %w", err)
		}
		b.store = st
	}

	if b.bus == nil {
		b.bus = eventbus.NewInMemoryBus()
	}

	if !b.llmSet {
		client, err := llm.NewFromKeys(context.Background(), llm.Keys{
			OpenAI:         cfg.LLM.OpenAIAPIKey,
			Anthropic:      cfg.LLM.AnthropicAPIKey,
			Google:         cfg.LLM.GoogleAPIKey,
			OpenAIModel:    cfg.LLM.OpenAIModel,
			AnthropicModel: cfg.LLM.AnthropicModel,
			GeminiModel:    cfg.LLM.GeminiModel,
			MaxTokens:      cfg.LLM.MaxTokens,
			Observer:       metrics.LLMObserver{},
		})
		if err != nil {
			return fmt.Errorf("initializing LLM client: %w", err)
		}
		b.llm = client
	}

	return nil
}
