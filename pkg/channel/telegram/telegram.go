// Package telegram provides a Telegram bot channel for uavlog. Flight logs
// sent as documents are uploaded, and text messages are answered by the
// chat backend. Every backend call goes through the API client.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/jxucoder/uavlog/pkg/apiclient"
	"github.com/jxucoder/uavlog/pkg/model"
)

// Backend is the subset of the API client the bot uses.
type Backend interface {
	UploadFlightFile(ctx context.Context, filename string, content io.Reader) (any, error)
	SendChatMessage(ctx context.Context, message string, flightID *string) (any, error)
	GetFlights(ctx context.Context) (any, error)
	GetFlightDetails(ctx context.Context, flightID string) (any, error)
}

// messenger is the part of the Telegram API the handlers need.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot is the Telegram bot for uavlog.
type Bot struct {
	bot     *tgbotapi.BotAPI
	api     messenger
	backend Backend
	http    *http.Client

	mu     sync.RWMutex
	active map[int64]string // chat ID -> selected flight ID
}

// NewBot creates a new Telegram bot.
func NewBot(token string, backend Backend) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating Telegram bot: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("Telegram bot authorized")

	b := newBot(api, backend)
	b.bot = api
	return b, nil
}

func newBot(api messenger, backend Backend) *Bot {
	return &Bot{
		api:     api,
		backend: backend,
		http:    http.DefaultClient,
		active:  make(map[int64]string),
	}
}

// Name returns the channel name.
func (b *Bot) Name() string { return "telegram" }

// Run starts the long-polling loop. Blocks until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.bot.GetUpdatesChan(u)
	log.Info().Msg("Telegram bot listening for messages")

	for {
		select {
		case <-ctx.Done():
			b.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				go b.handleMessage(ctx, update.Message)
			}
		}
	}
}

// ActiveFlight returns the flight selected in a chat, or "".
func (b *Bot) ActiveFlight(chatID int64) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active[chatID]
}

func (b *Bot) setActiveFlight(chatID int64, flightID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active[chatID] = flightID
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.Document != nil {
		b.handleDocument(ctx, chatID, msg.MessageID, msg.Document)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, chatID, msg.MessageID, text)
		return
	}
	b.handleChatMessage(ctx, chatID, msg.MessageID, text)
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, replyTo int, text string) {
	parts := strings.Fields(text)
	cmd := strings.ToLower(parts[0])
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}

	switch cmd {
	case "/start", "/help":
		b.sendHelp(chatID, replyTo)
	case "/flights":
		b.handleFlights(ctx, chatID, replyTo)
	case "/flight":
		if len(parts) < 2 {
			b.sendReply(chatID, replyTo, "Usage: `/flight <id>`")
			return
		}
		b.handleFlight(ctx, chatID, replyTo, parts[1])
	default:
		b.sendReply(chatID, replyTo, fmt.Sprintf("Unknown command `%s`\\. Try /help", escapeCode(cmd)))
	}
}

func (b *Bot) handleDocument(ctx context.Context, chatID int64, replyTo int, doc *tgbotapi.Document) {
	ext := strings.ToLower(filepath.Ext(doc.FileName))
	if ext != ".bin" && ext != ".log" {
		b.sendReply(chatID, replyTo, "Please send a `.bin` or `.log` flight log\\.")
		return
	}

	b.sendReply(chatID, replyTo, fmt.Sprintf("⚙ Uploading `%s`\\.\\.\\.", escapeCode(doc.FileName)))
	b.sendChatAction(chatID)

	body, err := b.download(ctx, doc.FileID)
	if err != nil {
		b.sendError(chatID, replyTo, "Could not download the file", err)
		return
	}
	defer body.Close()

	raw, err := b.backend.UploadFlightFile(ctx, doc.FileName, body)
	if err != nil {
		b.sendError(chatID, replyTo, "Upload failed", err)
		return
	}
	var up model.UploadResponse
	if err := apiclient.Into(raw, &up); err != nil {
		b.sendError(chatID, replyTo, "Unexpected upload response", err)
		return
	}

	b.setActiveFlight(chatID, up.FlightID)
	b.sendReply(chatID, replyTo, "✅ Flight uploaded\\. Ask me anything about it\\.\n\n"+
		formatSummary(up.FlightID, doc.FileName, up.Summary))
}

func (b *Bot) download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (b *Bot) handleFlights(ctx context.Context, chatID int64, replyTo int) {
	raw, err := b.backend.GetFlights(ctx)
	if err != nil {
		b.sendError(chatID, replyTo, "Could not list flights", err)
		return
	}
	var flights []model.FlightSummary
	if err := apiclient.Into(raw, &flights); err != nil {
		b.sendError(chatID, replyTo, "Unexpected flights response", err)
		return
	}
	b.sendReply(chatID, replyTo, formatFlightList(flights, b.ActiveFlight(chatID)))
}

func (b *Bot) handleFlight(ctx context.Context, chatID int64, replyTo int, id string) {
	raw, err := b.backend.GetFlightDetails(ctx, id)
	if err != nil {
		b.sendError(chatID, replyTo, "Could not load flight", err)
		return
	}
	var f model.Flight
	if err := apiclient.Into(raw, &f); err != nil {
		b.sendError(chatID, replyTo, "Unexpected flight response", err)
		return
	}
	b.setActiveFlight(chatID, f.ID)
	b.sendReply(chatID, replyTo, "Selected flight:\n\n"+formatSummary(f.ID, f.FileName, f.Summary))
}

func (b *Bot) handleChatMessage(ctx context.Context, chatID int64, replyTo int, text string) {
	b.sendChatAction(chatID)

	var flightID *string
	if id := b.ActiveFlight(chatID); id != "" {
		flightID = &id
	}
	raw, err := b.backend.SendChatMessage(ctx, text, flightID)
	if err != nil {
		b.sendError(chatID, replyTo, "Chat failed", err)
		return
	}
	var resp model.ChatResponse
	if err := apiclient.Into(raw, &resp); err != nil {
		b.sendError(chatID, replyTo, "Unexpected chat response", err)
		return
	}
	b.sendReply(chatID, replyTo, formatChatResponse(&resp))
}

func (b *Bot) sendHelp(chatID int64, replyTo int) {
	b.sendReply(chatID, replyTo, ""+
		"*uavlog* \\- UAV flight log analyst\\.\n\n"+
		"Send a `.bin` or `.log` DataFlash file to upload it\\.\n"+
		"Then ask questions about the flight in plain text\\.\n\n"+
		"*Commands:*\n"+
		"/flights \\- List uploaded flights\n"+
		"/flight \\<id\\> \\- Select a flight\n"+
		"/help \\- Show this message")
}

func (b *Bot) sendError(chatID int64, replyTo int, what string, err error) {
	log.Warn().Err(err).Int64("chat_id", chatID).Msg("Telegram: " + what)
	b.sendReply(chatID, replyTo, fmt.Sprintf("❌ %s: %s", escapeMarkdown(what), escapeMarkdown(err.Error())))
}

func (b *Bot) sendChatAction(chatID int64) {
	b.api.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
}

func (b *Bot) sendReply(chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	if _, err := b.api.Send(msg); err != nil {
		log.Warn().Err(err).Msg("Telegram: failed to send message")
		msg.ParseMode = ""
		msg.Text = stripMarkdown(text)
		b.api.Send(msg)
	}
}
