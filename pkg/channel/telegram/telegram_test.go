package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	fileURL  string
	failMode string // reject messages sent with this parse mode
}

func (f *fakeMessenger) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMode != "" && msg.ParseMode == f.failMode {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func (f *fakeMessenger) GetFileDirectURL(string) (string, error) {
	return f.fileURL, nil
}

func (f *fakeMessenger) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no message sent")
	return f.sent[len(f.sent)-1]
}

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) UploadFlightFile(ctx context.Context, filename string, content io.Reader) (any, error) {
	data, _ := io.ReadAll(content)
	args := m.Called(filename, string(data))
	return args.Get(0), args.Error(1)
}

func (m *mockBackend) SendChatMessage(ctx context.Context, message string, flightID *string) (any, error) {
	args := m.Called(message, flightID)
	return args.Get(0), args.Error(1)
}

func (m *mockBackend) GetFlights(ctx context.Context) (any, error) {
	args := m.Called()
	return args.Get(0), args.Error(1)
}

func (m *mockBackend) GetFlightDetails(ctx context.Context, flightID string) (any, error) {
	args := m.Called(flightID)
	return args.Get(0), args.Error(1)
}

func textMessage(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: chatID}, Text: text}
}

func TestDocumentUpload_SelectsFlight(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("LOGDATA"))
	}))
	defer files.Close()

	api := &fakeMessenger{fileURL: files.URL + "/file/bot/doc1"}
	backend := &mockBackend{}
	backend.On("UploadFlightFile", "00000001.BIN", "LOGDATA").Return(map[string]any{
		"flight_id": "f-1",
		"summary":   map[string]any{"duration": 12.5, "max_altitude": 80, "anomalies": []any{}},
		"message":   "Flight data uploaded and parsed successfully",
	}, nil)

	b := newBot(api, backend)
	b.handleMessage(context.Background(), &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: 42},
		Document:  &tgbotapi.Document{FileID: "doc1", FileName: "00000001.BIN"},
	})

	backend.AssertExpectations(t)
	assert.Equal(t, "f-1", b.ActiveFlight(42))
	reply := api.last(t)
	assert.Contains(t, reply.Text, "Flight uploaded")
	assert.Contains(t, reply.Text, "Duration: 12\\.5 s")
	assert.Contains(t, reply.Text, "ID: `f-1`")
	assert.Equal(t, tgbotapi.ModeMarkdownV2, reply.ParseMode)
}

func TestDocumentUpload_RejectsOtherFiles(t *testing.T) {
	api := &fakeMessenger{}
	backend := &mockBackend{}
	b := newBot(api, backend)

	b.handleMessage(context.Background(), &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 1},
		Document: &tgbotapi.Document{FileID: "x", FileName: "photo.jpg"},
	})

	backend.AssertNotCalled(t, "UploadFlightFile", mock.Anything, mock.Anything)
	assert.Contains(t, api.last(t).Text, "flight log")
}

func TestChatMessage_UsesActiveFlight(t *testing.T) {
	api := &fakeMessenger{}
	backend := &mockBackend{}
	backend.On("SendChatMessage", "any issues?", (*string)(nil)).Return(map[string]any{
		"response": "No flight selected.",
	}, nil).Once()
	backend.On("SendChatMessage", "any issues?", mock.MatchedBy(func(id *string) bool {
		return id != nil && *id == "f-9"
	})).Return(map[string]any{
		"response":              "Battery sagged (12.1V).",
		"proactive_suggestions": []any{"Check the pack."},
		"comparison_insights":   "Higher than usual",
	}, nil).Once()

	b := newBot(api, backend)
	ctx := context.Background()

	b.handleMessage(ctx, textMessage(5, "any issues?"))
	assert.Equal(t, "No flight selected\\.", api.last(t).Text)

	b.setActiveFlight(5, "f-9")
	b.handleMessage(ctx, textMessage(5, "any issues?"))
	reply := api.last(t).Text
	assert.Contains(t, reply, "Battery sagged \\(12\\.1V\\)\\.")
	assert.Contains(t, reply, "💡 Check the pack\\.")
	assert.Contains(t, reply, "📊 Higher than usual")
	backend.AssertExpectations(t)
}

func TestFlightsCommand(t *testing.T) {
	api := &fakeMessenger{}
	backend := &mockBackend{}
	backend.On("GetFlights").Return([]any{
		map[string]any{"flight_id": "a", "file_name": "one.bin", "summary": map[string]any{"duration": 60}},
		map[string]any{"flight_id": "b", "file_name": "two_x.log", "summary": map[string]any{"duration": 5.5}},
	}, nil).Once()
	backend.On("GetFlights").Return([]any{}, nil).Once()

	b := newBot(api, backend)
	b.setActiveFlight(3, "b")

	b.handleMessage(context.Background(), textMessage(3, "/flights@uavlog_bot"))
	reply := api.last(t).Text
	assert.Contains(t, reply, "`a` one\\.bin \\(60\\.0 s\\)")
	assert.Contains(t, reply, "`b` two\\_x\\.log \\(5\\.5 s\\) ◀")

	b.handleMessage(context.Background(), textMessage(3, "/flights"))
	assert.Contains(t, api.last(t).Text, "No flights uploaded yet")
}

func TestFlightCommand(t *testing.T) {
	api := &fakeMessenger{}
	backend := &mockBackend{}
	backend.On("GetFlightDetails", "abc").Return(map[string]any{
		"flight_id": "abc",
		"file_name": "f.bin",
		"summary":   map[string]any{"anomalies": []any{"Low battery voltage detected"}},
	}, nil)
	backend.On("GetFlightDetails", "nope").Return(nil, errors.New("status 404: Flight not found"))

	b := newBot(api, backend)
	ctx := context.Background()

	b.handleMessage(ctx, textMessage(9, "/flight"))
	assert.Contains(t, api.last(t).Text, "Usage")

	b.handleMessage(ctx, textMessage(9, "/flight abc"))
	assert.Equal(t, "abc", b.ActiveFlight(9))
	assert.Contains(t, api.last(t).Text, "• Low battery voltage detected")

	b.handleMessage(ctx, textMessage(9, "/flight nope"))
	assert.Equal(t, "abc", b.ActiveFlight(9), "failed lookup keeps the selection")
	assert.Contains(t, api.last(t).Text, "❌ Could not load flight")
}

func TestUnknownCommandAndHelp(t *testing.T) {
	api := &fakeMessenger{}
	b := newBot(api, &mockBackend{})

	b.handleMessage(context.Background(), textMessage(1, "/launch"))
	assert.Contains(t, api.last(t).Text, "Unknown command `/launch`")

	b.handleMessage(context.Background(), textMessage(1, "/help"))
	assert.Contains(t, api.last(t).Text, "/flights")
}

func TestSendReply_FallsBackToPlainText(t *testing.T) {
	api := &fakeMessenger{failMode: tgbotapi.ModeMarkdownV2}
	b := newBot(api, &mockBackend{})

	b.sendReply(1, 0, "Done\\. \\(ok\\)")
	reply := api.last(t)
	assert.Empty(t, reply.ParseMode)
	assert.Equal(t, "Done. (ok)", reply.Text)
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"1.5 m/s", "1\\.5 m/s"},
		{"a_b*c", "a\\_b\\*c"},
		{"(x) [y] {z}", "\\(x\\) \\[y\\] \\{z\\}"},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		got := escapeMarkdown(tt.in)
		if got != tt.want {
			t.Errorf("escapeMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if back := stripMarkdown(got); back != tt.in {
			t.Errorf("stripMarkdown(%q) = %q, want %q", got, back, tt.in)
		}
	}

	if got := escapeCode("a`b-c"); got != "a\\`b-c" {
		t.Errorf("escapeCode = %q", got)
	}
}
