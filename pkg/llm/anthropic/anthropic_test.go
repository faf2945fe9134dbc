package anthropic

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ak-test" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		io.WriteString(w, `{"content":[{"type":"thinking","text":""},{"type":"text","text":"Battery sagged at 3:10."}]}`)
	}))
	defer srv.Close()

	c := New("ak-test", "claude-test", WithBaseURL(srv.URL+"/v1"))
	out, err := c.Complete(context.Background(), "system prompt", "battery?")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "Battery sagged at 3:10." {
		t.Errorf("Complete = %q", out)
	}
	if got["system"] != "system prompt" {
		t.Errorf("system = %v", got["system"])
	}
	if got["model"] != "claude-test" {
		t.Errorf("model = %v", got["model"])
	}
	if got["max_tokens"] != float64(DefaultMaxTokens) {
		t.Errorf("max_tokens = %v", got["max_tokens"])
	}
}

func TestComplete_NoText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"content":[]}`)
	}))
	defer srv.Close()

	_, err := New("k", "", WithBaseURL(srv.URL)).Complete(context.Background(), "s", "u")
	if err == nil || !strings.Contains(err.Error(), "no text content") {
		t.Fatalf("error = %v", err)
	}
}
