// Package gemini implements llm.Client using the Google Gen AI SDK.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	DefaultModel     = "gemini-2.5-flash"
	DefaultMaxTokens = 700
)

// Client implements llm.Client against the Gemini API.
type Client struct {
	genai     *genai.Client
	model     string
	maxTokens int32
}

// Option configures a Client.
type Option func(*options)

type options struct {
	baseURL   string
	maxTokens int
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithMaxTokens sets the output token limit.
func WithMaxTokens(n int) Option {
	return func(o *options) { o.maxTokens = n }
}

// New creates a Gemini client. Model defaults to DefaultModel if empty.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Client, error) {
	o := options{maxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(&o)
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if o.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: o.baseURL}
	}
	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Client{genai: gc, model: model, maxTokens: int32(o.maxTokens)}, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return "gemini" }

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	temperature := float32(0.7)
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(user), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		},
		MaxOutputTokens: c.maxTokens,
		Temperature:     &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("gemini API: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates in response")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text content in response")
	}
	return b.String(), nil
}
