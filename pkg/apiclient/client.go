// Package apiclient is the HTTP client for the uavlog flight API.
//
// Each operation issues exactly one request and returns the decoded response
// body unchanged. Failures are logged once with a fixed per-operation message
// and returned to the caller as-is: transport errors are not wrapped, and
// non-2xx responses surface as *StatusError. There are no retries, caching or
// client-side timeouts.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the address of a locally running backend.
const DefaultBaseURL = "http://localhost:8000/api"

// FileField is the multipart field name carrying the uploaded log.
const FileField = "file"

// Default is the process-wide client against DefaultBaseURL.
var Default = New(DefaultBaseURL)

// Client talks to the flight API. Its fields are set once in New and never
// modified, so a Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. The default is a client
// with no timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger failures are reported to. The default is
// zerolog's package logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = &l }
}

// New creates a client for the API rooted at baseURL.
// baseURL defaults to DefaultBaseURL if empty.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root this client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UploadFlightFile uploads a flight log as a single multipart part named
// "file" and returns the parsed upload result.
func (c *Client) UploadFlightFile(ctx context.Context, filename string, content io.Reader) (any, error) {
	body, contentType, err := multipartBody(filename, content)
	if err != nil {
		c.logFailure("error uploading file", err)
		return nil, err
	}
	return c.do(ctx, "error uploading file", http.MethodPost, "/upload", contentType, body)
}

// SendChatMessage posts a chat message. A nil flightID is sent as an
// explicit JSON null.
func (c *Client) SendChatMessage(ctx context.Context, message string, flightID *string) (any, error) {
	payload, err := json.Marshal(chatPayload{Message: message, FlightID: flightID})
	if err != nil {
		c.logFailure("error sending chat message", err)
		return nil, err
	}
	return c.do(ctx, "error sending chat message", http.MethodPost, "/chat", "application/json", bytes.NewReader(payload))
}

// GetFlights returns the list of uploaded flights.
func (c *Client) GetFlights(ctx context.Context) (any, error) {
	return c.do(ctx, "error fetching flights", http.MethodGet, "/flights", "", nil)
}

// GetFlightDetails returns the full detail for one flight.
func (c *Client) GetFlightDetails(ctx context.Context, flightID string) (any, error) {
	return c.do(ctx, "error fetching flight details", http.MethodGet, "/flights/"+url.PathEscape(flightID), "", nil)
}

type chatPayload struct {
	Message  string  `json:"message"`
	FlightID *string `json:"flight_id"`
}

func multipartBody(filename string, content io.Reader) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(FileField, filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, failMsg, method, path, contentType string, body io.Reader) (any, error) {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		c.logFailure(failMsg, err)
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logFailure(failMsg, err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logFailure(failMsg, err)
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := &StatusError{
			Method:     method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
		c.logFailure(failMsg, err)
		return nil, err
	}
	return decodeBody(data), nil
}

// decodeBody parses a JSON body into plain Go values. Non-JSON bodies are
// returned as a string and empty bodies as nil.
func decodeBody(data []byte) any {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return v
}

func (c *Client) logFailure(msg string, err error) {
	l := log.Logger
	if c.logger != nil {
		l = *c.logger
	}
	l.Error().Err(err).Str("base_url", c.baseURL).Msg(msg)
}

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, strings.TrimSpace(e.Body))
}

// Into re-decodes an opaque response body into a typed value, such as a
// model.Flight or []model.FlightSummary.
func Into(body any, dst any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding response body: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}
