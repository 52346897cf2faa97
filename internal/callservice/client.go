package callservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/optilead/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// ErrNotConfigured is returned when the base URL or API key is missing.
var ErrNotConfigured = errors.New("Call Service URL or API Key not set")

// Client talks to the external calling microservice.
type Client struct {
	baseURL    string
	apiKey     string
	format     string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records upstream latency and outcome on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger used for upstream warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the calling service at baseURL. format is
// FormatCamel or FormatSnake; anything else is treated as FormatCamel.
func NewClient(baseURL, apiKey, format string, opts ...Option) *Client {
	if format != FormatSnake {
		format = FormatCamel
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		format:     format,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Format returns the payload format used for start-call requests.
func (c *Client) Format() string {
	return c.format
}

// StartCall forwards req to {base}/api/start-call in the configured payload
// format and returns the upstream status and JSON body. A body that is not
// JSON yields a *NonJSONError. The request is not validated here.
func (c *Client) StartCall(ctx context.Context, req Request) (resp Response, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveUpstream(metrics.UpstreamCallService, start, err) }()

	body, err := json.Marshal(req.payload(c.format))
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/start-call", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("executing request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}
	if !json.Valid(raw) {
		return Response{}, &NonJSONError{StatusCode: httpResp.StatusCode, Raw: string(raw)}
	}

	if c.format == FormatSnake {
		c.checkPromptEcho(req.PromptID, raw)
	}

	return Response{StatusCode: httpResp.StatusCode, Body: raw}, nil
}

// checkPromptEcho warns when the service does not confirm the prompt it was
// asked to use.
func (c *Client) checkPromptEcho(sent string, raw []byte) {
	var echo struct {
		PromptID     *string `json:"prompt_id"`
		SystemPrompt *string `json:"system_prompt"`
	}
	if err := json.Unmarshal(raw, &echo); err != nil {
		return
	}
	switch {
	case echo.PromptID == nil && echo.SystemPrompt == nil:
		c.logger.Warn("call service response has no prompt_id or system_prompt", "sent_prompt_id", sent)
	case echo.PromptID != nil && *echo.PromptID != sent:
		c.logger.Warn("call service prompt_id mismatch", "sent", sent, "received", *echo.PromptID)
	}
}

// TriggerOutboundCall asks the service to dial toPhone via its Twilio
// endpoint. Failures are reported in the Result, never as an error.
func (c *Client) TriggerOutboundCall(ctx context.Context, toPhone string) Result {
	if c.baseURL == "" || c.apiKey == "" {
		return Result{Success: false, Message: ErrNotConfigured.Error()}
	}

	var err error
	start := time.Now()
	defer func() { c.metrics.ObserveUpstream(metrics.UpstreamCallService, start, err) }()

	endpoint := c.baseURL + "/twilio/call?to_phone=" + url.QueryEscape(toPhone)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader("{}"))
	if err != nil {
		return Result{Success: false, Message: "Error: " + err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{Success: false, Message: "Error: " + err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		return Result{Success: false, Message: "Call failed: " + string(text)}
	}
	return Result{Success: true, Message: "Call initiated successfully!"}
}
