// Package transport provides resilient HTTP request execution for the
// collaboration-platform REST API: per-request transport selection, retry
// with capped exponential backoff and jitter, per-attempt timeouts via
// context cancellation, correlation tagging, and JSON-or-text response
// parsing.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sitekit/sitekit/pkg/errors"
	"github.com/sitekit/sitekit/pkg/logging"
	"github.com/sitekit/sitekit/pkg/retry"
	"github.com/sitekit/sitekit/pkg/types"
)

// Kind identifies the execution path selected for a request. Selection
// happens once per request, before any retry attempt, and does not change
// across retries.
type Kind int

const (
	// KindGeneric is the default plain HTTP path.
	KindGeneric Kind = iota

	// KindPlatform is the host platform's own API surface.
	KindPlatform

	// KindToken is the token-authenticated path for function endpoints.
	KindToken
)

// String returns the string representation of a transport kind
func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindPlatform:
		return "platform"
	case KindToken:
		return "token"
	default:
		return "unknown"
	}
}

// Config represents transport configuration
type Config struct {
	// PlatformBaseURL is the host platform's API origin; requests whose
	// host matches it take the platform-native path.
	PlatformBaseURL string

	// Timeout bounds each individual attempt, not the overall call.
	Timeout time.Duration

	// Retries is the number of retries after the initial attempt.
	Retries int

	// EnableAuth allows the token path to be selected when a request
	// supplies a target resource.
	EnableAuth bool

	// CorrelationID is attached to every request and log entry.
	CorrelationID string

	UserAgent string
}

// Options carries per-request overrides and transport-selection inputs.
type Options struct {
	// Headers are added to the request after the transport's own headers.
	Headers map[string]string

	// Resource selects the token path when non-empty and auth is enabled.
	Resource string

	// IdempotencyKey tags the request so the receiving side can deduplicate
	// retried triggers.
	IdempotencyKey string

	// Timeout overrides the per-attempt timeout when positive.
	Timeout time.Duration

	// Retries overrides the configured retry budget when non-nil.
	Retries *int
}

// Response is the parsed result of a request. Duration covers the overall
// call including backoff delays and all attempts, not just the final one.
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	JSON       json.RawMessage   `json:"json,omitempty"`
	Text       string            `json:"text,omitempty"`
	Duration   time.Duration     `json:"duration"`
	Attempts   int               `json:"attempts"`
	FromCache  bool              `json:"from_cache"`
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v interface{}) error {
	if r.JSON == nil {
		return errors.NewError(errors.ErrCodeResponseMalformed, "response body is not JSON")
	}
	if err := json.Unmarshal(r.JSON, v); err != nil {
		return errors.Wrap(errors.ErrCodeResponseMalformed, "failed to decode response body", err)
	}
	return nil
}

// Client executes requests against the remote REST API.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *logging.Logger
	metrics    types.MetricsRecorder
	handle     types.PlatformHandle
	retryer    *retry.Retryer
}

// New creates a new transport client. handle may be nil when the token path
// is never used; metrics may be nil to disable timing capture.
func New(config Config, logger *logging.Logger, metrics types.MetricsRecorder, handle types.PlatformHandle) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Retries < 0 {
		config.Retries = 0
	}

	return &Client{
		// Per-attempt deadlines come from the request context, so the
		// underlying client carries no timeout of its own.
		httpClient: &http.Client{},
		config:     config,
		logger:     logger,
		metrics:    metrics,
		handle:     handle,
		retryer:    retry.New(retry.DefaultConfig()),
	}
}

// SetMetrics attaches a metrics recorder after construction. The logger is
// wired first during bootstrap, then the transport, then the tracker, so
// the recorder arrives late.
func (c *Client) SetMetrics(metrics types.MetricsRecorder) {
	c.metrics = metrics
}

// Get executes a GET request.
func (c *Client) Get(ctx context.Context, rawURL string, opts *Options) (*Response, error) {
	return c.execute(ctx, http.MethodGet, rawURL, nil, opts)
}

// Post executes a POST request with a JSON-serializable body.
func (c *Client) Post(ctx context.Context, rawURL string, body interface{}, opts *Options) (*Response, error) {
	return c.execute(ctx, http.MethodPost, rawURL, body, opts)
}

// CallFunction invokes a token-authenticated remote function endpoint.
func (c *Client) CallFunction(ctx context.Context, rawURL, resource string, body interface{}) (*Response, error) {
	return c.execute(ctx, http.MethodPost, rawURL, body, &Options{Resource: resource})
}

// TriggerFlow invokes a webhook-style endpoint, optionally tagging the
// request with an idempotency key so retried triggers deduplicate.
func (c *Client) TriggerFlow(ctx context.Context, rawURL string, payload interface{}, idempotencyKey string) (*Response, error) {
	return c.execute(ctx, http.MethodPost, rawURL, payload, &Options{IdempotencyKey: idempotencyKey})
}

// SelectKind chooses the execution path for a request. Exposed for tests.
func (c *Client) SelectKind(rawURL string, opts *Options) Kind {
	if opts != nil && opts.Resource != "" && c.config.EnableAuth {
		return KindToken
	}
	if c.isPlatformURL(rawURL) {
		return KindPlatform
	}
	return KindGeneric
}

func (c *Client) isPlatformURL(rawURL string) bool {
	if c.config.PlatformBaseURL == "" {
		return false
	}
	reqURL, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	baseURL, err := url.Parse(c.config.PlatformBaseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(reqURL.Host, baseURL.Host)
}

func (c *Client) execute(ctx context.Context, method, rawURL string, body interface{}, opts *Options) (*Response, error) {
	start := time.Now()
	kind := c.SelectKind(rawURL, opts)

	timeout := c.config.Timeout
	retries := c.config.Retries
	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if opts.Retries != nil && *opts.Retries >= 0 {
			retries = *opts.Retries
		}
	}
	maxAttempts := retries + 1

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternalError, "failed to serialize request body", err).
				WithComponent("transport").WithOperation(method)
		}
	}

	// Token fetched once per logical request; all retries reuse it
	var token string
	if kind == KindToken {
		t, err := c.handleToken(ctx, opts.Resource)
		if err != nil {
			return nil, err
		}
		token = t
	}

	var lastErr error
	attemptsMade := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptsMade = attempt
		resp, err := c.attempt(ctx, method, rawURL, bodyBytes, opts, kind, token, timeout)
		if err == nil {
			resp.Duration = time.Since(start)
			resp.Attempts = attempt
			c.record(method, resp.Duration, true)
			c.logger.Info("request succeeded", map[string]interface{}{
				"method":    method,
				"url":       sanitizeURL(rawURL),
				"status":    resp.StatusCode,
				"attempt":   attempt,
				"transport": kind.String(),
			})
			return resp, nil
		}

		lastErr = err
		if !errors.IsRetryable(err) || attempt == maxAttempts {
			break
		}

		delay := c.retryer.Delay(attempt)
		c.logger.Warn("request failed, retrying", map[string]interface{}{
			"method":   method,
			"url":      sanitizeURL(rawURL),
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.record(method, time.Since(start), false)
			return nil, errors.Wrap(errors.ErrCodeNetworkError,
				fmt.Sprintf("request canceled after %d attempts", attempt), ctx.Err()).
				WithComponent("transport").WithOperation(method).
				WithCorrelationID(c.config.CorrelationID).
				WithRetryable(false)
		case <-timer.C:
		}
	}

	c.record(method, time.Since(start), false)
	c.logger.Error("request failed", map[string]interface{}{
		"method":    method,
		"url":       sanitizeURL(rawURL),
		"transport": kind.String(),
		"attempts":  attemptsMade,
		"error":     lastErr.Error(),
	})
	return nil, lastErr
}

// attempt performs one HTTP attempt, racing it against the per-attempt
// timeout via context cancellation so a timed-out request is cancelled at
// the wire level rather than abandoned.
func (c *Client) attempt(ctx context.Context, method, rawURL string, body []byte, opts *Options, kind Kind, token string, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, rawURL, reader)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetworkError, "failed to build request", err).
			WithComponent("transport").WithOperation(method).
			WithCorrelationID(c.config.CorrelationID).
			WithRetryable(false)
	}

	c.applyHeaders(req, opts, kind, token, body != nil)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifyTransportError(err, attemptCtx, method)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetworkError, "failed to read response body", err).
			WithComponent("transport").WithOperation(method).
			WithCorrelationID(c.config.CorrelationID)
	}

	if code := errors.FromHTTPStatus(httpResp.StatusCode); code != "" {
		return nil, errors.NewError(code,
			fmt.Sprintf("request returned HTTP %d", httpResp.StatusCode)).
			WithHTTPStatus(httpResp.StatusCode).
			WithComponent("transport").WithOperation(method).
			WithCorrelationID(c.config.CorrelationID).
			WithDetail("body", truncate(string(raw), 512))
	}

	return parseResponse(httpResp, raw), nil
}

func (c *Client) applyHeaders(req *http.Request, opts *Options, kind Kind, token string, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Correlation-Id", c.config.CorrelationID)
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}

	switch kind {
	case KindPlatform:
		req.Header.Set("Accept", "application/json;odata.metadata=minimal")
		req.Header.Set("OData-Version", "4.0")
	case KindToken:
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if opts != nil {
		if opts.IdempotencyKey != "" {
			req.Header.Set("Idempotency-Key", opts.IdempotencyKey)
		}
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
	}
}

func (c *Client) handleToken(ctx context.Context, resource string) (string, error) {
	if c.handle == nil {
		return "", errors.NewError(errors.ErrCodeTokenUnavailable, "no platform handle configured for token auth").
			WithComponent("transport").
			WithCorrelationID(c.config.CorrelationID)
	}
	token, err := c.handle.AuthToken(ctx, resource)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeAuthenticationFailed, "failed to acquire auth token", err).
			WithComponent("transport").
			WithCorrelationID(c.config.CorrelationID).
			WithDetail("resource", resource)
	}
	return token, nil
}

func (c *Client) classifyTransportError(err error, attemptCtx context.Context, method string) error {
	if attemptCtx.Err() == context.DeadlineExceeded {
		return errors.Wrap(errors.ErrCodeRequestTimeout, "request timed out", err).
			WithComponent("transport").WithOperation(method).
			WithCorrelationID(c.config.CorrelationID)
	}
	return errors.Wrap(errors.ErrCodeNetworkError, "request failed", err).
		WithComponent("transport").WithOperation(method).
		WithCorrelationID(c.config.CorrelationID)
}

func (c *Client) record(method string, duration time.Duration, success bool) {
	if c.metrics != nil {
		c.metrics.Record("http."+strings.ToLower(method), duration, success)
	}
}

func parseResponse(httpResp *http.Response, raw []byte) *Response {
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    make(map[string]string, len(httpResp.Header)),
	}
	for name, values := range httpResp.Header {
		if len(values) > 0 {
			resp.Headers[name] = values[0]
		}
	}

	trimmed := bytes.TrimSpace(raw)
	if json.Valid(trimmed) && len(trimmed) > 0 {
		resp.JSON = json.RawMessage(trimmed)
	} else {
		resp.Text = string(raw)
	}
	return resp
}

// sanitizeURL strips query strings before logging; queries can carry
// tokens and filter payloads.
func sanitizeURL(rawURL string) string {
	if idx := strings.IndexByte(rawURL, '?'); idx >= 0 {
		return rawURL[:idx]
	}
	return rawURL
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
