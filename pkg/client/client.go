// Package client provides the events API retrieval client with quota-aware
// request gating, outcome classification, and bounded retry of transient failures.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/event-ingest/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// HeaderAPIKey carries the API credential.
const HeaderAPIKey = "X-API-Key"

// eventsPath is appended to the base URL.
const eventsPath = "events"

// maxErrorBody bounds how much of an error body is kept for messages.
const maxErrorBody = 512

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, e.g. "https://api.example.com/api/v1".
	BaseURL string

	// APIKey sent in the X-API-Key header (REQUIRED).
	APIKey string

	// Timeout per HTTP request.
	Timeout time.Duration

	// Retry bounds for transient failures.
	Retry RetryConfig

	// HTTPClient overrides the default client (optional).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 30 * time.Second,
		Retry:   DefaultRetryConfig(),
	}
}

// Client fetches pages from the events API.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	endpoint   *url.URL
	config     Config
	logger     zerolog.Logger
	sleep      ratelimit.SleepFunc
}

// Option customises a Client.
type Option func(*Client)

// WithSleep replaces the backoff sleep function (for testing).
func WithSleep(sleep ratelimit.SleepFunc) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// New creates a new events API client.
func New(cfg Config, limiter *ratelimit.Limiter, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}
	endpoint := base.JoinPath(eventsPath)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		httpClient: httpClient,
		limiter:    limiter,
		endpoint:   endpoint,
		config:     cfg,
		logger:     logger.With().Str("component", "events-client").Logger(),
		sleep:      ratelimit.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchPage retrieves one page starting at cursor (empty for the start of the stream).
//
// Quota rejections (429) are waited out and retried without consuming the retry
// budget. A 400 for a request that carried a cursor fails with ErrCursorExpired.
// 5xx and network failures are retried with exponential backoff up to
// Retry.MaxAttempts; anything else fails immediately.
func (c *Client) FetchPage(ctx context.Context, cursor Cursor, limit int) (*Page, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive (got %d)", ErrInvalidRequest, limit)
	}

	var page *Page
	err := retryWithBackoff(ctx, c.config.Retry, c.sleep, c.logger, func() error {
		p, err := c.fetchOnce(ctx, cursor, limit)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("cursor", cursor.String()).
		Int("events", len(page.Events)).
		Str("next_cursor", page.NextCursor.String()).
		Bool("has_more", page.HasMore).
		Msg("Page fetched")

	return page, nil
}

// fetchOnce performs one logical attempt. Rate limit rejections loop here so they
// never count against the retry budget.
func (c *Client) fetchOnce(ctx context.Context, cursor Cursor, limit int) (*Page, error) {
	for {
		if err := c.limiter.WaitIfNeeded(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		resp, err := c.do(ctx, cursor, limit)
		if err != nil {
			return nil, err
		}

		c.limiter.UpdateFromHeaders(resp.Header)

		if resp.StatusCode == http.StatusTooManyRequests {
			drainAndClose(resp.Body)
			requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
			errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()

			if err := c.limiter.OnRateLimitRejection(ctx, resp.Header); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
			}
			continue
		}

		return c.handleResponse(resp, cursor)
	}
}

// do issues the HTTP request. Transport failures are classified as network errors.
func (c *Client) do(ctx context.Context, cursor Cursor, limit int) (*http.Response, error) {
	u := *c.endpoint
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	if !cursor.IsZero() {
		q.Set("cursor", cursor.String())
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(HeaderAPIKey, c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		c.logger.Warn().Err(err).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		return nil, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	return resp, nil
}

// handleResponse classifies a non-429 response and decodes success bodies.
func (c *Client) handleResponse(resp *http.Response, cursor Cursor) (*Page, error) {
	defer drainAndClose(resp.Body)

	status := resp.StatusCode
	requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()

	if status >= 200 && status < 300 {
		var body eventsResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassClient)).Inc()
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return body.toPage(), nil
	}

	errClass := classifyStatus(status, cursor)
	errorsTotal.WithLabelValues(string(errClass)).Inc()

	apiErr := &APIError{
		StatusCode: status,
		ErrorClass: errClass,
		Message:    readErrorMessage(resp),
	}
	if errClass == ErrorClassCursorExpired {
		apiErr.Err = ErrCursorExpired
	}

	c.logger.Warn().
		Int("status", status).
		Str("error_class", string(errClass)).
		Str("cursor", cursor.String()).
		Msg("Events API request error")

	return nil, apiErr
}

// classifyStatus maps a non-success status to an ErrorClass. A 400 only means an
// expired cursor when the request carried one; without a cursor it is a plain
// client error and restarting would loop forever.
func classifyStatus(status int, cursor Cursor) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status == http.StatusBadRequest && !cursor.IsZero():
		return ErrorClassCursorExpired
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

func readErrorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return resp.Status
	}
	return strings.TrimSpace(string(data))
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

// IsCursorExpired reports whether err signals an invalidated cursor.
func IsCursorExpired(err error) bool {
	return errors.Is(err, ErrCursorExpired)
}
