// Package transport is the HTTP gateway to the remote chat service.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ragchat/internal/domain"
)

const maxErrorBody = 4096

// Config configures the gateway.
type Config struct {
	BaseURL string
	Tokens  domain.TokenSource
	// HTTPClient overrides the pooled default client (tests pass the
	// httptest server's client here).
	HTTPClient *http.Client
	// Timeout bounds control-plane calls and the wait for response headers.
	Timeout time.Duration
	// RatePerMinute throttles outbound calls; zero disables throttling.
	RatePerMinute float64
	RateBurst     int
	Logger        *slog.Logger
}

// Client implements domain.Gateway over HTTP.
type Client struct {
	baseURL string
	tokens  domain.TokenSource
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ domain.Gateway = (*Client)(nil)

// New creates a gateway client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.RatePerMinute > 0 {
		if cfg.RateBurst <= 0 {
			cfg.RateBurst = 5
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60.0), cfg.RateBurst)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  cfg.Tokens,
		http:    cfg.HTTPClient,
		timeout: cfg.Timeout,
		limiter: limiter,
		logger:  cfg.Logger,
	}
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

// do sends an authenticated request. A 401 becomes ErrAuthExpired and any
// other non-2xx status becomes a *domain.NetworkError; in both cases the
// body is already closed.
func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	token := c.token()
	if token == "" {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrNotAuthenticated)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.send(req, op)
}

func (c *Client) send(req *http.Request, op string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, &domain.NetworkError{Op: op, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{Op: op, Err: err}
	}
	c.logger.Debug("gateway call", "op", op, "status", resp.StatusCode, "latency", time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp.Body)
		return nil, fmt.Errorf("%s: %w", op, domain.ErrAuthExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorDetail(resp.Body)
		resp.Body.Close()
		return nil, &domain.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(detail)}
	}
	return resp, nil
}

// doJSON runs a bounded control-plane call and decodes the JSON reply into
// out (which may be nil).
func (c *Client) doJSON(ctx context.Context, op string, build func(ctx context.Context) (*http.Request, error), out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := build(ctx)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	resp, err := c.do(req, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		drain(resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) url(path string) string { return c.baseURL + path }

// errorDetail extracts FastAPI-style {"detail": "..."} messages, falling
// back to the raw body.
func errorDetail(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(payload.Detail); err == nil {
			return string(b)
		}
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "empty response body"
	}
	return text
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	body.Close()
}
