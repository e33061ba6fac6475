// Package httpx is the HTTP fetcher shared by the crawl controllers: paced
// requests and a fixed-delay retry on rate-limit responses.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"virtualta/internal/domain"
)

// Config controls pacing and rate-limit handling.
type Config struct {
	// RateLimitDelay is slept before retrying a rate-limited request.
	RateLimitDelay time.Duration
	// MaxRetries caps rate-limit retries per request. Zero retries forever.
	MaxRetries int
	// RequestsPerSecond paces all requests. Zero disables pacing.
	RequestsPerSecond float64
	Timeout           time.Duration
	Header            http.Header
}

// StatusError is a non-2xx response that is not a rate-limit signal.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client issues GET requests one at a time.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	cfg     Config
	logger  *zap.Logger
	// OnRateLimit is called before each back-off sleep.
	OnRateLimit func()
	sleep       func(context.Context, time.Duration) error
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimitDelay == 0 {
		cfg.RateLimitDelay = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// Get fetches url and returns the body of a 2xx response. A rate-limit
// response is retried after the configured delay until it succeeds, the
// retry cap is hit (ErrRetriesExhausted) or ctx ends.
func (c *Client) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		body, err := c.once(ctx, url, header)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, domain.ErrRateLimited) {
			return nil, err
		}
		if c.cfg.MaxRetries > 0 && attempt >= c.cfg.MaxRetries {
			return nil, fmt.Errorf("GET %s after %d retries: %w", url, attempt, domain.ErrRetriesExhausted)
		}
		c.logger.Warn("rate limited, backing off",
			zap.String("url", url),
			zap.Duration("delay", c.cfg.RateLimitDelay),
			zap.Int("attempt", attempt+1))
		if c.OnRateLimit != nil {
			c.OnRateLimit()
		}
		if err := c.sleep(ctx, c.cfg.RateLimitDelay); err != nil {
			return nil, err
		}
	}
}

// GetJSON fetches url and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	body, err := c.Get(ctx, url, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %v: %w", url, err, domain.ErrMalformedInput)
	}
	return nil
}

func (c *Client) once(ctx context.Context, url string, header http.Header) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("GET %s: %v: %w", url, err, domain.ErrTransientProvider)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %v: %w", url, err, domain.ErrTransientProvider)
	}
	if rateLimited(resp.StatusCode, body) {
		return nil, fmt.Errorf("GET %s: status %d: %w", url, resp.StatusCode, domain.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	return body, nil
}

// rateLimited recognizes 429 and Discourse's 422 whose errors mention
// "too many times".
func rateLimited(status int, body []byte) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	if status != http.StatusUnprocessableEntity {
		return false
	}
	var payload struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	for _, e := range payload.Errors {
		if strings.Contains(e, "too many times") {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// truncate keeps at most n bytes of s without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
