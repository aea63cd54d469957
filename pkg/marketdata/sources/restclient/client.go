// Package restclient is the JSON-over-HTTP client shared by the market data
// sources: per-source headers, retry with exponential backoff and context
// cancellation.
package restclient

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

	"golang.org/x/time/rate"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	defaultMaxRetries  = 2
	defaultBackoffMin  = 200 * time.Millisecond
	defaultBackoffMax  = 3 * time.Second
	maxBodySnippet     = 512
	userAgent          = "cryptodash-api/1.0"
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http status %d: %s", e.Source, e.StatusCode, e.Body)
}

// Client wraps access to one upstream REST API.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoffMin time.Duration
	backoffMax time.Duration
	headers    http.Header
	limiter    *rate.Limiter
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the default API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithMaxRetries adjusts the retry budget.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// WithBackoff sets the exponential backoff bounds.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Client) {
		if min > 0 {
			c.backoffMin = min
		}
		if max >= min && max > 0 {
			c.backoffMax = max
		}
	}
}

// WithHeader adds a header sent with every request. Empty values are ignored
// so unset API keys never produce blank auth headers.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if key != "" && value != "" {
			c.headers.Set(key, value)
		}
	}
}

// WithRequestsPerMinute caps outbound requests, retries included, to the
// provider quota. Short bursts up to a tenth of the quota are allowed.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			return
		}
		burst := n / 10
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), burst)
	}
}

// New constructs a client for the named source.
func New(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: defaultMaxRetries,
		backoffMin: defaultBackoffMin,
		backoffMax: defaultBackoffMax,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root requests are resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

// GetJSON issues a GET to path with query and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON posts body as JSON to path and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body any, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Do performs the request, retrying 429, 5xx and transport failures.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%s: encode request: %w", c.name, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%s: quota wait: %w", c.name, err)
			}
		}
		status, retryAfter, err := c.once(ctx, method, target, payload, out)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		lastErr = err
		if !shouldRetry(status, err) || attempt == c.maxRetries {
			break
		}
		wait := computeBackoff(c.backoffMin, c.backoffMax, attempt, retryAfter)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, target string, payload []byte, out any) (int, string, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, "", fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("%s: read response: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(data)
		if len(snippet) > maxBodySnippet {
			snippet = snippet[:maxBodySnippet]
		}
		return resp.StatusCode, headerRetryAfter(resp.Header), &StatusError{
			Source:     c.name,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(snippet),
		}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, "", &decodeError{err: fmt.Errorf("%s: decode response: %w", c.name, err)}
		}
	}
	return resp.StatusCode, "", nil
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }
