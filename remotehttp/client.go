// Package remotehttp implements livecache.RemoteAccessor against a JSON
// document service: GET /docs/{key} to fetch, PUT /docs/{key} to write. It
// retries transient failures with jittered exponential backoff; retry policy
// applies to both verbs since document PUTs are idempotent.
package remotehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/airheartdev/livecache"
)

type (
	// Client is a RemoteAccessor speaking the document-service HTTP API.
	Client[T any] struct {
		baseURL *url.URL
		http    *http.Client
		token   string
		retry   RetryPolicy
	}

	// RetryPolicy bounds the retry loop. Attempt n sleeps
	// BaseDelay * 2^n, capped at MaxDelay, with +/-Jitter applied.
	RetryPolicy struct {
		MaxRetries int
		BaseDelay  time.Duration
		MaxDelay   time.Duration
		Jitter     float64
	}

	Option func(*options)

	options struct {
		http  *http.Client
		token string
		retry RetryPolicy
	}
)

// DefaultRetryPolicy retries twice with short delays, enough to ride out a
// blip without masking a down backend.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 2,
	BaseDelay:  100 * time.Millisecond,
	MaxDelay:   2 * time.Second,
	Jitter:     0.25,
}

var _ livecache.RemoteAccessor[any] = &Client[any]{}

// New builds a client against baseURL, e.g. "http://127.0.0.1:8481".
func New[T any](baseURL string, opts ...Option) (*Client[T], error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("remotehttp: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("remotehttp: base url %q missing scheme or host", baseURL)
	}

	o := &options{
		http:  &http.Client{Timeout: 30 * time.Second},
		retry: DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Client[T]{
		baseURL: parsed,
		http:    o.http,
		token:   o.token,
		retry:   o.retry,
	}, nil
}

// WithHTTPClient substitutes the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) {
		if h != nil {
			o.http = h
		}
	}
}

// WithBearerToken sends token as an Authorization bearer credential on every
// request.
func WithBearerToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) {
		o.retry = p
	}
}

// Fetch retrieves the document for key. A 404 reports
// livecache.ErrNotFound.
func (c *Client[T]) Fetch(ctx context.Context, key string) (T, error) {
	var value T
	body, err := c.do(ctx, http.MethodGet, key, nil)
	if err != nil {
		if IsNotFound(err) {
			return value, fmt.Errorf("remotehttp: fetch %q: %w", key, livecache.ErrNotFound)
		}
		return value, fmt.Errorf("remotehttp: fetch %q: %w", key, err)
	}

	if err := json.Unmarshal(body, &value); err != nil {
		return value, fmt.Errorf("remotehttp: decode %q: %w", key, err)
	}
	return value, nil
}

// Write stores value under key and returns the value the service confirmed.
func (c *Client[T]) Write(ctx context.Context, key string, value T) (T, error) {
	var confirmed T
	payload, err := json.Marshal(value)
	if err != nil {
		return confirmed, fmt.Errorf("remotehttp: encode %q: %w", key, err)
	}

	body, err := c.do(ctx, http.MethodPut, key, payload)
	if err != nil {
		return confirmed, fmt.Errorf("remotehttp: write %q: %w", key, err)
	}

	if err := json.Unmarshal(body, &confirmed); err != nil {
		return confirmed, fmt.Errorf("remotehttp: decode %q: %w", key, err)
	}
	return confirmed, nil
}

// do runs one request with retries and returns the response body on 2xx.
func (c *Client[T]) do(ctx context.Context, method, key string, payload []byte) ([]byte, error) {
	endpoint := c.baseURL.JoinPath("docs", url.PathEscape(key)).String()

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.retry.delay(attempt-1)); err != nil {
				return nil, err
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: body}
		if !statusErr.Retryable() {
			return nil, statusErr
		}
		lastErr = statusErr
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
