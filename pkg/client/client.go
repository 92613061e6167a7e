// Package client is the Go SDK for the FeatureScope render API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/FeatureScope/pkg/errors"
)

const Version = "0.1.0"

// Logger defines the logging interface used by the Client
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// Client talks to a FeatureScope API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     Logger
	retry      retryPolicy
}

// retryPolicy bounds retries of idempotent requests.
type retryPolicy struct {
	max     int
	waitMin time.Duration
	waitMax time.Duration
}

// backoff doubles waitMin per attempt up to waitMax and adds up to 25%
// jitter.
func (p retryPolicy) backoff(attempt int) time.Duration {
	d := p.waitMax
	if shift := attempt - 1; shift < 30 {
		if exp := p.waitMin << uint(shift); exp < d {
			d = exp
		}
	}
	if d < 4 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d/4)))
}

// APIError represents an error response from the API
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("featurescope: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, e.Message, e.RequestID)
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsSessionLimit reports a rejected session creation.
func (e *APIError) IsSessionLimit() bool {
	return e.Code == string(errors.ErrCodeSessionLimit)
}

func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.ErrInvalidConfig
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid baseURL: %v", errors.ErrInvalidConfig, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: baseURL scheme must be http or https", errors.ErrInvalidConfig)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  fmt.Sprintf("featurescope-go-sdk/%s", Version),
		logger:     &noopLogger{},
		retry:      retryPolicy{max: 3, waitMin: 500 * time.Millisecond, waitMax: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// do performs an HTTP request. Idempotent methods are retried on network
// errors and 5xx responses; a 429 with Retry-After waits as told.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = b
	}

	attempts := 1
	if idempotent(method) {
		attempts += c.retry.max
	}

	var lastErr error
	var wait time.Duration
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if wait <= 0 {
				wait = c.retry.backoff(attempt)
			}
			c.logger.Debugf("retrying %s %s (attempt %d) in %v", method, path, attempt, wait)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}

		respBody, status, hdr, err := c.send(ctx, method, path, payload)
		wait = 0
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Errorf("%s %s failed: %v", method, path, err)
			lastErr = err
			continue
		}

		if status < 400 {
			if result != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, result); err != nil {
					return fmt.Errorf("failed to unmarshal response: %w", err)
				}
			}
			return nil
		}

		apiErr := decodeAPIError(status, respBody, hdr.Get("X-Request-ID"))
		lastErr = apiErr
		switch {
		case apiErr.IsRateLimited():
			seconds, convErr := strconv.Atoi(hdr.Get("Retry-After"))
			if convErr != nil || attempt+1 >= attempts {
				return apiErr
			}
			c.logger.Infof("rate limited, retrying after %d seconds", seconds)
			wait = time.Duration(seconds) * time.Second
		case apiErr.IsServerError():
		default:
			return apiErr
		}
	}
	return lastErr
}

// send performs one attempt and returns the drained body.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, int, http.Header, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()
	c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, time.Since(start))

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, resp.Header, fmt.Errorf("failed to read response body: %w", err)
	}
	hdr := resp.Header.Clone()
	if hdr.Get("X-Request-ID") == "" {
		hdr.Set("X-Request-ID", req.Header.Get("X-Request-ID"))
	}
	return b, resp.StatusCode, hdr, nil
}

// decodeAPIError builds the error for a failed response. The request id
// in the body wins over the one in the headers.
func decodeAPIError(status int, body []byte, requestID string) *APIError {
	apiErr := &APIError{StatusCode: status, RequestID: requestID}
	if len(body) == 0 {
		return apiErr
	}
	var wire APIError
	if err := json.Unmarshal(body, &wire); err != nil {
		apiErr.Message = string(body)
		return apiErr
	}
	apiErr.Code, apiErr.Message, apiErr.Detail = wire.Code, wire.Message, wire.Detail
	if wire.RequestID != "" {
		apiErr.RequestID = wire.RequestID
	}
	return apiErr
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodPut:
		return true
	}
	return false
}
