// Package backend is the thin HTTP client for the feature-analysis backend
// that serves scatter projections, feature details and token analyses.
package backend

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

	"github.com/google/uuid"

	"github.com/turtacn/FeatureScope/internal/config"
	"github.com/turtacn/FeatureScope/internal/domain/projection"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/turtacn/FeatureScope/pkg/errors"
)

// Endpoint paths.
const (
	PathScatter       = "/api/sae/scatter"
	PathFeatureDetail = "/api/feature/detail"
	PathTokenAnalysis = "/api/feature/tokens-analysis"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// API is the backend surface consumed by sources and render sessions.
type API interface {
	FetchScatter(ctx context.Context, q ScatterQuery) (*projection.FetchResult, error)
	FetchFeatureDetail(ctx context.Context, q DetailQuery) (*FeatureDetail, error)
	AnalyzeTokens(ctx context.Context, req TokenAnalysisRequest) (*TokenAnalysis, error)
}

// Client implements API over net/http. Requests are never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     logging.Logger
	metrics    *prometheus.AppMetrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient validates baseURL and returns a Client.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperrors.InvalidParam("backend base url must be an absolute http(s) url").WithDetail(baseURL)
	}
	if timeout <= 0 {
		timeout = config.DefaultBackendTimeout
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "featurescope",
		logger:     logging.NewNopLogger(),
		metrics:    prometheus.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("backend")
	return c, nil
}

// NewClientFromConfig builds a Client from the backend config section.
func NewClientFromConfig(cfg config.BackendConfig, opts ...Option) (*Client, error) {
	return NewClient(cfg.BaseURL, cfg.Timeout, opts...)
}

// FetchScatter loads the projection for q.
func (c *Client) FetchScatter(ctx context.Context, q ScatterQuery) (*projection.FetchResult, error) {
	v := url.Values{}
	v.Set("sae_id", q.SAEID)
	if q.Query != "" {
		v.Set("query", q.Query)
	}
	if q.LLM != "" {
		v.Set("llm", q.LLM)
	}
	var out projection.FetchResult
	if err := c.do(ctx, "scatter", http.MethodGet, PathScatter, v, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchFeatureDetail loads one feature's detail record.
func (c *Client) FetchFeatureDetail(ctx context.Context, q DetailQuery) (*FeatureDetail, error) {
	if q.FeatureID == "" {
		return nil, apperrors.InvalidParam("feature id is required")
	}
	v := url.Values{}
	v.Set("feature_id", q.FeatureID.String())
	v.Set("sae_id", q.SAEID)
	if q.LLM != "" {
		v.Set("llm", q.LLM)
	}
	var raw json.RawMessage
	if err := c.do(ctx, "detail", http.MethodGet, PathFeatureDetail, v, nil, &raw); err != nil {
		return nil, err
	}
	var d FeatureDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUpstreamDecode, "decode feature detail")
	}
	if d.FeatureID == "" {
		d.FeatureID = q.FeatureID
	}
	d.Raw = raw
	return &d, nil
}

// AnalyzeTokens asks which features fire on the selected tokens.
func (c *Client) AnalyzeTokens(ctx context.Context, req TokenAnalysisRequest) (*TokenAnalysis, error) {
	if len(req.SelectedTokens) == 0 {
		return nil, apperrors.InvalidParam("at least one token must be selected")
	}
	var out TokenAnalysis
	if err := c.do(ctx, "tokens", http.MethodPost, PathTokenAnalysis, nil, req.wire(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// envelope is the {"data": ...} wrapper around every response.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		if ctx.Err() != nil {
			return
		}
		prometheus.RecordBackendCall(c.metrics, endpoint, err, time.Since(start))
	}()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		b, mErr := json.Marshal(body)
		if mErr != nil {
			return apperrors.Wrap(mErr, apperrors.ErrCodeSerialization, "encode request body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "build request")
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("backend request failed",
			logging.String("endpoint", endpoint), logging.String("request_id", requestID), logging.Err(err))
		return apperrors.Wrap(err, apperrors.CodeUpstreamUnavailable, "backend unreachable").WithDetail(endpoint)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.Wrap(err, apperrors.CodeUpstreamUnavailable, "read backend response")
	}
	c.logger.Debug("backend response",
		logging.String("endpoint", endpoint), logging.Int("status", resp.StatusCode),
		logging.String("request_id", requestID), logging.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(payload)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return apperrors.New(apperrors.CodeUpstreamStatus, "backend returned an error").
			WithDetail(fmt.Sprintf("endpoint=%s status=%d body=%s", endpoint, resp.StatusCode, strings.TrimSpace(snippet)))
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return apperrors.Wrap(err, apperrors.CodeUpstreamDecode, "decode backend envelope").WithDetail(endpoint)
	}
	if len(env.Data) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return apperrors.New(apperrors.CodeUpstreamDecode, "backend response has no data").WithDetail(endpoint)
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], env.Data...)
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.Wrap(err, apperrors.CodeUpstreamDecode, "decode backend payload").WithDetail(endpoint)
	}
	return nil
}

var _ API = (*Client)(nil)
