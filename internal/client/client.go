// Package client talks to the destination ERP: it logs in once, keeps the
// session token for the rest of the run and exposes typed calls for bulk
// import, statistics, paginated listings and reports.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/seeder/internal/config"
)

// Client is the HTTP client for the destination system.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	headers     map[string]string
	retryConfig RetryConfig
	parser      *ResponseParser
	logger      *zap.Logger

	mu      sync.RWMutex
	session *Session
}

// RetryConfig configures transport-level retries. They only apply to safe
// methods; bulk writes are retried by the uploader under its own policy.
type RetryConfig struct {
	MaxRetries  int
	RetryDelay  time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	ShouldRetry func(resp *http.Response, err error) bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		RetryDelay:  500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		ShouldRetry: Retryable,
	}
}

// Retryable reports whether a response or transport error is worth another
// attempt: transport errors, 5xx and 429.
func Retryable(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for cfg.
func New(cfg config.TargetConfig, retryCfg *RetryConfig, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if retryCfg == nil {
		defaultCfg := DefaultRetryConfig()
		retryCfg = &defaultCfg
	}
	if retryCfg.ShouldRetry == nil {
		retryCfg.ShouldRetry = Retryable
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "ERP-Seeder/1.0"
	}

	c := &Client{
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		baseURL:    base,
		headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
			"User-Agent":   userAgent,
		},
		retryConfig: *retryCfg,
		parser:      NewResponseParser(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Request represents an HTTP request to be executed.
type Request struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     map[string]string
	Body        any
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do executes an HTTP request. GET and HEAD are retried with backoff.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	u, err := c.buildURL(req.Path, req.QueryParams)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}

	var payload []byte
	if req.Body != nil {
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	maxRetries := c.retryConfig.MaxRetries
	if !safeMethod(req.Method) {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			c.logger.Debug("retrying request",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
		if err != nil {
			return nil, fmt.Errorf("creating HTTP request: %w", err)
		}
		c.setHeaders(httpReq, req.Headers)

		start := time.Now()
		httpResp, err := c.httpClient.Do(httpReq)
		resp := &Response{Duration: time.Since(start)}
		if err == nil {
			resp.StatusCode = httpResp.StatusCode
			resp.Headers = httpResp.Header
			resp.Body, err = io.ReadAll(httpResp.Body)
			httpResp.Body.Close()
			if err != nil {
				err = fmt.Errorf("reading response body: %w", err)
			}
		}

		if attempt < maxRetries && ctx.Err() == nil && c.retryConfig.ShouldRetry(httpResp, err) {
			continue
		}
		if err != nil {
			return resp, err
		}
		return resp, nil
	}
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, queryParams map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, QueryParams: queryParams})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

func safeMethod(method string) bool {
	return method == "" || method == http.MethodGet || method == http.MethodHead
}

// buildURL appends path to the base URL's own path, so a base of
// http://host/api and a path of /auth/login yields http://host/api/auth/login.
func (c *Client) buildURL(path string, queryParams map[string]string) (*url.URL, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawPath = ""

	if len(queryParams) > 0 {
		q := u.Query()
		for k, v := range queryParams {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return &u, nil
}

func (c *Client) setHeaders(req *http.Request, customHeaders map[string]string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.session != nil {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}
	for k, v := range customHeaders {
		req.Header.Set(k, v)
	}
}

// calculateBackoff calculates the backoff delay for the given attempt.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	return Backoff(attempt, c.retryConfig.RetryDelay, c.retryConfig.MaxDelay, c.retryConfig.Multiplier)
}

// Backoff returns an exponential delay with +/-25% jitter, capped at max.
func Backoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(max) {
		delay = float64(max)
	}
	jitter := delay * 0.25
	delay = delay + (rand.Float64()*2-1)*jitter
	return time.Duration(delay)
}
