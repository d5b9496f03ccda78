package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gmcstatus/internal/config"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultBaseURL is the local development backend.
	DefaultBaseURL = "http://localhost:5001"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
)

var tracer = otel.Tracer("gmcstatus/internal/backend")

// Client calls the merchant status backend.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *retryablehttp.Client
	// single attempt, for health checks
	healthHTTP *retryablehttp.Client
}

// NewClient creates a backend client. Transport errors and 5xx/429 responses
// are retried up to cfg.RetryMax times.
func NewClient(cfg config.BackendConfig) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse backend URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    newRetryClient(httpClient, cfg.RetryMax),
		healthHTTP: newRetryClient(httpClient, 0),
	}, nil
}

func newRetryClient(httpClient *http.Client, retryMax int) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = httpClient
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = slog.Default()
	// hand the final response back so non-2xx statuses become HTTPErrors
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

// Fetch returns the raw merchant status document for region. The region is
// passed through unvalidated.
func (c *Client) Fetch(ctx context.Context, region string) (json.RawMessage, error) {
	return c.getJSON(ctx, "merchants", "/api/merchants/"+url.PathEscape(region), nil)
}

// FetchMerchant looks up a single merchant through the list endpoint.
func (c *Client) FetchMerchant(ctx context.Context, merchantID string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("merchantId", merchantID)
	return c.getJSON(ctx, "merchant", "/api/merchants/list", params)
}

// Health reports whether the backend answers /health with a 2xx. It is never retried.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.get(ctx, c.healthHTTP, "health", "/health", nil)
	return err
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, params url.Values) (json.RawMessage, error) {
	body, err := c.get(ctx, c.http, endpoint, path, params)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		slog.ErrorContext(ctx, "backend returned invalid JSON", "endpoint", endpoint)
		return nil, &MalformedDataError{Endpoint: endpoint, Snippet: snippet(body)}
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, hc *retryablehttp.Client, endpoint, path string, params url.Values) (_ []byte, err error) {
	ctx, span := tracer.Start(ctx, "backend."+endpoint, trace.WithAttributes(
		attribute.String("backend.path", path),
	))
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := hc.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		slog.WarnContext(ctx, "backend request failed", "endpoint", endpoint, "url", reqURL, "error", err)
		return nil, &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, maxBodyBytes)); err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &NetworkError{Endpoint: endpoint, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		requestsTotal.WithLabelValues(endpoint, "http_error").Inc()
		slog.ErrorContext(ctx, "received backend error response", "endpoint", endpoint, "status", resp.StatusCode)
		return nil, &HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: snippet(buf.Bytes())}
	}

	requestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return buf.Bytes(), nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
