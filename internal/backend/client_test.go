package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gmcstatus/internal/config"
)

func newTestClient(t *testing.T, server *httptest.Server, retryMax int) *Client {
	t.Helper()
	client, err := NewClient(config.BackendConfig{
		BaseURL:    server.URL + "/",
		Timeout:    2 * time.Second,
		RetryMax:   retryMax,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestFetch_SetsHeadersAndPath(t *testing.T) {
	t.Parallel()

	var capturedReq *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedReq = r
		_, _ = w.Write([]byte(`{"ECCO GB":{"accountId":"X"}}`))
	}))
	t.Cleanup(server.Close)

	body, err := newTestClient(t, server, 0).Fetch(context.Background(), "europe")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != `{"ECCO GB":{"accountId":"X"}}` {
		t.Fatalf("body should be returned unchanged, got %s", body)
	}
	if capturedReq.URL.Path != "/api/merchants/europe" {
		t.Fatalf("unexpected path: %s", capturedReq.URL.Path)
	}
	if got := capturedReq.Header.Get("Accept"); got != "application/json" {
		t.Fatalf("unexpected Accept header: %q", got)
	}
}

func TestFetch_PassesRegionThroughEscaped(t *testing.T) {
	t.Parallel()

	var rawPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	if _, err := newTestClient(t, server, 0).Fetch(context.Background(), "asia pacific/x"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rawPath != "/api/merchants/asia%20pacific%2Fx" {
		t.Fatalf("unexpected escaped path: %s", rawPath)
	}
}

func TestFetch_NotFoundIsHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	_, err := newTestClient(t, server, 2).Fetch(context.Background(), "global")
	if err == nil {
		t.Fatal("expected error")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %T: %v", err, err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status %d", httpErr.StatusCode)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("404 should match ErrNotFound")
	}
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	if _, err := newTestClient(t, server, 1).Fetch(context.Background(), "global"); err != nil {
		t.Fatalf("fetch should succeed after retry: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestFetch_ExhaustedRetriesKeepStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "Server error: boom"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	_, err := newTestClient(t, server, 0).Fetch(context.Background(), "global")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}
	if !strings.Contains(httpErr.Body, "boom") {
		t.Fatalf("expected body snippet, got %q", httpErr.Body)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("500 must not match ErrNotFound")
	}
}

func TestFetch_NetworkFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	client := newTestClient(t, server, 0)
	server.Close()

	_, err := client.Fetch(context.Background(), "global")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
}

func TestFetch_TimeoutIsNetworkError(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client, err := NewClient(config.BackendConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Fetch(context.Background(), "global")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
	if !netErr.Timeout() {
		t.Fatalf("expected timeout, got %v", netErr.Err)
	}
}

func TestFetch_InvalidJSONIsMalformed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>render.com is waking up</html>`))
	}))
	t.Cleanup(server.Close)

	_, err := newTestClient(t, server, 0).Fetch(context.Background(), "global")
	var malformed *MalformedDataError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedDataError, got %T: %v", err, err)
	}
}

func TestFetchMerchant_UsesListEndpoint(t *testing.T) {
	t.Parallel()

	var capturedReq *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedReq = r
		_, _ = w.Write([]byte(`{"115079344":{"accountId":"117117533"}}`))
	}))
	t.Cleanup(server.Close)

	if _, err := newTestClient(t, server, 0).FetchMerchant(context.Background(), "115079344"); err != nil {
		t.Fatalf("fetch merchant: %v", err)
	}
	if capturedReq.URL.Path != "/api/merchants/list" {
		t.Fatalf("unexpected path: %s", capturedReq.URL.Path)
	}
	if got := capturedReq.URL.Query().Get("merchantId"); got != "115079344" {
		t.Fatalf("unexpected merchantId: %q", got)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"status": "healthy"}`))
	}))
	t.Cleanup(healthy.Close)
	if err := newTestClient(t, healthy, 0).Health(context.Background()); err != nil {
		t.Fatalf("expected healthy backend: %v", err)
	}

	var hits atomic.Int32
	starting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(starting.Close)
	if err := newTestClient(t, starting, 3).Health(context.Background()); err == nil {
		t.Fatal("expected unhealthy backend")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("health must not be retried, got %d requests", got)
	}
}

func TestMock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, region := range []string{"global", "europe"} {
		if _, err := (Mock{}).Fetch(ctx, region); err != nil {
			t.Fatalf("mock %s: %v", region, err)
		}
	}
	if _, err := (Mock{}).Fetch(ctx, "../global"); err == nil {
		t.Fatal("expected invalid region error")
	}

	data, err := (Mock{}).FetchMerchant(ctx, "126580264")
	if err != nil {
		t.Fatalf("mock merchant: %v", err)
	}
	if !strings.Contains(string(data), `"126580264":{`) {
		t.Fatalf("unexpected merchant lookup: %s", data)
	}
	if _, err := (Mock{}).FetchMerchant(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
