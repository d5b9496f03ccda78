package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNotFound matches any HTTPError carrying a 404.
var ErrNotFound = errors.New("endpoint not found, check the API URL")

// HTTPError captures non-2xx responses from the merchant backend.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Body == "" {
		return fmt.Sprintf("%s request failed: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s request failed: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e != nil && e.StatusCode == http.StatusNotFound
}

// NetworkError means the request never produced a response, including timeouts.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s request failed: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// MalformedDataError is returned when a 2xx body is not JSON at all.
// Missing or mistyped fields inside valid JSON are not errors.
type MalformedDataError struct {
	Endpoint string
	Snippet  string
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("%s response was not valid JSON: %q", e.Endpoint, e.Snippet)
}
