// Package resilience classifies network failures and isolates misbehaving
// upstreams (search engines, candidate sites) so one failure never aborts a run.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// FetchError reports a failed fetch of a search results page or a candidate
// site: a network error, a timeout or a non-2xx response. It is always
// absorbed by the caller and turned into an empty result.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrBlocked marks a response that is a bot challenge or captcha page
// rather than real content.
var ErrBlocked = errors.New("blocked by bot challenge")

// NewStatusError builds a FetchError for a non-2xx response.
func NewStatusError(url string, statusCode int) *FetchError {
	return &FetchError{URL: url, StatusCode: statusCode}
}

// NewFetchError wraps a transport-level failure for url.
func NewFetchError(url string, err error) *FetchError {
	return &FetchError{URL: url, Err: err}
}

// Failure categories reported by Classify.
const (
	CategoryNone     = ""
	CategoryTimeout  = "timeout"
	CategoryStatus   = "status"
	CategoryNetwork  = "network"
	CategoryBreaker  = "breaker_open"
	CategoryBlocked  = "blocked"
	CategoryCanceled = "canceled"
	CategoryOther    = "other"
)

// Classify buckets an error into a coarse category for logs and metrics.
func Classify(err error) string {
	if err == nil {
		return CategoryNone
	}
	if errors.Is(err, ErrBreakerOpen) {
		return CategoryBreaker
	}
	if errors.Is(err, ErrBlocked) {
		return CategoryBlocked
	}

	var fe *FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		return CategoryStatus
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return CategoryNetwork
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context canceled"):
		return CategoryCanceled
	case strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "tls handshake timeout"):
		return CategoryTimeout
	}
	for _, p := range []string{
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"no such host",
		"temporary failure in name resolution",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return CategoryNetwork
		}
	}

	return CategoryOther
}

// IsStatus reports whether err is a FetchError carrying the given status.
func IsStatus(err error, statusCode int) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode == statusCode
}
