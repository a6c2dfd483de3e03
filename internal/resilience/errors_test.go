package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestFetchError_Message(t *testing.T) {
	status := NewStatusError("https://www.bing.com/search", 503)
	if got := status.Error(); got != "fetch https://www.bing.com/search: status 503" {
		t.Errorf("unexpected message %q", got)
	}

	inner := errors.New("connection refused")
	netFail := NewFetchError("https://acme.com", inner)
	if !errors.Is(netFail, inner) {
		t.Error("expected FetchError to unwrap to inner error")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, CategoryNone},
		{"status", NewStatusError("u", 404), CategoryStatus},
		{"wrapped status", eris.Wrap(NewStatusError("u", 500), "search: google"), CategoryStatus},
		{"net timeout", NewFetchError("u", timeoutErr{}), CategoryTimeout},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), CategoryTimeout},
		{"canceled", fmt.Errorf("get: %w", context.Canceled), CategoryCanceled},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), CategoryNetwork},
		{"dns", errors.New("dial tcp: lookup nope.invalid: no such host"), CategoryNetwork},
		{"breaker", ErrBreakerOpen, CategoryBreaker},
		{"blocked", eris.Wrap(ErrBlocked, "search: google captcha"), CategoryBlocked},
		{"other", errors.New("html: unexpected EOF"), CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsStatus(t *testing.T) {
	err := fmt.Errorf("engine: %w", NewStatusError("u", 429))
	if !IsStatus(err, 429) {
		t.Error("expected 429 to match")
	}
	if IsStatus(err, 500) {
		t.Error("did not expect 500 to match")
	}
	if IsStatus(errors.New("plain"), 429) {
		t.Error("plain error carries no status")
	}
}
