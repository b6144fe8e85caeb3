package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// User-facing failure messages
const (
	MsgCORS          = "CORS error: This API doesn't allow cross-origin requests. Try using a CORS proxy or a different API."
	MsgNetwork       = "Network error: Unable to connect to the API. Check your internet connection and API URL."
	MsgNotFound      = "API endpoint not found. Please check the URL."
	MsgAuth          = "Authentication error: Invalid API key or insufficient permissions."
	MsgConnectFailed = "Failed to connect to API"
	MsgUnknown       = "Unknown error"
)

// ErrCORS marks a response the configured origin is not allowed to read
var ErrCORS = errors.New("CORS error: cross-origin request rejected")

// HTTPError is a completed request with a non-2xx status
type HTTPError struct {
	StatusCode int
	StatusText string
	// RetryAfter is the parsed Retry-After header, zero when absent
	RetryAfter time.Duration
	// HasRetryAfter reports whether the header was present and parseable
	HasRetryAfter bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.StatusText)
}

// TransportError wraps a failure below HTTP: DNS, dial, reset, body read
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "network error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Classify turns a terminal fetch error into the text shown to users
func Classify(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()

	if errors.Is(err, ErrCORS) || strings.Contains(msg, "CORS") || strings.Contains(msg, "cross-origin") {
		return MsgCORS
	}

	var te *TransportError
	if errors.As(err, &te) {
		return MsgNetwork
	}

	var he *HTTPError
	if errors.As(err, &he) {
		switch he.StatusCode {
		case http.StatusNotFound:
			return MsgNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return MsgAuth
		}
	}

	if msg == "" {
		return MsgUnknown
	}
	return msg
}

// statusText extracts the reason phrase from a response, falling back to
// the standard text for the code
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Dates in the past
// yield zero.
func parseRetryAfter(header string, now time.Time) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if t, err := http.ParseTime(header); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
