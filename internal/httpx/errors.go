package httpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind is the coarse classification of a failed fetch. It is what run
// statistics and user-facing failure reasons are built from; raw errors stay
// wrapped underneath.
type ErrorKind string

const (
	KindNotFound    ErrorKind = "not_found"
	KindBlocked     ErrorKind = "blocked_or_forbidden"
	KindRateLimited ErrorKind = "rate_limited"
	KindUpstream    ErrorKind = "upstream_error"
	KindNetwork     ErrorKind = "network_error"
	KindTimeout     ErrorKind = "timeout"
)

type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt against the same URL can succeed.
// Client errors that a retry cannot fix (404, 403) are excluded.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindUpstream, KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// KindForStatus maps a non-2xx HTTP status to an error kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusForbidden:
		return KindBlocked
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindUpstream
	default:
		return KindNetwork
	}
}

// KindForErr maps a transport-level error to an error kind.
func KindForErr(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
