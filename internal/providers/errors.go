package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindRateLimit   ErrorKind = "rate_limit"
	KindServer      ErrorKind = "server"
	KindTimeout     ErrorKind = "timeout"
	KindAuth        ErrorKind = "auth"
	KindQuota       ErrorKind = "quota"
	KindInvalid     ErrorKind = "invalid_request"
	KindUnavailable ErrorKind = "unknown"
)

// Error is a failure reported by a model backend.
type Error struct {
	Provider string
	Kind     ErrorKind
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Permanent reports whether retrying the same request cannot succeed
// (bad credentials, exhausted quota, malformed request).
func (e *Error) Permanent() bool {
	switch e.Kind {
	case KindAuth, KindQuota, KindInvalid:
		return true
	default:
		return false
	}
}

// IsPermanent reports whether err wraps a permanent provider error.
func IsPermanent(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Permanent()
	}
	return false
}

// Classify converts an arbitrary backend error into an *Error, inspecting the
// message the way most SDKs surface HTTP status codes. Unknown errors are
// treated as transient.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	kind := KindUnavailable

	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(lower, "timeout"):
		kind = KindTimeout
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "403") ||
		strings.Contains(lower, "forbidden"):
		kind = KindAuth
	case strings.Contains(lower, "quota") || strings.Contains(lower, "insufficient_quota") ||
		strings.Contains(lower, "billing"):
		kind = KindQuota
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		kind = KindRateLimit
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid request") ||
		strings.Contains(lower, "context length"):
		kind = KindInvalid
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "internal server"):
		kind = KindServer
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset") || strings.Contains(lower, "eof"):
		kind = KindNetwork
	}

	return &Error{Provider: provider, Kind: kind, Message: msg, Cause: err}
}
