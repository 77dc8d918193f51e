package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors matched by APIError.Is.
var (
	// ErrDuplicate indicates the principal is already registered.
	ErrDuplicate = errors.New("principal already registered")
	// ErrNotFound indicates the principal or challenge is unknown.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates the request was rejected as unauthenticated.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited indicates the rate limit has been exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrMalformedResponse indicates a 2xx response whose body could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// Error codes carried in ErrorResponse.Error.
const (
	CodeDuplicate        = "duplicate"
	CodeUnknownPrincipal = "unknown_principal"
	CodeRateLimited      = "rate_limited"
	CodeInvalidRequest   = "invalid_request"
	CodeInternal         = "internal"
)

// APIError represents a non-2xx response from the identity service.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error %d", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.RequestID != "" {
		msg += " (request_id: " + e.RequestID + ")"
	}
	return msg
}

// PortalError implements the PortalError marker interface.
func (e *APIError) PortalError() {}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return target == ErrUnauthorized
	case http.StatusNotFound:
		return target == ErrNotFound
	case http.StatusConflict:
		return target == ErrDuplicate
	case http.StatusTooManyRequests:
		return target == ErrRateLimited
	}
	return false
}

// NetworkError represents a transport-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error (attempt %d): %v", e.Attempt, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// PortalError implements the PortalError marker interface.
func (e *NetworkError) PortalError() {}

// IsTransient reports whether err is a failure that may succeed if retried
// later: a network error that was not caused by the caller's context, or a
// retryable status code.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return DefaultRetryableStatus(apiErr.StatusCode)
	}
	return false
}
