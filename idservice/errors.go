package idservice

import "errors"

var (
	// ErrDuplicate is returned when a principal is registered twice.
	ErrDuplicate = errors.New("principal already registered")

	// ErrUnknownPrincipal is returned for a principal with no registered key.
	ErrUnknownPrincipal = errors.New("unknown principal")

	// ErrRateLimited is returned when a principal requests challenges too fast.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidRequest is returned for malformed principal IDs, keys or
	// algorithm names.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidToken is returned when a session token fails validation.
	ErrInvalidToken = errors.New("invalid session token")
)
