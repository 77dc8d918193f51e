// Package api is the HTTP transport for the identity service. It encodes
// requests as JSON, decodes responses and error bodies, and retries transient
// failures with exponential backoff.
//
// # Endpoints
//
//   - POST /v1/register: publish a principal's signature public key.
//   - POST /v1/challenge: obtain a single-use nonce for a principal.
//   - POST /v1/verify: submit a signature over that nonce.
//   - GET /healthz: liveness and the service's algorithm suite.
//
// Binary values (public keys, nonces, signatures) travel as unpadded
// base64url strings.
//
// # Retry Behavior
//
// Requests are retried on network errors and on these status codes:
//
//   - 408 Request Timeout
//   - 429 Too Many Requests
//   - 500, 502, 503, 504
//
// The delay grows by [RetryConfig.Multiplier] from [RetryConfig.BaseDelay]
// with jitter, and waiting stops as soon as the context is done. Verify is
// never retried because the service consumes the challenge on the first
// attempt.
//
// # Error Handling
//
// Non-2xx responses become [*APIError], which matches [ErrDuplicate],
// [ErrNotFound], [ErrUnauthorized] and [ErrRateLimited] with errors.Is.
// Transport failures become [*NetworkError]. [IsTransient] reports whether a
// caller may try again later.
//
// # Thread Safety
//
// The [Client] type is safe for concurrent use.
package api
