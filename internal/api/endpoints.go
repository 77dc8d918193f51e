package api

import (
	"context"
	"net/http"
)

// Register publishes a principal's public key. A duplicate principal yields
// an *APIError matching ErrDuplicate.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var result RegisterResponse
	if err := c.Do(ctx, http.MethodPost, "/v1/register", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RequestChallenge asks for a fresh challenge for principalID.
func (c *Client) RequestChallenge(ctx context.Context, principalID string) (*ChallengeResponse, error) {
	var result ChallengeResponse
	if err := c.Do(ctx, http.MethodPost, "/v1/challenge", ChallengeRequest{PrincipalID: principalID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Verify submits a signature over a challenge nonce. It is sent exactly once.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	var result VerifyResponse
	if err := c.DoOnce(ctx, http.MethodPost, "/v1/verify", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health checks service liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var result HealthResponse
	if err := c.Do(ctx, http.MethodGet, "/healthz", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
