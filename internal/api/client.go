package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "pqportal-client-go"

	maxErrorBody = 64 << 10
)

// Client is the identity service HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *RetryConfig
	userAgent  string
}

// Option configures the API client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-attempt timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the number of retries after the first attempt.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.retry.MaxRetries = n
	}
}

// WithRetryDelay sets the initial backoff delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retry.BaseDelay = d
	}
}

// WithRetryOn replaces the set of retryable status codes.
func WithRetryOn(statusCodes ...int) Option {
	return func(c *Client) {
		set := make(map[int]bool, len(statusCodes))
		for _, code := range statusCodes {
			set[code] = true
		}
		c.retry.RetryableOn = func(code int) bool { return set[code] }
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a client for the identity service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retry:      DefaultRetryConfig(),
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends a JSON request and decodes a JSON response into result, retrying
// transient failures.
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	return c.do(ctx, method, path, body, result, c.retry)
}

// DoOnce is Do without retries, for requests that are not idempotent.
func (c *Client) DoOnce(ctx context.Context, method, path string, body, result any) error {
	return c.do(ctx, method, path, body, result, &RetryConfig{})
}

func (c *Client) do(ctx context.Context, method, path string, body, result any, retry *RetryConfig) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}
	target := c.baseURL + path

	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, method, target, payload)
		if err != nil {
			if ctx.Err() != nil {
				return &NetworkError{Err: ctx.Err(), URL: target, Attempt: attempt + 1}
			}
			if attempt < retry.MaxRetries {
				if werr := retry.Wait(ctx, attempt); werr != nil {
					return &NetworkError{Err: werr, URL: target, Attempt: attempt + 1}
				}
				continue
			}
			return &NetworkError{Err: err, URL: target, Attempt: attempt + 1}
		}

		if resp.StatusCode >= 400 && retry.ShouldRetry(attempt, resp.StatusCode) {
			drain(resp)
			if werr := retry.Wait(ctx, attempt); werr != nil {
				return &NetworkError{Err: werr, URL: target, Attempt: attempt + 1}
			}
			continue
		}

		return c.handleResponse(resp, result)
	}
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return c.httpClient.Do(req)
}

func (c *Client) handleResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp)
	}
	if result == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Error
		apiErr.Message = errResp.Message
		if errResp.RequestID != "" {
			apiErr.RequestID = errResp.RequestID
		}
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
