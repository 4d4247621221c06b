// Package proxyapi fetches usage statistics from the proxy management API.
package proxyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/theirongolddev/cpusage/internal/logger"
)

const (
	usagePath       = "/v0/management/usage"
	defaultTimeout  = 10 * time.Second
	defaultMaxTries = 3
	maxBodySize     = 32 << 20 // 32 MiB
)

var (
	// ErrUnauthorized indicates the management key is missing, wrong or rejected.
	ErrUnauthorized = errors.New("proxyapi: unauthorized (check the management key)")
	// ErrRateLimited indicates the management API rate limit was hit.
	ErrRateLimited = errors.New("proxyapi: rate limited")
	// ErrBadPayload indicates a response body that is not a usage payload.
	ErrBadPayload = errors.New("proxyapi: unrecognized usage payload")
)

// Client fetches usage from one proxy instance.
type Client struct {
	baseURL       string
	key           string
	http          *http.Client
	timeout       time.Duration
	maxTries      uint
	retryInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxTries caps the number of attempts, first one included.
func WithMaxTries(n uint) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithRetryInterval sets the initial backoff interval between attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

// NewClient creates a client for the proxy at baseURL. An empty key sends
// no Authorization header.
func NewClient(baseURL, managementKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		key:      strings.TrimSpace(managementKey),
		http:     &http.Client{},
		timeout:  defaultTimeout,
		maxTries: defaultMaxTries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the usage endpoint this client queries.
func (c *Client) URL() string {
	return c.baseURL + usagePath
}

// HasKey reports whether a management key will be sent.
func (c *Client) HasKey() bool {
	return c.key != ""
}

// FetchUsage retrieves and normalizes the proxy's usage statistics.
// Network errors and 5xx responses are retried with exponential backoff;
// auth failures, rate limiting and malformed bodies are not.
func (c *Client) FetchUsage(ctx context.Context) (*FetchResult, error) {
	b := backoff.NewExponentialBackOff()
	if c.retryInterval > 0 {
		b.InitialInterval = c.retryInterval
	}

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.get(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("retrying usage fetch", "url", c.URL(), "err", err, "in", next)
		}),
	)
	if err != nil {
		return nil, err
	}

	result, err := Decode(body)
	if err != nil {
		return nil, err
	}
	result.FetchedAt = time.Now()
	return result, nil
}

// get performs one authenticated GET of the usage endpoint.
func (c *Client) get(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, backoff.Permanent(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("proxyapi: creating request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "github.com/theirongolddev/cpusage/1.0")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	//nolint:gosec // URL comes from the user's own configuration
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxyapi: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(ErrUnauthorized)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, backoff.Permanent(ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("proxyapi: server error %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, backoff.Permanent(fmt.Errorf("proxyapi: unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("proxyapi: reading response: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, backoff.Permanent(fmt.Errorf("proxyapi: response exceeds %d bytes", maxBodySize))
	}
	return body, nil
}

// Decode normalizes a usage payload. It accepts a JSON array of entries, an
// object with an "entries" array, or the proxy's native {"usage": ...}
// snapshot.
func Decode(body []byte) (*FetchResult, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrBadPayload)
	}

	if body[0] == '[' {
		var entries []Entry
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
		}
		return fromEntries(entries), nil
	}

	var env payloadEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	switch {
	case env.Entries != nil:
		return fromEntries(*env.Entries), nil
	case len(env.Usage) > 0 && string(env.Usage) != "null":
		var usage NativeUsage
		if err := json.Unmarshal(env.Usage, &usage); err != nil {
			return nil, fmt.Errorf("%w: usage: %w", ErrBadPayload, err)
		}
		return fromNative(usage), nil
	default:
		return nil, fmt.Errorf("%w: no entries or usage field", ErrBadPayload)
	}
}
