// Package literature searches public paper and dataset indexes and merges
// their results into one ranked list.
package literature

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a single source request
	DefaultTimeout = 15 * time.Second

	// DefaultRateLimit is the request rate allowed per source
	DefaultRateLimit = 1

	maxResponseBytes = 8 << 20
)

// APIError is a non-2xx reply from a source
type APIError struct {
	Source     string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %s (status %d)", e.Source, e.Message, e.StatusCode)
}

// ClientOption configures a source client
type ClientOption func(*httpClient)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *httpClient) {
		h.client = c
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(h *httpClient) {
		if d > 0 {
			h.client = &http.Client{Timeout: d}
		}
	}
}

// WithRateLimit caps requests per second; zero or less disables the cap
func WithRateLimit(perSecond float64) ClientOption {
	return func(h *httpClient) {
		if perSecond > 0 {
			h.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			h.limiter = rate.NewLimiter(rate.Inf, 0)
		}
	}
}

type httpClient struct {
	source  string
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPClient(source string, opts []ClientOption) *httpClient {
	h := &httpClient{
		source:  source,
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// get performs a GET request and returns the body of a 2xx reply
func (h *httpClient) get(ctx context.Context, endpoint string, params url.Values, accept string) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := endpoint
	if len(params) > 0 {
		reqURL = endpoint + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &APIError{Source: h.source, StatusCode: resp.StatusCode, Message: msg}
	}

	return body, nil
}
