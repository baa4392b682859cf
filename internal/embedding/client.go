// Package embedding turns text into fixed-length vectors through an external model.
package embedding

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/liliang-cn/paperchat/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultMaxInputChars is the input ceiling of text-embedding-3-small
// expressed in characters. Longer input is truncated, never rejected.
const DefaultMaxInputChars = 8191

// Provider is a raw embedding backend
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// Client wraps a provider with truncation, rate limiting and validation
type Client struct {
	provider      Provider
	maxInputChars int
	limiter       *rate.Limiter
	logger        *zap.Logger
}

// Option configures the client
type Option func(*Client)

// WithMaxInputChars sets the truncation length
func WithMaxInputChars(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxInputChars = n
		}
	}
}

// WithRateLimit caps provider calls per second; zero or less disables the cap
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new embedding client
func NewClient(provider Provider, opts ...Option) *Client {
	c := &Client{
		provider:      provider,
		maxInputChars: DefaultMaxInputChars,
		limiter:       rate.NewLimiter(rate.Inf, 0),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("embedding")
	return c
}

// Embed returns the vector for text. Provider failures and empty vectors are
// returned as errors wrapping domain.ErrEmbedding.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	input, truncated := Truncate(text, c.maxInputChars)
	if truncated {
		c.logger.Debug("Truncated embedding input",
			zap.Int("chars", utf8.RuneCountInString(text)),
			zap.Int("max_chars", c.maxInputChars),
		)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}

	vec, err := c.provider.Embed(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEmbedding, c.provider.Name(), err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty vector", domain.ErrEmbedding, c.provider.Name())
	}

	return vec, nil
}

// Truncate cuts text to at most max characters
func Truncate(text string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text, false
	}
	return string([]rune(text)[:max]), true
}
