// Package llm wraps the text generation providers behind one interface.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liliang-cn/paperchat/internal/config"
	"github.com/liliang-cn/paperchat/internal/domain"
)

// Message is one conversation turn sent to a provider
type Message struct {
	Role    string // user, assistant
	Content string
}

// Request is a single generation
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// DeltaFunc receives each text fragment of a streamed reply. A non-nil
// error stops the stream.
type DeltaFunc func(delta string) error

// Generator produces text for a request
type Generator interface {
	Generate(ctx context.Context, req *Request) (string, error)
	// Stream calls emit with each fragment as it arrives and returns the
	// full reply.
	Stream(ctx context.Context, req *Request, emit DeltaFunc) (string, error)
	Name() string
}

// NewFromConfig builds the configured generator
func NewFromConfig(ctx context.Context, cfg *config.Config) (Generator, error) {
	var g Generator
	switch cfg.LLM.Provider {
	case "openai", "":
		g = NewOpenAIGenerator(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	case "anthropic":
		g = NewAnthropicGenerator(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	case "gemini":
		gemini, err := NewGeminiGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.LLM.Temperature)
		if err != nil {
			return nil, err
		}
		g = gemini
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	return WithTimeout(g, cfg.LLM.Timeout), nil
}

type timeoutGenerator struct {
	Generator
	timeout time.Duration
}

// WithTimeout bounds every Generate call of g. A non-positive timeout
// returns g unchanged.
func WithTimeout(g Generator, timeout time.Duration) Generator {
	if timeout <= 0 {
		return g
	}
	return &timeoutGenerator{Generator: g, timeout: timeout}
}

func (t *timeoutGenerator) Generate(ctx context.Context, req *Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Generator.Generate(ctx, req)
}

func (t *timeoutGenerator) Stream(ctx context.Context, req *Request, emit DeltaFunc) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Generator.Stream(ctx, req, emit)
}

// providerError wraps an upstream failure. Rejected credentials and rate
// limits keep their meaning so callers can answer 401 and 429.
func providerError(provider string, status int, err error) error {
	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s: %w", domain.ErrRateLimited, provider, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s: %w", domain.ErrUnauthorized, provider, err)
	default:
		return fmt.Errorf("%w: %s: %w", domain.ErrGeneration, provider, err)
	}
}

// UserPrompt is a request with a system prompt and one user turn
func UserPrompt(system, prompt string) *Request {
	return &Request{
		System:   system,
		Messages: []Message{{Role: domain.RoleUser, Content: prompt}},
	}
}

// GenerateJSON runs req and decodes the reply into out. Markdown code fences
// and any prose around the outermost JSON object are ignored.
func GenerateJSON(ctx context.Context, g Generator, req *Request, out any) error {
	text, err := g.Generate(ctx, req)
	if err != nil {
		return err
	}
	return DecodeJSON(text, out)
}

// DecodeJSON extracts the outermost JSON object from text
func DecodeJSON(text string, out any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("%w: no JSON object in reply", domain.ErrGeneration)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("%w: invalid JSON in reply: %w", domain.ErrGeneration, err)
	}
	return nil
}
