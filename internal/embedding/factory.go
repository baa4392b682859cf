package embedding

import (
	"context"
	"fmt"

	"github.com/liliang-cn/paperchat/internal/config"
	"go.uber.org/zap"
)

// NewFromConfig builds the configured provider and wraps it in a Client
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Client, error) {
	var provider Provider
	switch cfg.Embedding.Provider {
	case "openai", "":
		provider = NewOpenAIProvider(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	case "gemini":
		p, err := NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.EmbeddingModel, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	return NewClient(provider,
		WithMaxInputChars(cfg.Embedding.MaxInputChars),
		WithRateLimit(cfg.Embedding.RequestsPerSecond),
		WithLogger(logger),
	), nil
}
