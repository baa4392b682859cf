package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider embeds text with the Gemini API
type GeminiProvider struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGeminiProvider creates a Gemini embedding provider
func NewGeminiProvider(ctx context.Context, apiKey, model string, dimensions int) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiProvider{client: client, model: model, dimensions: dimensions}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Embed returns the embedding for a single input
func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var cfg *genai.EmbedContentConfig
	if p.dimensions > 0 {
		dim := int32(p.dimensions)
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	return result.Embeddings[0].Values, nil
}
