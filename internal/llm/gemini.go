package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liliang-cn/paperchat/internal/domain"
	"google.golang.org/genai"
)

// GeminiGenerator generates with the Gemini API
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float64
}

// NewGeminiGenerator creates a Gemini generator
func NewGeminiGenerator(ctx context.Context, apiKey, model string, temperature float64) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, temperature: temperature}, nil
}

// Name returns the provider name
func (g *GeminiGenerator) Name() string {
	return "gemini"
}

// Generate returns the response text
func (g *GeminiGenerator) Generate(ctx context.Context, req *Request) (string, error) {
	contents, cfg := g.contents(req)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", geminiError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", domain.ErrGeneration)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned no text", domain.ErrGeneration)
	}
	return text, nil
}

// Stream emits the text of each streamed response
func (g *GeminiGenerator) Stream(ctx context.Context, req *Request, emit DeltaFunc) (string, error) {
	contents, cfg := g.contents(req)

	var text strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
		if err != nil {
			return text.String(), geminiError(err)
		}
		delta := resp.Text()
		if delta == "" {
			continue
		}
		text.WriteString(delta)
		if err := emit(delta); err != nil {
			return text.String(), err
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: gemini returned no text", domain.ErrGeneration)
	}
	return text.String(), nil
}

func (g *GeminiGenerator) contents(req *Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	system := req.System
	for _, m := range req.Messages {
		var role string
		switch m.Role {
		case domain.RoleAssistant:
			role = genai.RoleModel
		case domain.RoleSystem:
			if system == "" {
				system = m.Content
			}
			continue
		default:
			role = genai.RoleUser
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
		})
	}

	cfg := &genai.GenerateContentConfig{}
	if t := pick(req.Temperature, g.temperature); t > 0 {
		cfg.Temperature = genai.Ptr(float32(t))
	}
	if n := req.MaxTokens; n > 0 {
		cfg.MaxOutputTokens = int32(n)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return contents, cfg
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providerError("gemini", apiErr.Code, err)
	}
	return providerError("gemini", 0, err)
}
