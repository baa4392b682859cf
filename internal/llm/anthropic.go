package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/liliang-cn/paperchat/internal/domain"
)

const defaultClaudeMaxTokens = 1024

// AnthropicGenerator generates with Claude
type AnthropicGenerator struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewAnthropicGenerator creates a Claude generator
func NewAnthropicGenerator(apiKey, model string, temperature float64, maxTokens int) *AnthropicGenerator {
	return &AnthropicGenerator{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Name returns the provider name
func (g *AnthropicGenerator) Name() string {
	return "anthropic"
}

// Generate concatenates the text blocks of the reply
func (g *AnthropicGenerator) Generate(ctx context.Context, req *Request) (string, error) {
	resp, err := g.client.Messages.New(ctx, g.params(req))
	if err != nil {
		return "", anthropicError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: anthropic returned no text", domain.ErrGeneration)
	}

	return text.String(), nil
}

// Stream emits text deltas as content blocks arrive
func (g *AnthropicGenerator) Stream(ctx context.Context, req *Request, emit DeltaFunc) (string, error) {
	stream := g.client.Messages.NewStreaming(ctx, g.params(req))
	defer stream.Close()

	var text strings.Builder
	for stream.Next() {
		event := stream.Current()
		if event.Type != "content_block_delta" || event.Delta.Type != "text_delta" || event.Delta.Text == "" {
			continue
		}
		text.WriteString(event.Delta.Text)
		if err := emit(event.Delta.Text); err != nil {
			return text.String(), err
		}
	}
	if err := stream.Err(); err != nil {
		return text.String(), anthropicError(err)
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: anthropic returned no text", domain.ErrGeneration)
	}
	return text.String(), nil
}

func (g *AnthropicGenerator) params(req *Request) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	system := req.System
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case domain.RoleSystem:
			// Claude takes the system prompt out of band
			if system == "" {
				system = m.Content
			}
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := pickInt(req.MaxTokens, g.maxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if t := pick(req.Temperature, g.temperature); t > 0 {
		params.Temperature = anthropic.Float(t)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return providerError("anthropic", apiErr.StatusCode, err)
	}
	return providerError("anthropic", 0, err)
}
