package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAIGenerator creates a generator for model
func NewOpenAIGenerator(baseURL, apiKey, model string, temperature float64, maxTokens int) *OpenAIGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIGenerator{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Name returns the provider name
func (g *OpenAIGenerator) Name() string {
	return "openai"
}

// Generate returns the first choice's content
func (g *OpenAIGenerator) Generate(ctx context.Context, req *Request) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, g.params(req))
	if err != nil {
		return "", openAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: openai returned no content", domain.ErrGeneration)
	}

	return resp.Choices[0].Message.Content, nil
}

// Stream emits the content deltas of the first choice
func (g *OpenAIGenerator) Stream(ctx context.Context, req *Request, emit DeltaFunc) (string, error) {
	stream := g.client.Chat.Completions.NewStreaming(ctx, g.params(req))
	defer stream.Close()

	var text strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		text.WriteString(delta)
		if err := emit(delta); err != nil {
			return text.String(), err
		}
	}
	if err := stream.Err(); err != nil {
		return text.String(), openAIError(err)
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: openai returned no content", domain.ErrGeneration)
	}
	return text.String(), nil
}

func (g *OpenAIGenerator) params(req *Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case domain.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: messages,
	}
	if t := pick(req.Temperature, g.temperature); t > 0 {
		params.Temperature = openai.Float(t)
	}
	if n := pickInt(req.MaxTokens, g.maxTokens); n > 0 {
		params.MaxTokens = openai.Int(int64(n))
	}
	return params
}

func openAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return providerError("openai", apiErr.StatusCode, err)
	}
	return providerError("openai", 0, err)
}

func pick(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}

func pickInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
