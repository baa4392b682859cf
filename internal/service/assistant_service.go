package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/liliang-cn/paperchat/internal/llm"
	"go.uber.org/zap"
)

const assistantSystemPrompt = `You are an AI Lab Assistant for a professional network for academic research collaboration. Your role is to help researchers with:
- Finding and matching with relevant labs, research assistantships and collaborations
- Crafting professional cold emails and outreach messages
- Discovering grant opportunities and funding sources
- Providing advice on academic career development
- Answering questions about research best practices

Be concise, professional, and actionable. Focus on concrete next steps the researcher can take.`

// AssistantService runs the general lab assistant chat
type AssistantService struct {
	generator llm.Generator
	logger    *zap.Logger
}

// NewAssistantService creates a new assistant service
func NewAssistantService(generator llm.Generator, logger *zap.Logger) *AssistantService {
	return &AssistantService{
		generator: generator,
		logger:    logger.Named("assistant"),
	}
}

// Chat replies to a conversation. System turns from the caller are dropped.
func (s *AssistantService) Chat(ctx context.Context, messages []domain.AssistantMessage) (*domain.AssistantChatResponse, error) {
	req, err := assistantRequest(messages)
	if err != nil {
		return nil, err
	}

	text, err := s.generator.Generate(ctx, req)
	if err != nil {
		s.logger.Warn("assistant generation failed", zap.Error(err))
		return nil, err
	}
	return &domain.AssistantChatResponse{Response: strings.TrimSpace(text)}, nil
}

// ChatStream replies to a conversation fragment by fragment. The channel
// carries content chunks followed by exactly one done or error chunk and is
// closed when generation ends or ctx is cancelled.
func (s *AssistantService) ChatStream(ctx context.Context, messages []domain.AssistantMessage) (<-chan domain.StreamChunk, error) {
	req, err := assistantRequest(messages)
	if err != nil {
		return nil, err
	}

	ch := make(chan domain.StreamChunk, 16)
	send := func(chunk domain.StreamChunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case ch <- chunk:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(ch)
		_, err := s.generator.Stream(ctx, req, func(delta string) error {
			return send(domain.StreamChunk{Type: domain.StreamContent, Content: delta})
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("assistant stream failed", zap.Error(err))
			send(domain.StreamChunk{Type: domain.StreamError, Content: err.Error(), Err: err})
			return
		}
		send(domain.StreamChunk{Type: domain.StreamDone})
	}()
	return ch, nil
}

func assistantRequest(messages []domain.AssistantMessage) (*llm.Request, error) {
	req := &llm.Request{System: assistantSystemPrompt}
	for _, m := range messages {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case domain.RoleUser, domain.RoleAssistant:
			req.Messages = append(req.Messages, llm.Message{Role: role, Content: m.Content})
		case domain.RoleSystem:
			continue
		default:
			return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidRequest, m.Role)
		}
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: messages are required", domain.ErrInvalidRequest)
	}
	return req, nil
}
