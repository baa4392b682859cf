package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/liliang-cn/paperchat/internal/rag"
	"github.com/liliang-cn/paperchat/internal/repository"
	"go.uber.org/zap"
)

const (
	conversationTitleChars = 80
	newConversationTitle   = "New conversation"
)

// ChatService handles question answering over a user's paper
type ChatService struct {
	papers        *repository.PaperRepository
	conversations *repository.ConversationRepository
	answerer      *rag.Answerer
	logger        *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(
	papers *repository.PaperRepository,
	conversations *repository.ConversationRepository,
	answerer *rag.Answerer,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		papers:        papers,
		conversations: conversations,
		answerer:      answerer,
		logger:        logger.Named("chat"),
	}
}

// Chat answers a question about a paper and records both turns
func (s *ChatService) Chat(ctx context.Context, userID string, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	question := strings.TrimSpace(req.Message)
	if question == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidRequest)
	}

	if _, err := s.ownedPaper(ctx, userID, req.PaperID); err != nil {
		return nil, err
	}

	conv, err := s.resolveConversation(ctx, userID, req, question)
	if err != nil {
		return nil, err
	}

	// Save user message
	if err := s.conversations.CreateMessage(ctx, &domain.Message{
		ConversationID: conv.ID,
		Role:           domain.RoleUser,
		Content:        question,
	}); err != nil {
		return nil, err
	}

	answer, err := s.answerer.Answer(ctx, req.PaperID, question)
	if err != nil {
		s.logger.Warn("answer failed",
			zap.String("paper_id", req.PaperID),
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
		return nil, err
	}

	ids := answer.ChunkIDs()

	// Save assistant message
	if err := s.conversations.CreateMessage(ctx, &domain.Message{
		ConversationID: conv.ID,
		Role:           domain.RoleAssistant,
		Content:        answer.Text,
		ChunksUsed:     ids,
	}); err != nil {
		return nil, err
	}

	if err := s.conversations.Touch(ctx, conv.ID); err != nil {
		return nil, err
	}

	refs := make([]domain.ChunkRef, len(answer.Chunks))
	for i, c := range answer.Chunks {
		refs[i] = domain.ChunkRef{ID: c.ID, PageNumber: c.PageNumber, ChunkText: c.ChunkText}
	}

	return &domain.ChatResponse{
		Response:       answer.Text,
		ChunksUsed:     ids,
		Chunks:         refs,
		ConversationID: conv.ID,
	}, nil
}

// Conversation returns the active conversation of a user on a paper with its
// messages. A paper nobody has asked about yet yields an empty view.
func (s *ChatService) Conversation(ctx context.Context, userID, paperID string) (*domain.ConversationView, error) {
	if _, err := s.ownedPaper(ctx, userID, paperID); err != nil {
		return nil, err
	}

	conv, err := s.conversations.Latest(ctx, paperID, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return &domain.ConversationView{Messages: []*domain.Message{}}, nil
	}

	messages, err := s.conversations.GetMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return &domain.ConversationView{Conversation: conv, Messages: messages}, nil
}

// StartConversation opens an empty conversation that becomes the active one
// for the user on the paper.
func (s *ChatService) StartConversation(ctx context.Context, userID, paperID string) (*domain.Conversation, error) {
	if _, err := s.ownedPaper(ctx, userID, paperID); err != nil {
		return nil, err
	}
	return s.createConversation(ctx, userID, paperID, newConversationTitle)
}

func (s *ChatService) ownedPaper(ctx context.Context, userID, paperID string) (*domain.Paper, error) {
	paper, err := s.papers.Get(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if paper == nil || paper.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return paper, nil
}

func (s *ChatService) resolveConversation(ctx context.Context, userID string, req *domain.ChatRequest, question string) (*domain.Conversation, error) {
	paperID := req.PaperID
	if req.ConversationID != "" {
		if req.NewConversation {
			return nil, fmt.Errorf("%w: conversation_id and new_conversation are exclusive", domain.ErrInvalidRequest)
		}
		conv, err := s.conversations.Get(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv == nil || conv.UserID != userID || conv.PaperID != paperID {
			return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, req.ConversationID)
		}
		return conv, nil
	}

	if !req.NewConversation {
		conv, err := s.conversations.Latest(ctx, paperID, userID)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			return conv, nil
		}
	}

	return s.createConversation(ctx, userID, paperID, conversationTitle(question))
}

func (s *ChatService) createConversation(ctx context.Context, userID, paperID, title string) (*domain.Conversation, error) {
	conv := &domain.Conversation{
		PaperID: paperID,
		UserID:  userID,
		Title:   title,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	s.logger.Debug("conversation started",
		zap.String("paper_id", paperID),
		zap.String("conversation_id", conv.ID))
	return conv, nil
}

func conversationTitle(question string) string {
	r := []rune(question)
	if len(r) <= conversationTitleChars {
		return question
	}
	return strings.TrimSpace(string(r[:conversationTitleChars])) + "..."
}
