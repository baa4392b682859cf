package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/paperchat/internal/domain"
)

// ConversationRepository handles conversation and message persistence
type ConversationRepository struct {
	db *DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create creates a new conversation
func (r *ConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO paper_conversations (id, paper_id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, conv.ID, conv.PaperID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)

	return err
}

// Get retrieves a conversation by ID
func (r *ConversationRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRowContext(ctx, `
		SELECT id, paper_id, user_id, title, created_at, updated_at
		FROM paper_conversations WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return conv, err
}

// Latest returns the most recently active conversation of a user on a paper
func (r *ConversationRepository) Latest(ctx context.Context, paperID, userID string) (*domain.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRowContext(ctx, `
		SELECT id, paper_id, user_id, title, created_at, updated_at
		FROM paper_conversations WHERE paper_id = ? AND user_id = ?
		ORDER BY updated_at DESC, created_at DESC
		LIMIT 1
	`, paperID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return conv, err
}

// Touch updates a conversation's updated_at timestamp
func (r *ConversationRepository) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE paper_conversations SET updated_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

// CreateMessage appends a message; messages are never updated afterwards
func (r *ConversationRepository) CreateMessage(ctx context.Context, message *domain.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.ChunksUsed == nil {
		message.ChunksUsed = []string{}
	}
	message.CreatedAt = time.Now()

	chunksJSON, err := json.Marshal(message.ChunksUsed)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO paper_messages (id, conversation_id, role, content, chunks_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, message.ID, message.ConversationID, message.Role, message.Content,
		string(chunksJSON), message.CreatedAt)

	return err
}

// GetMessages retrieves all messages for a conversation in creation order
func (r *ConversationRepository) GetMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, chunks_used, created_at
		FROM paper_messages WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*domain.Message{}
	for rows.Next() {
		message := &domain.Message{}
		var chunksJSON sql.NullString

		if err := rows.Scan(&message.ID, &message.ConversationID, &message.Role,
			&message.Content, &chunksJSON, &message.CreatedAt); err != nil {
			return nil, err
		}

		message.ChunksUsed = []string{}
		if chunksJSON.Valid && chunksJSON.String != "" {
			if err := json.Unmarshal([]byte(chunksJSON.String), &message.ChunksUsed); err != nil {
				return nil, err
			}
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	var title sql.NullString
	if err := row.Scan(&conv.ID, &conv.PaperID, &conv.UserID, &title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}
	conv.Title = title.String
	return conv, nil
}
