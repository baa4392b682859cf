package domain

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation groups the turns one user had against one paper
type Conversation struct {
	ID        string    `json:"id"`
	PaperID   string    `json:"paper_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents a chat message
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // user, assistant
	Content        string    `json:"content"`
	ChunksUsed     []string  `json:"chunks_used"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChunkRef is a chunk supplied to the generator as context
type ChunkRef struct {
	ID         string `json:"id"`
	PageNumber *int   `json:"page_number"`
	ChunkText  string `json:"chunk_text"`
}

// ChatRequest is the request to ask a question about a paper
type ChatRequest struct {
	PaperID        string `json:"paper_id" binding:"required"`
	ConversationID string `json:"conversation_id,omitempty"`
	// NewConversation starts a fresh conversation instead of continuing the latest one
	NewConversation bool   `json:"new_conversation,omitempty"`
	Message         string `json:"message" binding:"required"`
}

// ChatResponse is the answer to a paper question
type ChatResponse struct {
	Response       string     `json:"response"`
	ChunksUsed     []string   `json:"chunks_used"`
	Chunks         []ChunkRef `json:"chunks"`
	ConversationID string     `json:"conversation_id,omitempty"`
}

// ConversationView is a conversation with its ordered messages
type ConversationView struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []*Message    `json:"messages"`
}

// AssistantMessage is one turn of a general assistant chat
type AssistantMessage struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content"`
}

// AssistantChatRequest is the request for the general assistant
type AssistantChatRequest struct {
	Messages []AssistantMessage `json:"messages" binding:"required,min=1"`
}

// AssistantChatResponse is the general assistant reply
type AssistantChatResponse struct {
	Response string `json:"response"`
}

// Stream chunk types
const (
	StreamContent = "content"
	StreamDone    = "done"
	StreamError   = "error"
)

// StreamChunk is one server-sent event of a streamed reply
type StreamChunk struct {
	Type    string `json:"type"` // content, done, error
	Content string `json:"content,omitempty"`
	Err     error  `json:"-"`
}
