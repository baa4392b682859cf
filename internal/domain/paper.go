package domain

import "time"

// Paper ingestion states
const (
	PaperStatusUploaded   = "uploaded"
	PaperStatusExtracting = "extracting"
	PaperStatusChunking   = "chunking"
	PaperStatusEmbedding  = "embedding"
	PaperStatusWriting    = "writing"
	PaperStatusProcessed  = "processed"
	PaperStatusFailed     = "failed"
)

// Metadata keys written by ingestion
const (
	MetadataKeyTitle    = "title"
	MetadataKeyAbstract = "abstract"
	MetadataKeyAuthors  = "authors"
)

// Paper represents an uploaded source document
type Paper struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Title     string         `json:"title"`
	Filename  string         `json:"filename"`
	FileURL   string         `json:"file_url"`
	FileSize  int64          `json:"file_size"`
	PageCount *int           `json:"page_count"`
	Processed bool           `json:"processed"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Chunk is one retrievable text segment of a paper
type Chunk struct {
	ID         string    `json:"id"`
	PaperID    string    `json:"paper_id"`
	ChunkIndex int       `json:"chunk_index"`
	ChunkText  string    `json:"chunk_text"`
	PageNumber *int      `json:"page_number"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScoredChunk is a chunk returned by a similarity search
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// ProcessRequest triggers ingestion for an uploaded paper
type ProcessRequest struct {
	PaperID string `json:"paper_id" binding:"required"`
}

// IngestResult summarizes a successful ingestion run
type IngestResult struct {
	PaperID     string         `json:"paper_id"`
	ChunksCount int            `json:"chunks_count"`
	PageCount   int            `json:"page_count"`
	Metadata    map[string]any `json:"metadata"`
}

// StatusEvent is published on every ingestion state transition
type StatusEvent struct {
	PaperID   string    `json:"paper_id"`
	Status    string    `json:"status"`
	Processed bool      `json:"processed"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether no further events follow this one
func (e StatusEvent) Terminal() bool {
	return e.Status == PaperStatusProcessed || e.Status == PaperStatusFailed
}

// IntPtr returns a pointer to n
func IntPtr(n int) *int {
	return &n
}
