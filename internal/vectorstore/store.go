// Package vectorstore persists paper chunks with their embeddings and runs
// paper-scoped similarity search.
//
// Chunks are written under a generation id. A paper's active-generation
// pointer is flipped in one transaction after all rows of the new generation
// are stored, and that same transaction deletes the previously active rows.
// Readers only see the active generation, so a paper's chunk set is always
// either empty or complete. Rows of a generation that never became active
// (a crash mid-write) are removed by CollectGarbage.
package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/paperchat/internal/domain"
)

// DefaultTopK is the number of chunks returned by a search when k is not positive
const DefaultTopK = 5

// Store persists chunks and answers similarity queries
type Store interface {
	// ReplaceChunks atomically swaps the paper's chunk set for chunks
	ReplaceChunks(ctx context.Context, paperID string, chunks []domain.Chunk) error
	// Search returns the k chunks of paperID most similar to query
	Search(ctx context.Context, paperID string, query []float32, k int) ([]domain.ScoredChunk, error)
	// ListChunks returns the active chunks of a paper ordered by index
	ListChunks(ctx context.Context, paperID string) ([]domain.Chunk, error)
	// CountChunks returns the number of active chunks of a paper
	CountChunks(ctx context.Context, paperID string) (int, error)
	// DeleteChunks removes every chunk of a paper, in any generation
	DeleteChunks(ctx context.Context, paperID string) error
	// CollectGarbage removes inactive generations older than olderThan
	CollectGarbage(ctx context.Context, olderThan time.Duration) (int64, error)
	Close() error
}

// prepareChunks validates the invariants of a replacement set and fills ids
// and the owning paper.
func prepareChunks(paperID string, chunks []domain.Chunk) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, len(chunks))
	dims := 0
	now := time.Now().UTC()

	for i, c := range chunks {
		if c.ChunkIndex != i {
			return nil, fmt.Errorf("%w: chunk %d has index %d", domain.ErrInvalidRequest, i, c.ChunkIndex)
		}
		if len(c.Embedding) == 0 {
			return nil, fmt.Errorf("%w: chunk %d has no embedding", domain.ErrInvalidRequest, i)
		}
		if i == 0 {
			dims = len(c.Embedding)
		} else if len(c.Embedding) != dims {
			return nil, fmt.Errorf("%w: chunk %d has dimension %d, expected %d",
				domain.ErrInvalidRequest, i, len(c.Embedding), dims)
		}

		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.PaperID = paperID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		out[i] = c
	}

	return out, nil
}

// rankTopK orders by score descending, then chunk index ascending, and keeps k
func rankTopK(scored []domain.ScoredChunk, k int) []domain.ScoredChunk {
	if k <= 0 {
		k = DefaultTopK
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ChunkIndex < scored[j].ChunkIndex
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
