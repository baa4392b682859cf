package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/liliang-cn/paperchat/internal/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type fakeSearcher struct {
	chunks []domain.ScoredChunk
	err    error
	k      int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ []float32, k int) ([]domain.ScoredChunk, error) {
	f.k = k
	return f.chunks, f.err
}

func scored(id string, page int, text string, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.Chunk{ID: id, ChunkText: text, PageNumber: domain.IntPtr(page)},
		Score: score,
	}
}

func TestAnswerGrounded(t *testing.T) {
	searcher := &fakeSearcher{chunks: []domain.ScoredChunk{
		scored("c2", 4, "We train with AdamW.", 0.9),
		scored("c1", 2, "The dataset has 10k papers.", 0.7),
	}}
	gen := &llmtest.Stub{Reply: "  They use AdamW [Page 4].  "}
	a := NewAnswerer(&fakeEmbedder{}, searcher, gen, 5, zap.NewNop())

	ans, err := a.Answer(context.Background(), "paper-1", "Which optimizer?")
	require.NoError(t, err)

	assert.True(t, ans.Grounded)
	assert.Equal(t, "They use AdamW [Page 4].", ans.Text)
	assert.Equal(t, []string{"c2", "c1"}, ans.ChunkIDs(), "chunks keep rank order")
	assert.Equal(t, 5, searcher.k)

	req := gen.Last()
	require.NotNil(t, req)
	require.Len(t, req.Messages, 1)
	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, "[Page 4]\nWe train with AdamW.")
	assert.Contains(t, prompt, "[Page 2]\nThe dataset has 10k papers.")
	assert.Less(t, strings.Index(prompt, "[Page 4]"), strings.Index(prompt, "[Page 2]"))
	assert.Contains(t, prompt, "Question: Which optimizer?")
	assert.Contains(t, req.System, "[Page N]")
}

func TestAnswerWithoutChunksDisclosesMissingGrounding(t *testing.T) {
	gen := &llmtest.Stub{Reply: "Generally, transformers use attention."}
	a := NewAnswerer(&fakeEmbedder{}, &fakeSearcher{}, gen, 5, zap.NewNop())

	ans, err := a.Answer(context.Background(), "paper-1", "What is attention?")
	require.NoError(t, err)

	assert.False(t, ans.Grounded)
	assert.Empty(t, ans.ChunkIDs())
	assert.NotNil(t, ans.Chunks)
	assert.Contains(t, ans.Text, NoGroundingNotice)
	assert.Contains(t, ans.Text, "Generally, transformers use attention.")
	assert.Contains(t, gen.Last().System, "not grounded")
}

func TestAnswerSearchErrorDegrades(t *testing.T) {
	gen := &llmtest.Stub{Reply: "answer"}
	searcher := &fakeSearcher{err: errors.New("database is locked")}
	a := NewAnswerer(&fakeEmbedder{}, searcher, gen, 5, zap.NewNop())

	ans, err := a.Answer(context.Background(), "paper-1", "q")
	require.NoError(t, err)
	assert.False(t, ans.Grounded)
	assert.Contains(t, ans.Text, NoGroundingNotice)
}

func TestAnswerSurfacesFailures(t *testing.T) {
	t.Run("embedding", func(t *testing.T) {
		embedErr := errors.Join(domain.ErrEmbedding, errors.New("401"))
		gen := &llmtest.Stub{Reply: "unused"}
		a := NewAnswerer(&fakeEmbedder{err: embedErr}, &fakeSearcher{}, gen, 5, zap.NewNop())

		_, err := a.Answer(context.Background(), "paper-1", "q")
		assert.ErrorIs(t, err, domain.ErrEmbedding)
		assert.Empty(t, gen.Requests())
	})

	t.Run("generation", func(t *testing.T) {
		gen := &llmtest.Stub{Err: errors.New("upstream 500")}
		a := NewAnswerer(&fakeEmbedder{}, &fakeSearcher{}, gen, 5, zap.NewNop())

		_, err := a.Answer(context.Background(), "paper-1", "q")
		assert.ErrorIs(t, err, domain.ErrGeneration)
	})
}

func TestPageLabel(t *testing.T) {
	assert.Equal(t, "[Page 7]", PageLabel(domain.IntPtr(7)))
	assert.Equal(t, "[Page ?]", PageLabel(nil))
}
