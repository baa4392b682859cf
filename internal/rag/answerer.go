// Package rag answers questions about a single paper from its retrieved chunks.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/liliang-cn/paperchat/internal/llm"
	"go.uber.org/zap"
)

// NoGroundingNotice prefixes answers produced without any passage of the paper
const NoGroundingNotice = "Note: no passages from this paper were available, so this answer is based on general knowledge and is not grounded in the paper."

const groundedSystemPrompt = `You are a research assistant answering questions about a single academic paper.
Answer using only the excerpts provided. Each excerpt is labeled with its page as [Page N].
Cite the pages you rely on in the form [Page N]. If the excerpts do not contain the answer, say so.`

const ungroundedSystemPrompt = `You are a research assistant answering questions about an academic paper.
No excerpts of the paper are available for this question. Answer from general knowledge,
state clearly that the answer is not grounded in the paper, and do not invent page citations.`

// Embedder turns a question into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher finds the chunks of a paper closest to a vector
type Searcher interface {
	Search(ctx context.Context, paperID string, query []float32, k int) ([]domain.ScoredChunk, error)
}

// Answer is a generated reply and the chunks given to the model, in rank order
type Answer struct {
	Text     string
	Chunks   []domain.ScoredChunk
	Grounded bool
}

// ChunkIDs returns the ids of the supplied chunks
func (a *Answer) ChunkIDs() []string {
	ids := make([]string, len(a.Chunks))
	for i, c := range a.Chunks {
		ids[i] = c.ID
	}
	return ids
}

// Answerer runs embed, retrieve, generate for one question
type Answerer struct {
	embedder  Embedder
	searcher  Searcher
	generator llm.Generator
	topK      int
	logger    *zap.Logger
}

// NewAnswerer creates a new answerer
func NewAnswerer(embedder Embedder, searcher Searcher, generator llm.Generator, topK int, logger *zap.Logger) *Answerer {
	return &Answerer{
		embedder:  embedder,
		searcher:  searcher,
		generator: generator,
		topK:      topK,
		logger:    logger.Named("rag"),
	}
}

// Answer answers question about paperID. Embedding and generation failures are
// returned; a failed search degrades to an ungrounded answer.
func (a *Answerer) Answer(ctx context.Context, paperID, question string) (*Answer, error) {
	vec, err := a.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	chunks, err := a.searcher.Search(ctx, paperID, vec, a.topK)
	if err != nil {
		a.logger.Warn("chunk search failed, answering without grounding",
			zap.String("paper_id", paperID), zap.Error(err))
		chunks = nil
	}

	req := BuildRequest(question, chunks)
	text, err := a.generator.Generate(ctx, req)
	if err != nil {
		if !errors.Is(err, domain.ErrGeneration) {
			err = fmt.Errorf("%w: %w", domain.ErrGeneration, err)
		}
		return nil, err
	}

	text = strings.TrimSpace(text)
	grounded := len(chunks) > 0
	if !grounded {
		text = NoGroundingNotice + "\n\n" + text
	}

	a.logger.Debug("answered question",
		zap.String("paper_id", paperID),
		zap.Int("chunks", len(chunks)),
		zap.String("generator", a.generator.Name()))

	if chunks == nil {
		chunks = []domain.ScoredChunk{}
	}
	return &Answer{Text: text, Chunks: chunks, Grounded: grounded}, nil
}

// BuildRequest builds the generation request for question and its context
func BuildRequest(question string, chunks []domain.ScoredChunk) *llm.Request {
	if len(chunks) == 0 {
		return llm.UserPrompt(ungroundedSystemPrompt, "Question: "+question)
	}

	var b strings.Builder
	b.WriteString("Excerpts from the paper:\n\n")
	for _, c := range chunks {
		b.WriteString(PageLabel(c.PageNumber))
		b.WriteString("\n")
		b.WriteString(c.ChunkText)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)

	return llm.UserPrompt(groundedSystemPrompt, b.String())
}

// PageLabel renders a chunk's page reference
func PageLabel(page *int) string {
	if page == nil {
		return "[Page ?]"
	}
	return fmt.Sprintf("[Page %d]", *page)
}
