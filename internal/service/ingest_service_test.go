package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liliang-cn/paperchat/internal/chunker"
	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/liliang-cn/paperchat/internal/extract"
	"github.com/liliang-cn/paperchat/internal/repository"
	"github.com/liliang-cn/paperchat/internal/storage"
	"github.com/liliang-cn/paperchat/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const paperHeader = "Graph Methods for Paper Retrieval\nAbstract\nWe study how retrieval grounds answers.\n"

func prose(n int) string {
	words := []string{"retrieval", "augmented", "generation", "grounds", "answers", "in", "paper", "text", "with", "citations"}
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(words[i%len(words)])
	}
	return b.String()[:n]
}

// threePages yields 4 chunks per page under the default chunking policy
func threePages() []extract.Page {
	return []extract.Page{
		{Number: 1, Text: (paperHeader + prose(7000))[:7000]},
		{Number: 2, Text: prose(7000)},
		{Number: 3, Text: prose(7000)},
	}
}

type fakeExtractor struct {
	pages []extract.Page
	err   error
	gate  chan struct{}
}

func (f *fakeExtractor) Extract(ctx context.Context, _ []byte) (*extract.Document, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	texts := make([]string, len(f.pages))
	for i, p := range f.pages {
		texts[i] = p.Text
	}
	return &extract.Document{Pages: f.pages, FullText: strings.Join(texts, "\n\n"), PageCount: len(f.pages)}, nil
}

type fakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	failAt  int
	shortAt int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return nil, errors.Join(domain.ErrEmbedding, errors.New("provider returned 500"))
	}
	if f.shortAt > 0 && f.calls == f.shortAt {
		return []float32{1, 2}, nil
	}
	return []float32{1, float32(len(text) % 7), float32(f.calls)}, nil
}

type ingestFixture struct {
	svc       *IngestService
	papers    *repository.PaperRepository
	store     vectorstore.Store
	files     *storage.FileStore
	extractor *fakeExtractor
	embedder  *fakeEmbedder
	broker    *StatusBroker
	db        *repository.DB
	fileRoot  string
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	dir := t.TempDir()

	db, err := repository.NewDB(filepath.Join(dir, "paperchat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := vectorstore.NewSQLiteStore(db.DB, zap.NewNop())
	require.NoError(t, err)

	files, err := storage.NewFileStore(filepath.Join(dir, "papers"), time.Second, 0)
	require.NoError(t, err)

	f := &ingestFixture{
		papers:    repository.NewPaperRepository(db),
		store:     store,
		files:     files,
		extractor: &fakeExtractor{pages: threePages()},
		embedder:  &fakeEmbedder{},
		broker:    NewStatusBroker(zap.NewNop()),
		db:        db,
		fileRoot:  filepath.Join(dir, "papers"),
	}
	f.svc = NewIngestService(f.papers, store, files, f.extractor, chunker.New(), f.embedder, f.broker, zap.NewNop())
	t.Cleanup(f.svc.Shutdown)
	return f
}

func (f *ingestFixture) upload(t *testing.T) *domain.Paper {
	t.Helper()
	paper, err := f.svc.Upload(context.Background(), "user-1", "My Paper.pdf", strings.NewReader("%PDF-1.4 fake"), "", map[string]any{"doi": "10.1/x"})
	require.NoError(t, err)
	f.svc.Wait()
	return paper
}

func TestUploadIngestsEndToEnd(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	paper := f.upload(t)
	assert.Equal(t, "My Paper", paper.Title)
	assert.Equal(t, "My Paper.pdf", paper.Filename)

	got, err := f.papers.Get(ctx, paper.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)
	assert.Equal(t, domain.PaperStatusProcessed, got.Status)
	require.NotNil(t, got.PageCount)
	assert.Equal(t, 3, *got.PageCount)
	assert.Equal(t, "Graph Methods for Paper Retrieval", got.Title)
	assert.Equal(t, "10.1/x", got.Metadata["doi"])
	assert.Equal(t, "Graph Methods for Paper Retrieval", got.Metadata[domain.MetadataKeyTitle])
	assert.True(t, strings.HasPrefix(got.Metadata[domain.MetadataKeyAbstract].(string), "We study how retrieval grounds answers."))

	chunks, err := f.store.ListChunks(ctx, paper.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 12)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		require.NotNil(t, c.PageNumber)
		assert.Equal(t, i/4+1, *c.PageNumber)
		assert.Len(t, c.Embedding, 3)
	}
	assert.Equal(t, 12, f.embedder.calls)
}

func TestProcessIsIdempotent(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	paper := f.upload(t)

	first, err := f.store.ListChunks(ctx, paper.ID)
	require.NoError(t, err)

	result, err := f.svc.Process(ctx, paper.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, result.ChunksCount)
	assert.Equal(t, 3, result.PageCount)
	assert.Equal(t, "10.1/x", result.Metadata["doi"])

	second, err := f.store.ListChunks(ctx, paper.ID)
	require.NoError(t, err)
	require.Len(t, second, 12, "re-ingestion replaces chunks")
	for i := range second {
		assert.Equal(t, first[i].ChunkText, second[i].ChunkText)
		assert.NotEqual(t, first[i].ID, second[i].ID)
	}

	var rows int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM paper_chunks WHERE paper_id = ?`, paper.ID).Scan(&rows))
	assert.Equal(t, 12, rows)
}

func TestEmbeddingFailureLeavesNoChunks(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	paper := f.upload(t)

	f.embedder.failAt = f.embedder.calls + 5

	_, err := f.svc.Process(ctx, paper.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbedding)

	got, err := f.papers.Get(ctx, paper.ID)
	require.NoError(t, err)
	assert.False(t, got.Processed)
	assert.Equal(t, domain.PaperStatusFailed, got.Status)
	assert.Contains(t, got.Error, "chunk 4")

	count, err := f.store.CountChunks(ctx, paper.ID)
	require.NoError(t, err)
	assert.Zero(t, count, "a failed re-ingestion does not keep the previous chunks")
}

func TestMixedDimensionsFailIngestion(t *testing.T) {
	f := newIngestFixture(t)
	f.embedder.shortAt = 3
	paper := f.upload(t)

	got, err := f.papers.Get(context.Background(), paper.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaperStatusFailed, got.Status)
	assert.Contains(t, got.Error, "chunk 2 has dimension 2, expected 3")

	count, err := f.store.CountChunks(context.Background(), paper.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExtractionFailures(t *testing.T) {
	tests := []struct {
		name  string
		pages []extract.Page
		err   error
		want  error
	}{
		{"extractor error", nil, extract.ErrNotPDF, extract.ErrNotPDF},
		{"no text", nil, domain.ErrNoExtractableText, domain.ErrNoExtractableText},
		{"whitespace pages", []extract.Page{{Number: 1, Text: "   \n  "}}, nil, domain.ErrNoExtractableText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestFixture(t)
			f.extractor.pages = tt.pages
			f.extractor.err = tt.err
			paper := f.upload(t)

			_, err := f.svc.Process(context.Background(), paper.ID)
			assert.ErrorIs(t, err, tt.want)

			got, _ := f.papers.Get(context.Background(), paper.ID)
			assert.False(t, got.Processed)
			assert.Equal(t, domain.PaperStatusFailed, got.Status)
			assert.Zero(t, f.embedder.calls)
		})
	}
}

func TestTriggerRejectsConcurrentRuns(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	f.extractor.gate = make(chan struct{})
	paper, err := f.svc.Upload(ctx, "user-1", "p.pdf", strings.NewReader("%PDF"), "", nil)
	require.NoError(t, err)

	assert.True(t, f.svc.InFlight(paper.ID))
	assert.ErrorIs(t, f.svc.Trigger(ctx, "user-1", paper.ID), domain.ErrAlreadyProcessing)
	_, err = f.svc.Process(ctx, paper.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessing)
	assert.ErrorIs(t, f.svc.DeletePaper(ctx, "user-1", paper.ID), domain.ErrAlreadyProcessing)

	close(f.extractor.gate)
	f.svc.Wait()
	assert.False(t, f.svc.InFlight(paper.ID))

	require.NoError(t, f.svc.Trigger(ctx, "user-1", paper.ID))
	f.svc.Wait()
}

func TestTriggerChecksOwnership(t *testing.T) {
	f := newIngestFixture(t)
	paper := f.upload(t)

	assert.ErrorIs(t, f.svc.Trigger(context.Background(), "intruder", paper.ID), domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Trigger(context.Background(), "user-1", "missing"), domain.ErrNotFound)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	f := newIngestFixture(t)
	_, err := f.svc.Upload(context.Background(), "u", "notes.docx", strings.NewReader("x"), "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestUploadRemovesFileWhenInsertFails(t *testing.T) {
	f := newIngestFixture(t)
	require.NoError(t, f.db.Close())

	_, err := f.svc.Upload(context.Background(), "user-1", "paper.pdf", strings.NewReader("%PDF-1.4 fake"), "", nil)
	require.Error(t, err)

	left, err := filepath.Glob(filepath.Join(f.fileRoot, "user-1", "*"))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestStatusEventsArePublished(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	paper := f.upload(t)

	events, cancel := f.broker.Subscribe(paper.ID)
	defer cancel()

	_, err := f.svc.Process(ctx, paper.ID)
	require.NoError(t, err)

	var statuses []string
	for len(statuses) < 5 {
		select {
		case ev := <-events:
			statuses = append(statuses, ev.Status)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %v", statuses)
		}
	}
	assert.Equal(t, []string{
		domain.PaperStatusExtracting,
		domain.PaperStatusChunking,
		domain.PaperStatusEmbedding,
		domain.PaperStatusWriting,
		domain.PaperStatusProcessed,
	}, statuses)
}

func TestDeletePaper(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	paper := f.upload(t)

	assert.ErrorIs(t, f.svc.DeletePaper(ctx, "intruder", paper.ID), domain.ErrNotFound)
	require.NoError(t, f.svc.DeletePaper(ctx, "user-1", paper.ID))

	got, err := f.papers.Get(ctx, paper.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	count, err := f.store.CountChunks(ctx, paper.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = f.files.Load(ctx, paper.FileURL)
	assert.Error(t, err)
}
