package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/liliang-cn/paperchat/internal/chunker"
	"github.com/liliang-cn/paperchat/internal/domain"
	"github.com/liliang-cn/paperchat/internal/extract"
	"github.com/liliang-cn/paperchat/internal/repository"
	"github.com/liliang-cn/paperchat/internal/storage"
	"github.com/liliang-cn/paperchat/internal/vectorstore"
	"go.uber.org/zap"
)

// Extractor turns PDF bytes into page text
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*extract.Document, error)
}

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IngestService handles paper upload and the extract, chunk, embed, write pipeline
type IngestService struct {
	papers    *repository.PaperRepository
	store     vectorstore.Store
	files     *storage.FileStore
	extractor Extractor
	chunker   *chunker.Chunker
	embedder  Embedder
	broker    *StatusBroker
	logger    *zap.Logger

	inflight sync.Map
	wg       sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// NewIngestService creates a new ingest service
func NewIngestService(
	papers *repository.PaperRepository,
	store vectorstore.Store,
	files *storage.FileStore,
	extractor Extractor,
	chunks *chunker.Chunker,
	embedder Embedder,
	broker *StatusBroker,
	logger *zap.Logger,
) *IngestService {
	ctx, cancel := context.WithCancel(context.Background())
	return &IngestService{
		papers:    papers,
		store:     store,
		files:     files,
		extractor: extractor,
		chunker:   chunks,
		embedder:  embedder,
		broker:    broker,
		logger:    logger.Named("ingest"),
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Upload stores a PDF, records the paper and starts ingestion in the background
func (s *IngestService) Upload(ctx context.Context, userID, filename string, src io.Reader, title string, metadata map[string]any) (*domain.Paper, error) {
	if !extract.IsPDF(filename) {
		return nil, fmt.Errorf("%w: only PDF files are supported", domain.ErrInvalidRequest)
	}

	paperID := uuid.New().String()
	path, size, err := s.files.Save(userID, paperID, filename, src)
	if err != nil {
		return nil, err
	}

	if title = strings.TrimSpace(title); title == "" {
		title = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	paper := &domain.Paper{
		ID:       paperID,
		UserID:   userID,
		Title:    title,
		Filename: filepath.Base(filename),
		FileURL:  path,
		FileSize: size,
		Status:   domain.PaperStatusUploaded,
		Metadata: metadata,
	}
	if err := s.papers.Create(ctx, paper); err != nil {
		if rmErr := s.files.Remove(path); rmErr != nil {
			s.logger.Warn("failed to remove paper file", zap.String("paper_id", paperID), zap.Error(rmErr))
		}
		return nil, err
	}

	s.logger.Info("paper uploaded",
		zap.String("paper_id", paper.ID),
		zap.String("user_id", userID),
		zap.Int64("size", size))

	if err := s.start(paper.ID); err != nil {
		return nil, err
	}
	return paper, nil
}

// Trigger starts ingestion of a user's paper in the background
func (s *IngestService) Trigger(ctx context.Context, userID, paperID string) error {
	if _, err := s.GetPaper(ctx, userID, paperID); err != nil {
		return err
	}
	return s.start(paperID)
}

// Process runs ingestion synchronously
func (s *IngestService) Process(ctx context.Context, paperID string) (*domain.IngestResult, error) {
	if _, loaded := s.inflight.LoadOrStore(paperID, struct{}{}); loaded {
		return nil, domain.ErrAlreadyProcessing
	}
	defer s.inflight.Delete(paperID)

	return s.process(ctx, paperID)
}

// InFlight reports whether ingestion of a paper is running
func (s *IngestService) InFlight(paperID string) bool {
	_, ok := s.inflight.Load(paperID)
	return ok
}

// Wait blocks until every background ingestion has returned
func (s *IngestService) Wait() {
	s.wg.Wait()
}

// Shutdown cancels background ingestion and waits for it to stop
func (s *IngestService) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

func (s *IngestService) start(paperID string) error {
	if _, loaded := s.inflight.LoadOrStore(paperID, struct{}{}); loaded {
		return domain.ErrAlreadyProcessing
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inflight.Delete(paperID)

		if _, err := s.process(s.baseCtx, paperID); err != nil {
			s.logger.Warn("ingestion failed", zap.String("paper_id", paperID), zap.Error(err))
		}
	}()
	return nil
}

func (s *IngestService) process(ctx context.Context, paperID string) (*domain.IngestResult, error) {
	paper, err := s.papers.Get(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if paper == nil {
		return nil, domain.ErrNotFound
	}

	logger := s.logger.With(zap.String("paper_id", paperID))
	logger.Info("starting ingestion")

	if err := s.transition(ctx, paperID, domain.PaperStatusExtracting); err != nil {
		return nil, err
	}

	data, err := s.files.Load(ctx, paper.FileURL)
	if err != nil {
		return s.fail(ctx, paperID, "load", err)
	}

	doc, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return s.fail(ctx, paperID, "extract", err)
	}

	if err := s.transition(ctx, paperID, domain.PaperStatusChunking); err != nil {
		return s.fail(ctx, paperID, "chunk", err)
	}

	pages := make([]chunker.Page, len(doc.Pages))
	for i, p := range doc.Pages {
		pages[i] = chunker.Page{Number: p.Number, Text: p.Text}
	}
	segments := s.chunker.SplitPages(pages)
	if len(segments) == 0 {
		return s.fail(ctx, paperID, "chunk", domain.ErrNoExtractableText)
	}

	if err := s.transition(ctx, paperID, domain.PaperStatusEmbedding); err != nil {
		return s.fail(ctx, paperID, "embed", err)
	}

	chunks := make([]domain.Chunk, len(segments))
	for i, seg := range segments {
		vec, err := s.embedder.Embed(ctx, seg.Text)
		if err != nil {
			return s.fail(ctx, paperID, "embed", fmt.Errorf("chunk %d: %w", seg.Index, err))
		}
		if i > 0 && len(vec) != len(chunks[0].Embedding) {
			return s.fail(ctx, paperID, "embed", fmt.Errorf("%w: chunk %d has dimension %d, expected %d",
				domain.ErrEmbedding, seg.Index, len(vec), len(chunks[0].Embedding)))
		}
		chunks[i] = domain.Chunk{
			ChunkIndex: seg.Index,
			ChunkText:  seg.Text,
			PageNumber: seg.PageNumber,
			Embedding:  vec,
		}
	}

	if err := s.transition(ctx, paperID, domain.PaperStatusWriting); err != nil {
		return s.fail(ctx, paperID, "write", err)
	}
	if err := s.store.ReplaceChunks(ctx, paperID, chunks); err != nil {
		return s.fail(ctx, paperID, "write", err)
	}

	md := extract.ExtractMetadata(doc.FullText)
	updated, err := s.papers.MarkProcessed(ctx, paperID, doc.PageCount, md.Fields(), md.Title)
	if err != nil {
		return s.fail(ctx, paperID, "finalize", err)
	}

	s.broker.Publish(domain.StatusEvent{PaperID: paperID, Status: domain.PaperStatusProcessed, Processed: true})
	logger.Info("ingestion complete",
		zap.Int("chunks", len(chunks)),
		zap.Int("pages", doc.PageCount))

	return &domain.IngestResult{
		PaperID:     paperID,
		ChunksCount: len(chunks),
		PageCount:   doc.PageCount,
		Metadata:    updated.Metadata,
	}, nil
}

func (s *IngestService) transition(ctx context.Context, paperID, status string) error {
	if err := s.papers.SetStatus(ctx, paperID, status); err != nil {
		return err
	}
	s.broker.Publish(domain.StatusEvent{PaperID: paperID, Status: status})
	return nil
}

// fail leaves the paper with no chunks and processed=false
func (s *IngestService) fail(ctx context.Context, paperID, stage string, cause error) (*domain.IngestResult, error) {
	cleanup := context.WithoutCancel(ctx)
	err := fmt.Errorf("%s: %w", stage, cause)

	if derr := s.store.DeleteChunks(cleanup, paperID); derr != nil {
		s.logger.Error("failed to clear chunks", zap.String("paper_id", paperID), zap.Error(derr))
	}
	if merr := s.papers.MarkFailed(cleanup, paperID, err.Error()); merr != nil && !errors.Is(merr, domain.ErrNotFound) {
		s.logger.Error("failed to mark paper failed", zap.String("paper_id", paperID), zap.Error(merr))
	}

	s.broker.Publish(domain.StatusEvent{PaperID: paperID, Status: domain.PaperStatusFailed, Error: err.Error()})
	return nil, err
}

// GetPaper returns a paper owned by userID
func (s *IngestService) GetPaper(ctx context.Context, userID, paperID string) (*domain.Paper, error) {
	paper, err := s.papers.Get(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if paper == nil || paper.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return paper, nil
}

// ListPapers returns a user's papers
func (s *IngestService) ListPapers(ctx context.Context, userID string) ([]*domain.Paper, error) {
	return s.papers.ListByUser(ctx, userID)
}

// DeletePaper removes a paper, its chunks, its conversations and its file
func (s *IngestService) DeletePaper(ctx context.Context, userID, paperID string) error {
	paper, err := s.GetPaper(ctx, userID, paperID)
	if err != nil {
		return err
	}
	if s.InFlight(paperID) {
		return domain.ErrAlreadyProcessing
	}

	if err := s.store.DeleteChunks(ctx, paperID); err != nil {
		return err
	}
	if err := s.papers.Delete(ctx, paperID); err != nil {
		return err
	}
	if err := s.files.Remove(paper.FileURL); err != nil {
		s.logger.Warn("failed to remove paper file", zap.String("paper_id", paperID), zap.Error(err))
	}
	return nil
}
