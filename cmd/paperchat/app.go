package main

import (
	"context"
	"fmt"

	"github.com/liliang-cn/paperchat/internal/chunker"
	"github.com/liliang-cn/paperchat/internal/config"
	"github.com/liliang-cn/paperchat/internal/embedding"
	"github.com/liliang-cn/paperchat/internal/extract"
	"github.com/liliang-cn/paperchat/internal/literature"
	"github.com/liliang-cn/paperchat/internal/llm"
	"github.com/liliang-cn/paperchat/internal/rag"
	"github.com/liliang-cn/paperchat/internal/repository"
	"github.com/liliang-cn/paperchat/internal/service"
	"github.com/liliang-cn/paperchat/internal/storage"
	"github.com/liliang-cn/paperchat/internal/vectorstore"
	"go.uber.org/zap"
)

// app holds the wired components behind every command
type app struct {
	db     *repository.DB
	store  vectorstore.Store
	cache  *literature.Cache
	broker *service.StatusBroker

	ingest    *service.IngestService
	chat      *service.ChatService
	research  *service.ResearchService
	match     *service.MatchService
	email     *service.EmailService
	assistant *service.AssistantService
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()

	var err error
	if a.db, err = repository.NewDB(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if a.store, err = vectorstore.NewFromConfig(ctx, cfg.Vector, a.db.DB, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize chunk store: %w", err)
	}

	embedder, err := embedding.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embeddings: %w", err)
	}
	generator, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm: %w", err)
	}

	files, err := storage.NewFileStore(cfg.Storage.Papers, cfg.Storage.FetchTimeout, cfg.Storage.MaxUploadMB<<20)
	if err != nil {
		return nil, err
	}

	papers := repository.NewPaperRepository(a.db)
	conversations := repository.NewConversationRepository(a.db)
	chunks := chunker.New(
		chunker.WithChunkSize(cfg.RAG.ChunkSize),
		chunker.WithOverlap(cfg.RAG.ChunkOverlap),
	)

	a.broker = service.NewStatusBroker(logger)
	a.ingest = service.NewIngestService(papers, a.store, files, extract.NewPDFExtractor(), chunks, embedder, a.broker, logger)

	answerer := rag.NewAnswerer(embedder, a.store, generator, cfg.RAG.TopK, logger)
	a.chat = service.NewChatService(papers, conversations, answerer, logger)

	if a.cache, err = literature.OpenCache(cfg.Literature.CachePath, cfg.Literature.CacheTTL); err != nil {
		logger.Warn("literature cache unavailable, searching uncached", zap.Error(err))
		a.cache = nil
	}
	opts := []literature.ClientOption{literature.WithTimeout(cfg.Literature.Timeout)}
	aggregator := literature.NewAggregator(
		[]literature.PaperSource{
			literature.NewSemanticScholar(cfg.Literature.SemanticScholarURL, opts...),
			literature.NewArxiv(cfg.Literature.ArxivURL, opts...),
		},
		literature.NewHuggingFace(cfg.Literature.HuggingFaceURL, opts...),
		a.cache,
		cfg.Literature.Limit,
		logger,
	)

	a.research = service.NewResearchService(aggregator, generator, logger)
	a.match = service.NewMatchService(generator, logger)
	a.email = service.NewEmailService(generator, logger)
	a.assistant = service.NewAssistantService(generator, logger)

	ready = true
	return a, nil
}

// close stops background ingestion and releases storage
func (a *app) close() {
	if a.ingest != nil {
		a.ingest.Shutdown()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
