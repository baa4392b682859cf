package literature

import (
	"context"

	"github.com/liliang-cn/paperchat/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultLimit is the number of records requested from each source
const DefaultLimit = 10

// PaperSource is a searchable paper index
type PaperSource interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]domain.LiteraturePaper, error)
}

// DatasetSource is a searchable dataset index
type DatasetSource interface {
	SearchDatasets(ctx context.Context, query string, limit int) ([]domain.Dataset, error)
}

// Aggregator fans a query out to every source and merges the results
type Aggregator struct {
	papers   []PaperSource
	datasets DatasetSource
	cache    *Cache
	limit    int
	logger   *zap.Logger
}

// NewAggregator creates an aggregator. datasets and cache may be nil.
func NewAggregator(papers []PaperSource, datasets DatasetSource, cache *Cache, limit int, logger *zap.Logger) *Aggregator {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Aggregator{
		papers:   papers,
		datasets: datasets,
		cache:    cache,
		limit:    limit,
		logger:   logger.Named("literature"),
	}
}

// Search queries all sources concurrently. A failing source contributes
// nothing; when every source fails the aggregate is empty.
func (a *Aggregator) Search(ctx context.Context, query string) (*domain.Aggregate, error) {
	if a.cache != nil {
		agg, ok, err := a.cache.Get(query)
		if err != nil {
			a.logger.Warn("literature cache read failed", zap.Error(err))
		} else if ok {
			a.logger.Debug("literature cache hit", zap.String("query", query))
			return agg, nil
		}
	}

	results := make([][]domain.LiteraturePaper, len(a.papers))
	var datasets []domain.Dataset

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.papers {
		g.Go(func() error {
			papers, err := src.Search(gctx, query, a.limit)
			if err != nil {
				a.logger.Warn("literature source failed",
					zap.String("source", src.Name()),
					zap.String("query", query),
					zap.Error(err))
				return nil
			}
			results[i] = papers
			return nil
		})
	}
	if a.datasets != nil {
		g.Go(func() error {
			found, err := a.datasets.SearchDatasets(gctx, query, a.limit)
			if err != nil {
				a.logger.Warn("dataset source failed", zap.String("query", query), zap.Error(err))
				return nil
			}
			datasets = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []domain.LiteraturePaper
	for _, r := range results {
		all = append(all, r...)
	}

	agg := &domain.Aggregate{
		Papers:   Rank(Dedupe(all)),
		Datasets: datasets,
	}
	if agg.Papers == nil {
		agg.Papers = []domain.LiteraturePaper{}
	}
	if agg.Datasets == nil {
		agg.Datasets = []domain.Dataset{}
	}
	if len(agg.Datasets) > a.limit {
		agg.Datasets = agg.Datasets[:a.limit]
	}

	a.logger.Info("literature search complete",
		zap.String("query", query),
		zap.Int("candidates", len(all)),
		zap.Int("papers", len(agg.Papers)),
		zap.Int("datasets", len(agg.Datasets)))

	if a.cache != nil && (len(agg.Papers) > 0 || len(agg.Datasets) > 0) {
		if err := a.cache.Set(query, agg); err != nil {
			a.logger.Warn("literature cache write failed", zap.Error(err))
		}
	}

	return agg, nil
}
