// Package scheduler runs periodic maintenance of the chunk store.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule sweeps orphaned chunk generations hourly
const DefaultSchedule = "@every 1h"

// Collector removes chunk generations that never became active
type Collector interface {
	CollectGarbage(ctx context.Context, olderThan time.Duration) (int64, error)
}

// GC sweeps orphaned chunk generations on a cron schedule
type GC struct {
	collector Collector
	grace     time.Duration
	cron      *cron.Cron
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewGC creates a garbage collector. Generations younger than grace are kept
// so an ingestion still writing its rows is never swept.
func NewGC(collector Collector, grace time.Duration, logger *zap.Logger) *GC {
	return &GC{
		collector: collector,
		grace:     grace,
		cron:      cron.New(),
		logger:    logger.Named("gc"),
	}
}

// Start schedules the sweep
func (g *GC) Start(schedule string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return fmt.Errorf("gc scheduler already running")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if _, err := g.cron.AddFunc(schedule, func() {
		if _, err := g.RunOnce(context.Background()); err != nil {
			g.logger.Error("chunk garbage collection failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	g.cron.Start()
	g.running = true
	g.logger.Info("gc scheduler started",
		zap.String("schedule", schedule),
		zap.Duration("grace", g.grace))
	return nil
}

// Stop halts the schedule and waits for a running sweep
func (g *GC) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return
	}
	<-g.cron.Stop().Done()
	g.running = false
	g.logger.Info("gc scheduler stopped")
}

// RunOnce sweeps immediately and returns the number of rows removed
func (g *GC) RunOnce(ctx context.Context) (int64, error) {
	removed, err := g.collector.CollectGarbage(ctx, g.grace)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		g.logger.Info("removed orphaned chunks", zap.Int64("rows", removed))
	}
	return removed, nil
}
